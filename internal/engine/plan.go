package engine

type Suit string

const (
	SuitSpades   Suit = "Spades"
	SuitHearts   Suit = "Hearts"
	SuitClubs    Suit = "Clubs"
	SuitDiamonds Suit = "Diamonds"
)

// Suits is the trump rotation. It does not depend on the deal direction.
var Suits = []Suit{
	SuitSpades,
	SuitHearts,
	SuitClubs,
	SuitDiamonds,
}

const deckSize = 52

type PlanRow struct {
	Cards int
	Suit  Suit
}

// MaxCards is the largest hand every player can be dealt from one deck.
func MaxCards(playerCount int) int {
	if playerCount <= 0 {
		return 13
	}
	return deckSize / playerCount
}

func GeneratePlan(playerCount int, descending bool) []PlanRow {
	limit := MaxCards(playerCount)
	if descending {
		return planRows(limit, 1, 0)
	}
	return planRows(1, limit, 0)
}

// planRows walks from first to last inclusive, one card at a time, assigning
// trumps from the rotation starting at phase.
func planRows(first, last, phase int) []PlanRow {
	if first < 1 || last < 1 {
		return nil
	}
	step := 1
	if first > last {
		step = -1
	}
	var rows []PlanRow
	for c := first; ; c += step {
		rows = append(rows, PlanRow{Cards: c, Suit: Suits[(phase+len(rows))%len(Suits)]})
		if c == last {
			break
		}
	}
	return rows
}

// continuation extends a non-empty schedule. Going up restarts at one card and
// needs the schedule to end on one card; going down needs it to end on the
// maximum and skips repeating that round.
func continuation(s GameState, descending bool) ([]PlanRow, error) {
	limit := MaxCards(len(s.Players))
	last := s.Rounds[len(s.Rounds)-1]
	phase := len(s.Rounds)

	if !descending {
		if last.Cards != 1 {
			return nil, ErrCannotAppend
		}
		return planRows(1, limit, phase), nil
	}

	if limit <= 1 || last.Cards != limit {
		return nil, ErrCannotAppend
	}
	return planRows(limit-1, 1, phase), nil
}
