package hub

import (
	"context"
	"time"

	"github.com/DoyleJ11/judgement-scorekeeper/internal/store"
	"github.com/DoyleJ11/judgement-scorekeeper/internal/table"
	"go.uber.org/zap"
)

const slotTimeout = 3 * time.Second

type HubMsg interface{ isHubMsg() }

// CreateTable replies with the existing table when the code is taken.
type CreateTable struct {
	Code  string
	Reply chan *table.Table
}

// OpenTable replies with the table for code, restoring it from its saved
// slot when it is not open. Nil when the code has neither.
type OpenTable struct {
	Code  string
	Reply chan *table.Table
}

// CodeTaken reports whether code is open or has a saved slot.
type CodeTaken struct {
	Code  string
	Reply chan bool
}

type RemoveTable struct {
	Code string
}

type ShutdownHub struct{}

// CountTables replies with the number of open tables.
type CountTables struct {
	Reply chan int
}

func (CreateTable) isHubMsg() {}
func (OpenTable) isHubMsg()   {}
func (CodeTaken) isHubMsg()   {}
func (RemoveTable) isHubMsg() {}
func (ShutdownHub) isHubMsg() {}
func (CountTables) isHubMsg() {}

type Hub struct {
	inbox  chan HubMsg
	tables map[string]*table.Table
	cfg    table.Config
	log    *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

// NewHub opens every table with cfg.
func NewHub(parent context.Context, cfg table.Config) *Hub {
	ctx, cancel := context.WithCancel(parent)
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}
	h := &Hub{
		inbox:  make(chan HubMsg, 64),
		tables: make(map[string]*table.Table),
		cfg:    cfg,
		log:    log,
		ctx:    ctx,
		cancel: cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateTable:
				msg.Reply <- h.open(msg.Code)

			case OpenTable:
				if h.tables[msg.Code] == nil && !h.hasSlot(msg.Code) {
					msg.Reply <- nil
					break
				}
				msg.Reply <- h.open(msg.Code)

			case CodeTaken:
				msg.Reply <- h.tables[msg.Code] != nil || h.hasSlot(msg.Code)

			case RemoveTable:
				if tb := h.tables[msg.Code]; tb != nil {
					tb.Send(h.ctx, table.Shutdown{})
					delete(h.tables, msg.Code)
				}

			case CountTables:
				msg.Reply <- len(h.tables)

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

// open returns nil if the table could not be started.
func (h *Hub) open(code string) *table.Table {
	if tb := h.tables[code]; tb != nil {
		return tb
	}
	tb, err := table.New(h.ctx, code, h.cfg)
	if err != nil {
		h.log.Error("open table", zap.String("table", code), zap.Error(err))
		return nil
	}
	h.tables[code] = tb
	h.log.Info("table opened", zap.String("table", code))
	return tb
}

// hasSlot treats an unreadable KV as no slot; the table would start fresh anyway.
func (h *Hub) hasSlot(code string) bool {
	ctx, cancel := context.WithTimeout(h.ctx, slotTimeout)
	defer cancel()
	ok, err := store.Exists(ctx, h.cfg.KV, store.SlotKey(h.cfg.KeyVersion, code))
	if err != nil {
		h.log.Warn("slot lookup failed", zap.String("table", code), zap.Error(err))
	}
	return ok
}

func (h *Hub) shutdown() {
	for _, tb := range h.tables {
		tb.Send(h.ctx, table.Shutdown{})
	}
	clear(h.tables)
	h.cancel()
}
