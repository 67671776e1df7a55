package httpapi

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"time"

	"github.com/DoyleJ11/judgement-scorekeeper/internal/hub"
	"github.com/DoyleJ11/judgement-scorekeeper/internal/remote"
	"github.com/DoyleJ11/judgement-scorekeeper/internal/table"
	"github.com/DoyleJ11/judgement-scorekeeper/internal/types"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const replyTimeout = 10 * time.Second

func GenerateCode() (string, error) {
	const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	code := make([]byte, 6)
	for i := 0; i < 6; i++ {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		code[i] = charset[num.Int64()]
	}
	return string(code), nil
}

type createResponse struct {
	Code   string `json:"code"`
	GameID string `json:"game_id"`
}

// CreateTable opens a table under a fresh code. With ?id= the new table is
// hydrated once from that remote game.
func CreateTable(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var code string
		for {
			c, err := GenerateCode()
			if err != nil {
				http.Error(w, "failed to generate code", http.StatusInternalServerError)
				return
			}
			taken := make(chan bool, 1)
			h.Inbox() <- hub.CodeTaken{Code: c, Reply: taken}
			if !<-taken {
				code = c
				break
			}
			log.Debug("collision on code, regenerating", zap.String("code", c))
		}

		reply := make(chan *table.Table, 1)
		h.Inbox() <- hub.CreateTable{Code: code, Reply: reply}
		tb := <-reply
		if tb == nil {
			http.Error(w, "failed to create table", http.StatusInternalServerError)
			return
		}

		if id := r.URL.Query().Get("id"); id != "" {
			if err := hydrate(r.Context(), tb, id); err != nil {
				h.Inbox() <- hub.RemoveTable{Code: code}
				log.Info("hydrate failed", zap.String("game_id", id), zap.Error(err))
				http.Error(w, err.Error(), hydrateStatus(err))
				return
			}
		}

		view, err := viewOf(r.Context(), tb)
		if err != nil {
			http.Error(w, err.Error(), http.StatusGatewayTimeout)
			return
		}
		writeJSON(w, http.StatusCreated, createResponse{Code: code, GameID: view.State.ID})
	}
}

func hydrate(ctx context.Context, tb *table.Table, gameID string) error {
	reply := make(chan error, 1)
	if !tb.Send(ctx, table.LoadCloud{GameID: gameID, Reply: reply}) {
		return errors.New("table closed")
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func hydrateStatus(err error) int {
	switch {
	case errors.Is(err, remote.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, table.ErrCloudDisabled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

// GetTable returns the same snapshot websocket clients receive. A table saved
// before a restart is reopened from its slot.
func GetTable(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reply := make(chan *table.Table, 1)
		h.Inbox() <- hub.OpenTable{Code: chi.URLParam(r, "code"), Reply: reply}
		tb := <-reply
		if tb == nil {
			http.Error(w, "table not found", http.StatusNotFound)
			return
		}
		view, err := viewOf(r.Context(), tb)
		if err != nil {
			http.Error(w, err.Error(), http.StatusGatewayTimeout)
			return
		}
		writeJSON(w, http.StatusOK, types.NewSnapshot(view.Version, view.Live, view.State))
	}
}

func viewOf(ctx context.Context, tb *table.Table) (table.View, error) {
	ctx, cancel := context.WithTimeout(ctx, replyTimeout)
	defer cancel()
	reply := make(chan table.View, 1)
	if !tb.Send(ctx, table.GetState{Reply: reply}) {
		if ctx.Err() != nil {
			return table.View{}, ctx.Err()
		}
		return table.View{}, errors.New("table closed")
	}
	select {
	case v := <-reply:
		return v, nil
	case <-ctx.Done():
		return table.View{}, ctx.Err()
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
