package httpapi

import (
	"net/http"

	"github.com/DoyleJ11/judgement-scorekeeper/internal/hub"
	"github.com/DoyleJ11/judgement-scorekeeper/internal/ws"
	"github.com/arl/statsviz"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type Options struct {
	Statsviz bool
}

func SetupRoutes(h *hub.Hub, log *zap.Logger, opts Options) (http.Handler, error) {
	r := chi.NewRouter()

	// Public routes
	r.Post("/tables", CreateTable(h, log))
	r.Get("/tables/{code}", GetTable(h))
	r.Get("/healthz", Healthz)
	r.Get("/ws", ws.Handler(h, log))

	if opts.Statsviz {
		srv, err := statsviz.NewServer()
		if err != nil {
			return nil, err
		}
		r.Get("/debug/statsviz/ws", srv.Ws())
		r.Get("/debug/statsviz", func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, "/debug/statsviz/", http.StatusMovedPermanently)
		})
		r.Handle("/debug/statsviz/*", srv.Index())
	}
	return r, nil
}
