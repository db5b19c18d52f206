package main

import (
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"gridstakes/internal/arena"
	"gridstakes/internal/leaderboard"
	"gridstakes/internal/store"
	"gridstakes/internal/ws"
)

func newRouter(st *store.Store, lb *leaderboard.Leaderboard, orch *arena.Orchestrator, gateway *ws.Gateway) *chi.Mux {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)

	r.With(apiLogMiddleware()).Get("/healthz", healthHandler(st))

	r.Route("/api", func(r chi.Router) {
		r.Use(apiLogMiddleware())
		r.Get("/public/rooms", publicRoomsHandler(orch))
		r.Get("/public/leaderboard", publicLeaderboardHandler(lb))

		r.Group(func(r chi.Router) {
			r.Use(bearerAuth(st))
			r.Get("/me", meHandler(st))
			r.Get("/me/history", historyHandler(st))
			r.Get("/me/ledger", ledgerHandler(st))
			r.Get("/me/quests", questsHandler(st))
		})
	})

	r.Get("/ws", gateway.Handler())
	return r
}

func logRoutes(r chi.Router) {
	type routeDef struct {
		Method string
		Path   string
	}
	routes := make([]routeDef, 0, 16)
	err := chi.Walk(r, func(method string, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		routes = append(routes, routeDef{Method: method, Path: route})
		return nil
	})
	if err != nil {
		log.Error().Err(err).Msg("walk routes failed")
		return
	}
	sort.Slice(routes, func(i, j int) bool {
		if routes[i].Path == routes[j].Path {
			return routes[i].Method < routes[j].Method
		}
		return routes[i].Path < routes[j].Path
	})
	for _, rt := range routes {
		log.Info().Str("method", rt.Method).Str("path", rt.Path).Msg("route")
	}
}
