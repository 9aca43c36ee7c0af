package server

import (
	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"

	v1 "github.com/gosuda/pinboard/internal/api/v1"
	"github.com/gosuda/pinboard/internal/api/ws"
)

func registerAuthRoutes(api huma.API, authSvc v1.AuthService) {
	v1.RegisterAuthRoutes(api, authSvc)
}

func registerAPIRoutes(api huma.API, store v1.DataStore, notifier v1.Notifier) {
	v1.RegisterBoardRoutes(api, store)
	v1.RegisterCardRoutes(api, store, notifier)
}

func registerWSRoutes(r chi.Router, handler *ws.Handler) {
	r.Get("/ws", handler.ServeHTTP)
}
