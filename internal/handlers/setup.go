package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"desacordo-backend/internal/auth"
	"desacordo-backend/internal/database"
	"desacordo-backend/internal/gateway"
	"desacordo-backend/internal/jwt"
	"desacordo-backend/internal/keyValue"
	"desacordo-backend/internal/models"
	"desacordo-backend/internal/uploads"
)

type Deps struct {
	Sugar    *zap.SugaredLogger
	Config   *models.ConfigFile
	Auth     *auth.Service
	Accounts *database.Accounts
	Cache    *keyValue.Store
	Issuer   *jwt.Issuer
	Gateway  *gateway.Gateway
	Uploads  *uploads.Store
	Gatherer prometheus.Gatherer
}

type Handlers struct {
	sugar    *zap.SugaredLogger
	cfg      *models.ConfigFile
	auth     *auth.Service
	accounts *database.Accounts
	cache    *keyValue.Store
	issuer   *jwt.Issuer
	gateway  *gateway.Gateway
	uploads  *uploads.Store
	gatherer prometheus.Gatherer
}

func New(deps Deps) *Handlers {
	return &Handlers{
		sugar:    deps.Sugar,
		cfg:      deps.Config,
		auth:     deps.Auth,
		accounts: deps.Accounts,
		cache:    deps.Cache,
		issuer:   deps.Issuer,
		gateway:  deps.Gateway,
		uploads:  deps.Uploads,
		gatherer: deps.Gatherer,
	}
}

func (h *Handlers) Router() http.Handler {
	r := chi.NewRouter()
	if h.cfg.PrintHttpRequests {
		r.Use(middleware.Logger)
	}

	r.Use(middleware.Recoverer)

	r.Route("/api", func(api chi.Router) {
		// the websocket route is outside this group, a timeout would cut
		// long lived connections
		api.Use(middleware.Timeout(60 * time.Second))

		api.Get("/test", h.Test)

		api.Route("/auth", func(r chi.Router) {
			r.Post("/login", h.Login)
			r.Post("/register", h.Register)
			r.Post("/logout", h.Logout)
			r.With(h.UserVerifier).Get("/isLoggedIn", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
		})

		api.With(h.UserVerifier).Post("/upload", h.Upload)
	})

	r.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))

	var websocketPath string

	if h.cfg.BehindNginx {
		websocketPath = "/ws/"
	} else {
		websocketPath = "/ws"
		r.Handle(uploads.URLPrefix+"*", http.StripPrefix(uploads.URLPrefix, http.FileServer(http.Dir(h.uploads.Dir()))))
	}

	r.With(h.UserVerifier).Get(websocketPath, h.HandleWebSocket)

	return r
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.sugar.Error(err)
	}
}
