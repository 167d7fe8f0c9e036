package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	authgate "github.com/masabinhok/authgate"
	agmiddleware "github.com/masabinhok/authgate/middleware"
)

func main() {
	cfg, err := authgate.FromEnv()
	if err != nil {
		slog.Error("configuration invalid", slog.String("error", err.Error()))
		os.Exit(1)
	}

	initLogger(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
	slog.Info("starting authgate demo gateway", slog.String("apiOrigin", cfg.APIOrigin))

	rdb, cleanup := redisClient()
	defer cleanup()

	gate, err := authgate.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithLogger(slog.Default()).
		Build()
	if err != nil {
		slog.Error("gate build failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer gate.Close()

	if err := gate.Store.Restore(context.Background()); err != nil {
		slog.Warn("snapshot restore failed", slog.String("error", err.Error()))
	}

	if err := prometheus.Register(newGateCollector(gate.Metrics)); err != nil {
		slog.Warn("metrics registration failed", slog.String("error", err.Error()))
	}

	loginLimiter := agmiddleware.NewLoginLimiter(5, 10)
	defer loginLimiter.Close()

	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Get(agmiddleware.LoginRoute, loginPage)
	r.Get(agmiddleware.UnauthorizedRoute, unauthorizedPage)

	r.Group(func(r chi.Router) {
		r.Use(loginLimiter.Middleware)
		r.Post(agmiddleware.LoginRoute, loginHandler(gate))
	})
	r.Post(agmiddleware.LogoutRoute, logoutHandler(gate))
	r.Post(agmiddleware.ChangePasswordRoute, changePasswordHandler(gate))

	// Protected surface: edge gate first (coarse, claim-only), then the
	// authoritative store-backed guard.
	r.Group(func(r chi.Router) {
		r.Use(agmiddleware.EdgeGate(gate.Policy, gate.Decoder, gate.Config.AccessCookie))
		r.Use(agmiddleware.Guard(gate.Store, gate.Policy))

		r.Get("/admin/*", dashboard("admin"))
		r.Get("/admin", dashboard("admin"))
		r.Get("/teacher/*", dashboard("teacher"))
		r.Get("/teacher", dashboard("teacher"))
		r.Get("/student/*", dashboard("student"))
		r.Get("/student", dashboard("student"))
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("gateway listening", slog.String("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("shutting down gateway")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", slog.String("error", err.Error()))
	}
	slog.Info("gateway stopped")
}

// redisClient connects to REDIS_ADDR, falling back to an embedded miniredis
// so the demo runs with zero infrastructure.
func redisClient() (redis.UniversalClient, func()) {
	addr := os.Getenv("REDIS_ADDR")
	if addr != "" {
		client := redis.NewClient(&redis.Options{Addr: addr})
		return client, func() { _ = client.Close() }
	}
	mr, err := miniredis.Run()
	if err != nil {
		slog.Error("failed to start embedded redis", slog.String("error", err.Error()))
		os.Exit(1)
	}
	slog.Info("using embedded redis", slog.String("addr", mr.Addr()))
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return client, func() {
		_ = client.Close()
		mr.Close()
	}
}

func initLogger(level, format string) {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	var handler slog.Handler
	if format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type loginPayload struct {
	Username string        `json:"username"`
	Password string        `json:"password"`
	Role     authgate.Role `json:"role"`
}

func loginHandler(gate *authgate.Gate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload loginPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		creds := authgate.Credentials{Username: payload.Username, Password: payload.Password}
		if err := gate.Store.Login(r.Context(), creds, payload.Role); err != nil {
			status := http.StatusBadGateway
			switch {
			case errors.Is(err, authgate.ErrInvalidCredentials):
				status = http.StatusUnauthorized
			case errors.Is(err, authgate.ErrNetwork):
				status = http.StatusServiceUnavailable
			}
			writeError(w, status, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"user":                   gate.Store.User(),
			"requiresPasswordChange": gate.Store.RequiresPasswordChange(),
		})
	}
}

func logoutHandler(gate *authgate.Gate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_ = gate.Store.Logout(r.Context())
		http.Redirect(w, r, "/", http.StatusSeeOther)
	}
}

type changePasswordPayload struct {
	OldPassword     string `json:"oldPassword"`
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
}

func changePasswordHandler(gate *authgate.Gate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload changePasswordPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		err := gate.Store.ChangePassword(r.Context(), payload.OldPassword, payload.NewPassword, payload.ConfirmPassword)
		if err != nil {
			status := http.StatusBadGateway
			switch {
			case errors.Is(err, authgate.ErrPasswordRequired),
				errors.Is(err, authgate.ErrPasswordMismatch),
				errors.Is(err, authgate.ErrPasswordReuse),
				errors.Is(err, authgate.ErrPasswordPolicy):
				status = http.StatusUnprocessableEntity
			case errors.Is(err, authgate.ErrNotAuthenticated):
				status = http.StatusUnauthorized
			}
			writeError(w, status, err.Error())
			return
		}
		// The store logged the session out; the user re-authenticates with
		// the new credentials.
		writeJSON(w, http.StatusOK, map[string]string{"message": "password changed, please log in again"})
	}
}

func dashboard(area string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, _ := agmiddleware.UserFromContext(r.Context())
		writeJSON(w, http.StatusOK, map[string]any{
			"area": area,
			"user": user,
		})
	}
}

func loginPage(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message":  "login required",
		"redirect": r.URL.Query().Get("redirect"),
	})
}

func unauthorizedPage(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusForbidden, map[string]string{
		"message": "you are not permitted to view this page",
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}
