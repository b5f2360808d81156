// main is the entry point of the study-abroad portal API.
//
// STARTUP SEQUENCE:
//  1. Load configuration from a YAML file
//  2. Initialise the logger
//  3. Connect to (and set up) the SQLite database
//  4. Load the school catalog offered on the registration form
//  5. Wire the register / chat-support actions and the realtime broker
//  6. Register all HTTP routes
//  7. Start the HTTP server in a separate goroutine
//  8. Block the main goroutine until an OS signal (Ctrl+C / kill) arrives
//  9. Gracefully shut down: finish in-flight requests, close chat
//     subscriptions and the database, then exit
//
// RUNNING THE SERVER:
//
//	go run ./cmd/studyabroad-api --config=config/local.yaml
//
// or (with the environment variable):
//
//	CONFIG_PATH=config/local.yaml go run ./cmd/studyabroad-api
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/crypto/bcrypt"

	"github.com/aanand-mishra/studyabroad-api/internal/actions"
	"github.com/aanand-mishra/studyabroad-api/internal/catalog"
	"github.com/aanand-mishra/studyabroad-api/internal/chat"
	"github.com/aanand-mishra/studyabroad-api/internal/config"
	chathandler "github.com/aanand-mishra/studyabroad-api/internal/http/handlers/chat"
	reghandler "github.com/aanand-mishra/studyabroad-api/internal/http/handlers/registration"
	"github.com/aanand-mishra/studyabroad-api/internal/http/middleware"
	"github.com/aanand-mishra/studyabroad-api/internal/realtime"
	"github.com/aanand-mishra/studyabroad-api/internal/registration"
	"github.com/aanand-mishra/studyabroad-api/internal/storage/sqlite"
	"github.com/aanand-mishra/studyabroad-api/internal/types"
)

func main() {
	// ── 1. Load Config ────────────────────────────────────────────────────
	// MustLoad reads the YAML config and exits if anything is wrong.
	cfg := config.MustLoad()

	// ── 2. Initialise Logger ──────────────────────────────────────────────
	// The logger also becomes the slog default, so packages that log via
	// slog.Info(...) share its format and level.
	log := setupLogger(cfg.Env)
	slog.SetDefault(log)

	log.Info("starting studyabroad-api",
		slog.String("env", cfg.Env),
		slog.String("version", "1.0.0"),
	)

	// ── 3. Initialise Storage (Database) ──────────────────────────────────
	storage, err := sqlite.New(cfg)
	if err != nil {
		log.Error("failed to initialise storage",
			slog.String("error", err.Error()))
		os.Exit(1)
	}

	log.Info("storage initialised",
		slog.String("path", cfg.StoragePath))

	// ── 4. Load the School Catalog ────────────────────────────────────────
	// The catalog is read once and shared, read-only, by every form.
	schools, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		log.Error("failed to load school catalog",
			slog.String("path", cfg.CatalogPath),
			slog.String("error", err.Error()))
		os.Exit(1)
	}

	log.Info("school catalog loaded",
		slog.Int("schools", len(schools)),
		slog.Any("countries", catalog.Countries(schools)))

	// ── 5. Wire Actions and the Realtime Broker ───────────────────────────
	broker := realtime.New(cfg.Chat.SubscriberBuffer, log)

	regDeps := reghandler.Deps{
		Catalog:   schools,
		Validator: registration.NewValidator(schools),
		Registrar: actions.NewRegistrar(storage, bcrypt.DefaultCost),
		InFlight:  registration.NewInFlight(),
		Config: registration.Config{
			RedirectTo:    cfg.Registration.RedirectTo,
			RedirectAfter: cfg.Registration.RedirectAfter,
		},
	}

	chatDeps := chathandler.Deps{
		Channel:        broker,
		Persister:      actions.NewChatSupport(storage),
		Store:          storage,
		Options:        chat.Options{Muted: cfg.Chat.Muted, Logger: log},
		OriginPatterns: cfg.Chat.OriginPatterns,
	}

	// ── 6. Register HTTP Routes ───────────────────────────────────────────
	// Route table:
	//   GET  /api/registration/defaults   → initial draft + option lists
	//   POST /api/registration/options    → apply a field change, derive lists
	//   POST /api/registration/validate   → field errors grouped per tab
	//   POST /api/register                → submit the registration
	//   GET  /api/applicants              → list applicants (admin)
	//   GET  /api/applicants/{id}         → get one applicant (admin)
	//   GET  /api/chat/{clientId}/messages → chat history (session)
	//   POST /api/chat/{clientId}/messages → post a chat message (session)
	//   GET  /ws/chat/{clientId}           → live chat session (session)
	//
	// A USER session only reaches the conversation whose clientId is its
	// own user id; ADMIN reaches all of them.
	router := http.NewServeMux()
	auth := middleware.Session(cfg.Session.JWTSecret)
	admin := func(h http.Handler) http.Handler {
		return auth(middleware.RequireRole(types.RoleAdmin)(h))
	}

	router.HandleFunc("GET /api/registration/defaults", reghandler.Defaults(regDeps))
	router.HandleFunc("POST /api/registration/options", reghandler.Options(regDeps))
	router.HandleFunc("POST /api/registration/validate", reghandler.Validate(regDeps))
	router.HandleFunc("POST /api/register", reghandler.Register(regDeps))
	router.Handle("GET /api/applicants", admin(reghandler.GetList(storage)))
	router.Handle("GET /api/applicants/{id}", admin(reghandler.GetByID(storage)))

	router.Handle("GET /api/chat/{clientId}/messages", auth(chathandler.History(storage)))
	router.Handle("POST /api/chat/{clientId}/messages", auth(chathandler.Post(chatDeps)))
	router.Handle("GET /ws/chat/{clientId}", auth(chathandler.WS(chatDeps)))

	// ── 7. Create the HTTP Server ─────────────────────────────────────────
	server := &http.Server{
		Addr:    cfg.HTTPServer.Addr,
		Handler: router,

		ReadTimeout:  cfg.HTTPServer.ReadTimeout,
		WriteTimeout: cfg.HTTPServer.WriteTimeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	// Shutdown does not wait for hijacked (WebSocket) connections; closing
	// the broker ends their subscriptions.
	server.RegisterOnShutdown(broker.Close)

	go func() {
		log.Info("server started", slog.String("address", cfg.HTTPServer.Addr))

		if err := server.ListenAndServe(); err != nil &&
			!errors.Is(err, http.ErrServerClosed) {
			log.Error("server encountered an error",
				slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	// ── 8. Wait for Shutdown Signal ───────────────────────────────────────
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)
	<-done

	log.Info("shutdown signal received, stopping server...")

	// ── 9. Graceful Shutdown ──────────────────────────────────────────────
	ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTPServer.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("failed to shutdown server gracefully",
			slog.String("error", err.Error()))
	}

	if err := storage.Close(); err != nil {
		log.Error("failed to close storage",
			slog.String("error", err.Error()))
	}

	log.Info("server stopped gracefully")
}

// setupLogger returns a *slog.Logger configured for the given environment.
//
// Development (dev): human-readable text output at DEBUG level.
// Production (prod): machine-readable JSON output at INFO level.
func setupLogger(env string) *slog.Logger {
	switch env {
	case "prod":
		return slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
				Level: slog.LevelInfo,
			}),
		)
	case "staging":
		return slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
				Level: slog.LevelDebug,
			}),
		)
	default: // "dev" and anything unrecognised
		return slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
				Level: slog.LevelDebug,
			}),
		)
	}
}
