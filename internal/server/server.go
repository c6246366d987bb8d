// Package server orchestrates all components: COMMS client, DB, registry, sessions, dispatcher, HTTP console.
package server

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	comms "github.com/nats-io/nats.go"

	"github.com/morezero/endpoint-console/internal/config"
	"github.com/morezero/endpoint-console/pkg/auth"
	"github.com/morezero/endpoint-console/pkg/commsutil"
	"github.com/morezero/endpoint-console/pkg/db"
	"github.com/morezero/endpoint-console/pkg/dispatcher"
	"github.com/morezero/endpoint-console/pkg/events"
	"github.com/morezero/endpoint-console/pkg/invoke"
	"github.com/morezero/endpoint-console/pkg/registry"
	"github.com/morezero/endpoint-console/pkg/session"
	"github.com/morezero/endpoint-console/pkg/snapshot"
)

const logPrefix = "server:server"

// Version is the console build version, set with
// -ldflags "-X github.com/morezero/endpoint-console/internal/server.Version=...".
var Version = "dev"

// shutdownTimeout bounds the graceful HTTP shutdown.
const shutdownTimeout = 10 * time.Second

// Server is the endpoint-console orchestrator.
type Server struct {
	cfg        *config.Config
	httpServer *http.Server

	registries *registry.Holder
	sessions   *session.Manager
	disp       *dispatcher.Dispatcher
	probes     registry.HealthProbes
}

// newServerParams holds the already-built components a Server serves.
type newServerParams struct {
	Config     *config.Config
	Registries *registry.Holder
	Sessions   *session.Manager
	Probes     registry.HealthProbes
}

func newServer(params newServerParams) *Server {
	return &Server{
		cfg:        params.Config,
		registries: params.Registries,
		sessions:   params.Sessions,
		probes:     params.Probes,
		disp: dispatcher.NewDispatcher(dispatcher.NewDispatcherParams{
			Registries: params.Registries,
			Sessions:   params.Sessions,
			Probes:     params.Probes,
		}),
	}
}

// SetupLogging installs a text slog handler on w at the given level.
func SetupLogging(w io.Writer, level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: logLevel})))
}

// Run starts the server, blocks until shutdown signal, then cleans up.
func Run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("%s - failed to load config: %w", logPrefix, err)
	}
	SetupLogging(os.Stdout, cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		return err
	}

	slog.Info(fmt.Sprintf("%s - Starting endpoint-console", logPrefix))

	// Cancelled last, after HTTP and COMMS stop accepting work.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var probes registry.HealthProbes

	// Step 1: Connect to COMMS (optional)
	var nc *comms.Conn
	var publisher events.EventPublisher = &events.NoOpPublisher{}
	if cfg.COMMSURL != "" {
		nc, err = commsutil.Connect(cfg.COMMSURL, cfg.COMMSName)
		if err != nil {
			return fmt.Errorf("%s - failed to connect to COMMS: %w", logPrefix, err)
		}
		publisher = events.NewCommsPublisher(nc, &events.CommsPublisherOpts{
			InvocationSubject: cfg.InvocationEventSubject,
		})
		probes.Comms = nc.IsConnected
	} else {
		slog.Info(fmt.Sprintf("%s - COMMS_URL not set; COMMS API and events disabled", logPrefix))
	}

	// Step 2: Connect to database (optional)
	var pool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		pool, err = db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			commsutil.Drain(nc)
			return fmt.Errorf("%s - failed to connect to database: %w", logPrefix, err)
		}
		probes.Database = db.NewRepository(pool).Ping
	}

	closeDeps := func() {
		commsutil.Drain(nc)
		if pool != nil {
			pool.Close()
		}
	}

	// Step 3: Load the endpoint snapshot
	src, err := snapshot.NewSource(snapshot.NewSourceParams{
		Kind:    cfg.SnapshotSource,
		File:    cfg.SnapshotFile,
		URL:     cfg.SnapshotURL,
		Subject: cfg.SnapshotSubject,
		Timeout: cfg.SnapshotTimeout,
		Conn:    nc,
		Pool:    pool,
	})
	if err != nil {
		closeDeps()
		return fmt.Errorf("%s - failed to build snapshot source: %w", logPrefix, err)
	}
	holder := registry.NewHolder(registry.NewHolderParams{Source: src, Publisher: publisher})
	if _, err := holder.Reload(ctx); err != nil {
		// The console still starts; health reports unhealthy until a reload succeeds.
		slog.Warn(fmt.Sprintf("%s - initial snapshot load failed: %v", logPrefix, err))
	}

	// Step 4: Auth, invocation engine and sessions
	provider, err := auth.NewProvider(auth.NewProviderParams{
		Kind:        cfg.AuthType,
		StaticToken: cfg.AuthToken,
		Credentials: auth.NewClientCredentialsParams{
			Domain:       cfg.Auth0Domain,
			ClientID:     cfg.Auth0ClientID,
			ClientSecret: cfg.Auth0ClientSecret,
			Audience:     cfg.Auth0Audience,
		},
	})
	if err != nil {
		closeDeps()
		return fmt.Errorf("%s - failed to build auth provider: %w", logPrefix, err)
	}
	engine := invoke.NewEngine(invoke.NewEngineParams{
		Timeout:   cfg.InvokeTimeout,
		Publisher: publisher,
	})
	sessions := session.NewManager(session.NewManagerParams{
		Registries: holder,
		Invoker:    engine,
		Auth:       provider,
		Ctx:        ctx,
	})

	s := newServer(newServerParams{
		Config:     cfg,
		Registries: holder,
		Sessions:   sessions,
		Probes:     probes,
	})

	// Step 5: Subscribe to the COMMS console subject
	var sub *comms.Subscription
	if nc != nil {
		sub, err = nc.Subscribe(cfg.ConsoleSubject, s.handleCommsRequest(ctx))
		if err != nil {
			closeDeps()
			return fmt.Errorf("%s - failed to subscribe to %s: %w", logPrefix, cfg.ConsoleSubject, err)
		}
		slog.Info(fmt.Sprintf("%s - Subscribed to %s", logPrefix, cfg.ConsoleSubject))
	}

	// Step 6: Start HTTP console
	httpAddr := cfg.ListenAddr()
	s.httpServer = &http.Server{Addr: httpAddr, Handler: s.routes(), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		slog.Info(fmt.Sprintf("%s - HTTP console listening on %s", logPrefix, httpAddr))
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error(fmt.Sprintf("%s - HTTP server error: %v", logPrefix, err))
		}
	}()

	slog.Info(fmt.Sprintf("%s - endpoint-console is ready", logPrefix))

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info(fmt.Sprintf("%s - Received signal %s, shutting down", logPrefix, sig))

	// Graceful shutdown
	if sub != nil {
		if err := sub.Unsubscribe(); err != nil {
			slog.Warn(fmt.Sprintf("%s - unsubscribe failed: %v", logPrefix, err))
		}
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn(fmt.Sprintf("%s - HTTP shutdown: %v", logPrefix, err))
	}
	cancel()
	closeDeps()

	slog.Info(fmt.Sprintf("%s - Shutdown complete", logPrefix))
	return nil
}
