package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/getsentry/sentry-go"
	"github.com/go-redis/redis/v8"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mmynk/studygroup/internal/auth"
	"github.com/mmynk/studygroup/internal/blobstore"
	"github.com/mmynk/studygroup/internal/chat"
	"github.com/mmynk/studygroup/internal/collection"
	"github.com/mmynk/studygroup/internal/config"
	"github.com/mmynk/studygroup/internal/docstore/sqlite"
	"github.com/mmynk/studygroup/internal/fanout"
	"github.com/mmynk/studygroup/internal/membership"
	"github.com/mmynk/studygroup/internal/metrics"
	"github.com/mmynk/studygroup/internal/middleware"
	"github.com/mmynk/studygroup/internal/service"
	"github.com/mmynk/studygroup/internal/session"
	"github.com/mmynk/studygroup/internal/worker"
	"github.com/mmynk/studygroup/pkg/logging"
)

const (
	tokenDuration   = 24 * time.Hour
	shutdownTimeout = 10 * time.Second
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	logging.Setup(cfg.Environment, cfg.LogLevel)

	if err := run(cfg); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: cfg.SentryDSN, Environment: cfg.Environment}); err != nil {
			return err
		}
		defer sentry.Flush(2 * time.Second)
		slog.Info("Error reporting enabled")
	}

	m := metrics.New(true)

	storeOpts := []sqlite.Option{sqlite.WithConflictHook(m.ConflictRetry)}
	var relay *fanout.Redis
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		relay = fanout.NewRedis(client, cfg.Redis.Channel)
		storeOpts = append(storeOpts, sqlite.WithPublisher(relay))
	}

	// Initialize SQLite storage
	store, err := sqlite.New(cfg.DBPath, storeOpts...)
	if err != nil {
		return err
	}
	defer store.Close()
	slog.Info("Storage initialized", "database", cfg.DBPath)

	if relay != nil {
		go func() {
			err := relay.Run(ctx, func(collection string) {
				m.RemoteChanges.Inc()
				store.NotifyRemote(collection)
			})
			if err != nil {
				slog.Error("Change relay stopped", "error", err)
			}
		}()
	}

	blobs, err := blobstore.NewLocal(cfg.Blob.Dir, cfg.Blob.BaseURL)
	if err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	registry, err := session.NewRegistry(nil, session.Config{
		Timeout:       cfg.Session.Timeout,
		WarningWindow: cfg.Session.WarningWindow,
	}, session.WithEventHook(func(ev session.Event) {
		m.SessionTransitions.WithLabelValues(ev.Transition.To.String(), string(ev.Transition.Reason)).Inc()
	}), session.WithExpireHook(func(ev session.Event) {
		// Token revocation belongs to the identity provider; the client
		// drops its token on the redirect.
		slog.Info("Session signed out", "session_id", ev.SessionID, "uid", ev.UID, "reason", ev.Transition.Reason)
		m.SessionSignedOut(string(ev.Transition.Reason))
	}))
	if err != nil {
		return err
	}
	defer registry.Close()

	m.RegisterGauge("live_subscriptions", "Open live queries on the document store.", func() float64 {
		return float64(store.Subscriptions())
	})
	m.RegisterGauge("active_sessions", "Mounted activity monitors.", func() float64 {
		return float64(registry.Len())
	})

	groups := membership.NewManager(store, blobs, nil)
	stream := chat.NewStream(store, blobs, nil)
	stream.OnSent = m.MessageSent
	editor := collection.NewEditor(store, blobs, nil, loc)

	if cfg.OrphanSweepInterval > 0 {
		collector := worker.NewOrphanCollector(store, cfg.OrphanSweepInterval)
		collector.OnCollected = m.OrphansDeleted
		go collector.Start(ctx)
	}

	jwtManager := auth.NewJWTManager(cfg.JWTSecret, tokenDuration)
	interceptors := connect.WithInterceptors(
		middleware.NewLoggingInterceptor(m),
		middleware.RequireAuth(jwtManager),
	)

	mux := http.NewServeMux()

	// Register Connect services
	mux.Handle(service.NewGroupService(groups).Handler(interceptors))
	mux.Handle(service.NewChatService(stream, nil).Handler(interceptors))
	mux.Handle(service.NewCollectionService(editor).Handler(interceptors))
	mux.Handle(service.NewSessionService(registry, groups).Handler(interceptors))

	blobPrefix, err := blobPathPrefix(cfg.Blob.BaseURL)
	if err != nil {
		return err
	}
	mux.Handle(blobPrefix, blobs.Handler(blobPrefix))
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	// Add logging and CORS middleware, then wrap with h2c for HTTP/2
	// without TLS.
	handler := h2c.NewHandler(loggingMiddleware(corsMiddleware(mux)), &http2.Server{})
	server := newHTTPServer(ctx, cfg.Addr(), handler)

	errc := make(chan error, 1)
	go func() {
		slog.Info("Connect server starting", "address", cfg.Addr(), "environment", cfg.Environment)
		errc <- server.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	slog.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// newHTTPServer derives every request context from ctx, so open streams
// end as soon as ctx is cancelled and Shutdown does not wait on them.
func newHTTPServer(ctx context.Context, addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:        addr,
		Handler:     handler,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
}

// blobPathPrefix returns the path of the blob base URL with a trailing
// slash, the pattern the blob handler is mounted on.
func blobPathPrefix(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(u.Path, "/") + "/", nil
}

// loggingMiddleware logs every HTTP request at debug level; RPCs are
// logged by the interceptor.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("Request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

// corsMiddleware adds CORS headers for browser access
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, Connect-Protocol-Version, Connect-Timeout-Ms")
		w.Header().Set("Access-Control-Expose-Headers", "Connect-Protocol-Version, Connect-Timeout-Ms")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
