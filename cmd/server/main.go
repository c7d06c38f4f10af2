package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"candlestream/internal/auxcache"
	"candlestream/internal/config"
	"candlestream/internal/dexfeed"
	"candlestream/internal/manager"
	"candlestream/internal/metrics"
	"candlestream/internal/session"
	"candlestream/internal/supervisor"
)

// Server is the top-level application: configuration, the tag registry,
// the connected-session hub, and the two supervised background loops that
// keep it alive (heartbeat eviction, broadcast scheduling).
type Server struct {
	config     *config.Config
	logger     *zap.Logger
	supervisor *supervisor.Supervisor
	manager    *manager.Manager
	hub        *session.Hub
	metrics    *metrics.PrometheusMetrics
	auxMirror  *auxcache.Mirror

	ctx    context.Context
	cancel context.CancelFunc
}

func main() {
	app := &Server{}

	if err := app.initialize(); err != nil {
		fmt.Printf("failed to initialize candlestream: %v\n", err)
		os.Exit(1)
	}

	if err := app.start(); err != nil {
		fmt.Printf("failed to start candlestream: %v\n", err)
		os.Exit(1)
	}

	app.waitForShutdown()

	if err := app.shutdown(); err != nil {
		fmt.Printf("error during shutdown: %v\n", err)
		os.Exit(1)
	}
}

func (app *Server) initialize() error {
	var err error
	app.ctx, app.cancel = context.WithCancel(context.Background())

	app.logger, err = app.setupLogger()
	if err != nil {
		return fmt.Errorf("failed to setup logger: %w", err)
	}
	app.logger.Info("initializing candlestream")

	execPath, _ := os.Executable()
	execDir := filepath.Dir(execPath)
	configPath := filepath.Join(execDir, "configs", "config.yaml")
	if _, statErr := os.Stat(configPath); os.IsNotExist(statErr) {
		configPath = "configs/config.yaml"
	}

	loader := config.NewConfigLoader()
	app.config, err = loader.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := app.config.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	var catalog *dexfeed.Catalog
	if app.config.Dex.Enabled {
		catalog, err = dexfeed.LoadCatalog(app.config.Dex.NetworkCatalog)
		if err != nil {
			return fmt.Errorf("failed to load DEX network catalog: %w", err)
		}
	}

	app.manager = manager.New(catalog, app.config.IsExchangeEnabled)
	app.hub = session.NewHub(app.manager, app.logger, app.config.GetHeartbeatInterval(), app.config.GetHeartbeatTimeout())
	app.supervisor = supervisor.NewSupervisor(app.logger)

	if app.config.Monitoring.MetricsEnabled {
		app.metrics = metrics.NewPrometheusMetrics()
		app.manager.SetMetrics(app.metrics)
		app.hub.SetMetrics(app.metrics)
	}

	if app.config.Redis.Enabled {
		mirror, err := auxcache.NewMirror(auxcache.ClientConfig{
			Addr:     app.config.GetRedisAddress(),
			DB:       app.config.GetRedisDatabase(),
			Password: app.config.Redis.Password,
			PoolSize: app.config.Redis.PoolSize,
		}, app.logger)
		if err != nil {
			app.logger.Warn("auxiliary cache mirror disabled: failed to connect", zap.Error(err))
		} else {
			mirror.Metrics = app.metrics
			app.auxMirror = mirror
			app.hub.SetAuxMirror(mirror)
		}
	}

	app.logger.Info("core components initialized")
	return nil
}

func (app *Server) setupLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	cfg.OutputPaths = []string{"stdout"}
	return cfg.Build()
}

func (app *Server) start() error {
	app.logger.Info("starting candlestream")

	if err := app.supervisor.AddWorker(supervisor.WorkerConfig{
		Name:           "heartbeat",
		MaxRetries:     0,
		InitialBackoff: time.Second,
		MaxBackoff:     30 * time.Second,
		BackoffFactor:  2.0,
	}, func(ctx context.Context) error {
		app.hub.RunHeartbeat(ctx)
		return ctx.Err()
	}); err != nil {
		return fmt.Errorf("failed to register heartbeat worker: %w", err)
	}

	if err := app.supervisor.AddWorker(supervisor.WorkerConfig{
		Name:           "broadcast",
		MaxRetries:     0,
		InitialBackoff: time.Second,
		MaxBackoff:     30 * time.Second,
		BackoffFactor:  2.0,
	}, func(ctx context.Context) error {
		app.hub.RunBroadcast(ctx)
		return ctx.Err()
	}); err != nil {
		return fmt.Errorf("failed to register broadcast worker: %w", err)
	}

	if err := app.supervisor.Start(); err != nil {
		return fmt.Errorf("failed to start supervisor: %w", err)
	}

	go app.startWebSocketServer()

	if app.metrics != nil {
		if err := app.metrics.Start(fmt.Sprintf("%d", app.config.Monitoring.MetricsPort)); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
	}

	app.logger.Info("candlestream operational", zap.String("listen_addr", app.config.Server.ListenAddr))
	return nil
}

func (app *Server) startWebSocketServer() {
	upgrader := websocket.Upgrader{
		CheckOrigin:       func(r *http.Request) bool { return true },
		EnableCompression: true,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		host, port := session.ResolveClientAddr(r)

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			app.logger.Error("failed to upgrade websocket connection", zap.Error(err))
			return
		}

		sess := session.New(conn, host, port, app.logger)
		app.hub.Register(sess)
		defer app.hub.Unregister(sess)

		if err := sess.SendConnected(); err != nil {
			app.logger.Warn("failed to send connect notice", zap.Error(err))
		}

		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					app.logger.Warn("session closed unexpectedly", zap.Error(err))
				}
				return
			}
			sess.Touch()
			app.hub.HandleMessage(app.ctx, sess, raw)
		}
	})

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	app.logger.Info("starting websocket server", zap.String("addr", app.config.Server.ListenAddr))
	if err := http.ListenAndServe(app.config.Server.ListenAddr, mux); err != nil {
		app.logger.Fatal("websocket server failed", zap.Error(err))
	}
}

func (app *Server) waitForShutdown() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	app.logger.Info("received shutdown signal", zap.String("signal", sig.String()))
}

func (app *Server) shutdown() error {
	app.logger.Info("shutting down candlestream")

	app.hub.CloseAll()
	app.cancel()

	if err := app.supervisor.Stop(); err != nil {
		app.logger.Error("error stopping supervisor", zap.Error(err))
	}
	if app.metrics != nil {
		if err := app.metrics.Stop(); err != nil {
			app.logger.Error("error stopping metrics server", zap.Error(err))
		}
	}
	if app.auxMirror != nil {
		if err := app.auxMirror.Close(); err != nil {
			app.logger.Error("error closing auxiliary cache mirror", zap.Error(err))
		}
	}

	app.logger.Info("candlestream shutdown complete")
	return nil
}
