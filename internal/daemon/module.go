// Package daemon composes the gateway with fx: stores, adapter, reactor,
// HTTP API and the health socket, started and stopped in dependency order.
package daemon

import (
	"context"
	"os"

	"github.com/matheus3301/wppgw/internal/api"
	"github.com/matheus3301/wppgw/internal/bus"
	"github.com/matheus3301/wppgw/internal/config"
	"github.com/matheus3301/wppgw/internal/lock"
	"github.com/matheus3301/wppgw/internal/logging"
	"github.com/matheus3301/wppgw/internal/persistence"
	"github.com/matheus3301/wppgw/internal/phone"
	"github.com/matheus3301/wppgw/internal/qr"
	"github.com/matheus3301/wppgw/internal/session"
	"github.com/matheus3301/wppgw/internal/status"
	"github.com/matheus3301/wppgw/internal/store"
	intsync "github.com/matheus3301/wppgw/internal/sync"
	"github.com/matheus3301/wppgw/internal/wa"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
	Config      *config.Config
	SocketPath  string // optional override for testing; empty = use default
}

// eventBuffer absorbs bursts of lifecycle events (history sync progress).
const eventBuffer = 64

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideTracker,
			provideEvents,
			provideLock,
			provideStore,
			provideAdapter,
			provideSyncEngine,
			provideHandlers,
			NewHTTPServer,
			NewHealthServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.SessionName), p.SessionName, p.Config.LogLevel)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideTracker(b *bus.Bus) *status.Tracker {
	return status.NewTracker(b)
}

func provideEvents() chan status.Event {
	return make(chan status.Event, eventBuffer)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.SessionName); err != nil {
		return nil, err
	}
	logger.Info("acquiring session lock", zap.String("session", p.SessionName))
	l, err := lock.Acquire(session.Dir(p.SessionName))
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return l, nil
}

// provideStore depends on the lock so two daemons never migrate the same file.
func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := session.MirrorDBPath(p.SessionName)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", storeFields(context.Background(), db, dbPath, logger)...)
	return db, nil
}

// storeFields describes the mirror for the startup log. A count that cannot
// be read is logged and left out.
func storeFields(ctx context.Context, db *store.DB, dbPath string, logger *zap.Logger) []zap.Field {
	fields := []zap.Field{zap.String("path", dbPath)}
	if chats, err := db.ChatCount(ctx); err != nil {
		logger.Warn("failed to count chats", zap.Error(err))
	} else {
		fields = append(fields, zap.Int("chats", chats))
	}
	if msgs, err := db.MessageCount(ctx); err != nil {
		logger.Warn("failed to count messages", zap.Error(err))
	} else {
		fields = append(fields, zap.Int("messages", msgs))
	}
	return fields
}

// provideAdapter returns a nil adapter when the persistence backend cannot be
// opened. The HTTP API still serves; adapter-dependent routes answer 503.
func provideAdapter(lc fx.Lifecycle, p Params, db *store.DB, events chan status.Event, b *bus.Bus, logger *zap.Logger) *wa.Adapter {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.StopHook(cancel))

	backend, err := persistence.New(p.Config.Persistence, session.SessionDBPath(p.SessionName))
	if err != nil {
		logger.Error("persistence backend unavailable", zap.Error(err))
		return nil
	}
	container, err := backend.Open(ctx, logging.WhatsmeowLogger(logger.Named("sqlstore")))
	if err != nil {
		logger.Error("persistence backend unavailable", zap.String("backend", backend.Name()), zap.Error(err))
		return nil
	}
	logger.Info("persistence backend ready", zap.String("backend", backend.Name()))

	adapter, err := wa.NewAdapter(ctx, container, wa.Options{
		CallTimeout:   p.Config.Adapter.CallTimeout.Duration,
		SendInterval:  p.Config.Adapter.SendInterval.Duration,
		SendBurst:     p.Config.Adapter.SendBurst,
		RemoteBackend: backend.Remote(),
	}, db, events, b, logger.Named("wa"))
	if err != nil {
		logger.Error("adapter initialization failed", zap.Error(err))
		return nil
	}
	return adapter
}

func provideSyncEngine(db *store.DB, b *bus.Bus, logger *zap.Logger) *intsync.Engine {
	return intsync.NewEngine(db, b, logger.Named("sync"))
}

func provideHandlers(p Params, tracker *status.Tracker, adapter *wa.Adapter, logger *zap.Logger) *api.Handlers {
	// A nil *wa.Adapter must reach the handlers as a nil interface.
	var sess api.Session
	if adapter != nil {
		sess = adapter
	}
	return api.NewHandlers(tracker, sess, phone.FromConfig(p.Config.Phone), logger.Named("api"))
}

func registerLifecycle(
	lc fx.Lifecycle,
	p Params,
	httpSrv *HTTPServer,
	healthSrv *HealthServer,
	lk *lock.Lock,
	db *store.DB,
	adapter *wa.Adapter,
	engine *intsync.Engine,
	tracker *status.Tracker,
	events chan status.Event,
	b *bus.Bus,
	logger *zap.Logger,
) {
	reactor := status.NewReactor(tracker, qr.NewEncoder(), logger.Named("status"))
	if p.Config.Adapter.PrintQR {
		reactor.OnQR = func(raw string) { qr.PrintTerminal(os.Stderr, raw) }
	}
	ctx, cancel := context.WithCancel(context.Background())
	reactorDone := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(startCtx context.Context) error {
			// Sync engine subscribes to wa.* before the adapter can publish.
			engine.Start(ctx)

			go func() {
				defer close(reactorDone)
				reactor.Run(ctx, events)
			}()

			// Subscribe before anything can publish so no transition is missed.
			statusCh, unsubStatus := b.Subscribe(bus.NamespaceSession, 16)
			activityCh, unsubActivity := b.Subscribe(bus.NamespaceMessage, 64)
			syncCh, unsubSync := b.Subscribe(bus.NamespaceSync, 16)
			go func() {
				defer unsubStatus()
				watchStatus(ctx, statusCh, healthSrv, engine.Reconciler(), logger)
			}()
			go func() {
				defer unsubActivity()
				watchActivity(ctx, activityCh, logger.Named("activity"))
			}()
			go func() {
				defer unsubSync()
				watchActivity(ctx, syncCh, logger.Named("activity"))
			}()

			if err := httpSrv.Start(); err != nil {
				return err
			}
			if err := healthSrv.Start(); err != nil {
				return err
			}

			if adapter == nil {
				logger.Warn("adapter unavailable, serving status-only API")
				return nil
			}
			if err := adapter.Start(ctx); err != nil {
				logger.Error("adapter start failed", zap.Error(err))
				tracker.MarkDisconnected()
			}
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			if adapter != nil {
				adapter.Disconnect()
			}
			if err := httpSrv.Stop(stopCtx); err != nil {
				logger.Warn("http shutdown", zap.Error(err))
			}
			healthSrv.Stop()
			engine.Stop()
			cancel()
			<-reactorDone
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped", zap.Uint64("bus_dropped", b.Dropped()))
			_ = logger.Sync()
			return nil
		},
	})
}
