// Package daemon wires the courier components into an fx application.
package daemon

import (
	"context"
	"errors"
	"sync"

	"github.com/mrezende/courier/internal/bus"
	"github.com/mrezende/courier/internal/codec"
	"github.com/mrezende/courier/internal/convo"
	"github.com/mrezende/courier/internal/lock"
	"github.com/mrezende/courier/internal/logging"
	"github.com/mrezende/courier/internal/profile"
	"github.com/mrezende/courier/internal/remote"
	"github.com/mrezende/courier/internal/remote/sqlitestore"
	"github.com/mrezende/courier/internal/screen"
	"github.com/mrezende/courier/internal/thread"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved profile configuration passed to the fx module.
type Params struct {
	ProfileName string
	StorePath   string // optional override; empty = profile default
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideLock,
			provideStore,
			provideRemote,
			provideIndex,
			provideThreads,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(profile.LogPath(p.ProfileName), p.ProfileName)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := profile.EnsureDir(p.ProfileName); err != nil {
		return nil, err
	}
	logger.Info("acquiring profile lock", zap.String("profile", p.ProfileName))
	l, err := lock.Acquire(profile.Dir(p.ProfileName))
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

func provideStore(p Params, logger *zap.Logger) (*sqlitestore.DB, error) {
	storePath := p.StorePath
	if storePath == "" {
		storePath = profile.StorePath(p.ProfileName)
	}
	db, err := sqlitestore.Open(storePath)
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
	logger.Info("store initialized", zap.String("path", storePath))
	return db, nil
}

func provideRemote(db *sqlitestore.DB) remote.Store {
	return db
}

func provideIndex(store remote.Store, logger *zap.Logger) *convo.Index {
	return convo.NewIndex(store, logger)
}

func provideThreads(store remote.Store, logger *zap.Logger) *thread.Store {
	return thread.NewStore(store, logger)
}

// watcher follows the signed-in user's conversation index and tails every
// thread it learns about, logging updates. Each followed thread gets a screen
// machine so a transition bug shows up in the daemon log, not just in a view.
// Callbacks arrive on subscription goroutines, so the maps are guarded.
type watcher struct {
	mu      sync.Mutex
	notify  *bus.Bus
	indexSb *remote.Subscription
	threads map[string]*remote.Subscription
	screens map[string]*screen.Machine
	unsub   func()
}

func (w *watcher) stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.indexSb.Cancel()
	for _, sub := range w.threads {
		sub.Cancel()
	}
	for _, m := range w.screens {
		_ = m.Transition(screen.Closed)
	}
	w.unsub()
}

func registerLifecycle(lc fx.Lifecycle, p Params, db *sqlitestore.DB, ix *convo.Index, th *thread.Store, lk *lock.Lock, logger *zap.Logger) {
	w := &watcher{
		notify:  bus.New(),
		threads: make(map[string]*remote.Subscription),
		screens: make(map[string]*screen.Machine),
	}

	stateCh, unsub := w.notify.Subscribe("screen", 16)
	w.unsub = unsub
	go func() {
		for evt := range stateCh {
			if sc, ok := evt.Value.(screen.StateChange); ok {
				logger.Info("screen state changed",
					zap.String("from", string(sc.From)),
					zap.String("to", string(sc.To)))
			}
		}
	}()

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			session, err := profile.LoadSession(profile.SessionPath(p.ProfileName))
			if errors.Is(err, profile.ErrNoSession) {
				logger.Info("no session; sign in with courierctl login")
				return nil
			}
			if err != nil {
				return err
			}

			owner := session.Identity()
			logger.Info("session restored",
				zap.String("identity", owner.String()),
				zap.String("display_name", session.DisplayName))

			w.indexSb = ix.Fetch(owner, func(summaries []convo.Summary) {
				for _, s := range summaries {
					w.follow(th, s.ID, logger)
				}
			})
			return nil
		},
		OnStop: func(_ context.Context) error {
			w.stop()
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}

func (w *watcher) follow(th *thread.Store, conversationID string, logger *zap.Logger) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.threads[conversationID]; ok {
		return
	}
	logger.Info("following conversation", zap.String("conversation_id", conversationID))

	m := screen.NewMachine(w.notify)
	if err := m.Transition(screen.Loading); err != nil {
		logger.Warn("screen transition failed", zap.Error(err))
	}
	w.screens[conversationID] = m

	w.threads[conversationID] = th.FetchAll(conversationID, func(msgs []codec.Message) {
		if m.Current() == screen.Loading {
			if err := m.Transition(screen.Live); err != nil {
				logger.Warn("screen transition failed", zap.Error(err))
			}
		}
		last := msgs[len(msgs)-1]
		logger.Info("message received",
			zap.String("conversation_id", conversationID),
			zap.String("msg_id", last.ID),
			zap.String("sender", last.Sender.String()),
			zap.String("type", last.Kind.Tag()))
	})
}
