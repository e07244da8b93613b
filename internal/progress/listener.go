package progress

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/ecoquest-ledger/internal/domain"
)

// Subscriber opens the push channel of a session
type Subscriber interface {
	SubscribeToProfileChanges(ctx context.Context, session domain.Session, onChange func(domain.ProfileChange)) (domain.Subscription, error)
}

var errListenerStarted = errors.New("listener already started")

// Listener applies pushed profile changes to the store until closed
type Listener struct {
	subscriber Subscriber
	store      *Store
	session    domain.Session
	logger     *slog.Logger

	mu  sync.Mutex
	sub domain.Subscription
}

// NewListener creates a listener for one session
func NewListener(subscriber Subscriber, store *Store, session domain.Session, logger *slog.Logger) *Listener {
	return &Listener{
		subscriber: subscriber,
		store:      store,
		session:    session,
		logger:     logger,
	}
}

// Start subscribes to the session owner's profile changes
func (l *Listener) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sub != nil {
		return errListenerStarted
	}

	sub, err := l.subscriber.SubscribeToProfileChanges(ctx, l.session, l.apply)
	if err != nil {
		return err
	}
	l.sub = sub
	return nil
}

// Close releases the subscription. It is safe to call more than once.
func (l *Listener) Close() error {
	l.mu.Lock()
	sub := l.sub
	l.sub = nil
	l.mu.Unlock()

	if sub == nil {
		return nil
	}
	return sub.Unsubscribe()
}

// apply overlays the changed fields on the current snapshot
func (l *Listener) apply(change domain.ProfileChange) {
	if change.UserID != "" && change.UserID != l.session.UserID {
		return
	}
	if change.Empty() {
		return
	}

	next := change.Overlay(l.store.Read())
	if err := l.store.Initialize(next); err != nil {
		l.logger.Warn("rejected profile change", "user_id", l.session.UserID, "error", err)
	}
}
