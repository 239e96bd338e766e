package authflow

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/MrEthical07/authflow/internal/audit"
	"github.com/MrEthical07/authflow/internal/rate"
	"github.com/MrEthical07/authflow/session"
	"github.com/MrEthical07/authflow/validate"
	"golang.org/x/sync/singleflight"
)

// Coordinator runs credential actions through validation, rate limiting and
// the IdentityProvider, owns the session record and publishes the resulting
// [AuthState]. Construct it with [Builder.Build] and call [Coordinator.Start]
// before any other operation. All methods are safe for concurrent use.
type Coordinator struct {
	config    Config
	validator *validate.Validator
	limiter   rate.Limiter
	store     *session.Store
	provider  IdentityProvider
	network   ConnectivityCheck
	caches    []DerivedCache
	logger    *slog.Logger
	audit     *audit.Dispatcher
	metrics   *Metrics
	now       func() time.Time
	closers   []io.Closer

	state   *stateMachine
	flights singleflight.Group

	mu        sync.Mutex
	flight    flight
	flightSeq uint64
	started   bool
	closed    bool

	// writeMu orders session writes against sign-out. epoch and subject are
	// guarded by it.
	writeMu sync.Mutex
	epoch   uint64
	subject *SubjectIdentity
}

// flight is the action currently in progress. The zero value means idle.
type flight struct {
	key string
	id  uint64
}

// Start restores the persisted session and resolves the initial Loading state
// to Authenticated or Unauthenticated. A record that cannot be decoded is
// cleared and treated as signed out. A backend failure moves to Error and may
// be retried by calling Start again.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.started {
		return nil
	}
	if c.state.get().Kind == StateError {
		c.state.transition(stateLoading)
	}

	s, err := c.store.Load(ctx)
	if errors.Is(err, session.ErrCorrupt) {
		c.logger.Warn("authflow: discarding corrupt session record", slog.String("error", err.Error()))
		err = c.store.Clear(ctx)
		s = session.Session{}
	}
	if err != nil {
		c.state.transition(errorState(KindProviderUnavailable, msgSessionLoad))
		return newAuthError(KindProviderUnavailable, msgSessionLoad, err)
	}

	c.writeMu.Lock()
	if s.IsLoggedIn {
		c.subject = &SubjectIdentity{SubjectID: s.UserID, Email: s.Email}
		c.state.transition(stateAuthenticated)
	} else {
		c.state.transition(stateUnauthenticated)
	}
	c.writeMu.Unlock()

	c.started = true
	if s.IsLoggedIn {
		c.emitAudit(ctx, AuditSessionRestored, "", s.Email, s.UserID, nil)
	}
	return nil
}

// State returns the current state.
func (c *Coordinator) State() AuthState {
	return c.state.get()
}

// Subscribe returns a channel that receives the current state immediately and
// every later transition. A slow reader only loses intermediate states; the
// most recent one is always delivered. Call cancel to stop receiving; the
// channel is closed by cancel or by Close.
func (c *Coordinator) Subscribe(buffer int) (states <-chan AuthState, cancel func()) {
	return c.state.subscribe(buffer)
}

// CurrentSubject returns the signed-in identity. After a cold start only
// SubjectID and Email are known.
func (c *Coordinator) CurrentSubject() (SubjectIdentity, bool) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.subject == nil {
		return SubjectIdentity{}, false
	}
	return *c.subject, true
}

// Close releases the audit dispatcher and any backend the builder opened, and
// closes every subscriber channel. In-flight actions finish normally.
func (c *Coordinator) Close() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.state.close()
	c.audit.Close()

	var errs []error
	for _, cl := range c.closers {
		if err := cl.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// AuditDropped returns the number of audit events dropped because the buffer
// was full.
func (c *Coordinator) AuditDropped() uint64 {
	if c == nil {
		return 0
	}
	return c.audit.Dropped()
}

func (c *Coordinator) MetricsSnapshot() MetricsSnapshot {
	if c == nil {
		return (*Metrics)(nil).Snapshot()
	}
	return c.metrics.Snapshot()
}

func (c *Coordinator) currentEpoch() uint64 {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.epoch
}

func (c *Coordinator) usable() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.closed:
		return ErrClosed
	case !c.started:
		return ErrNotStarted
	}
	return nil
}
