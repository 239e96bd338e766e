package authflow

import (
	"context"
	"log/slog"

	"github.com/MrEthical07/authflow/session"
)

// SignOut ends the session. The provider sign-out is best effort: its failure
// is logged and does not stop the local teardown. The session record and every
// registered DerivedCache are then cleared and the state is forced to
// Unauthenticated, whatever it was. An action still in flight will not write
// its session afterwards. The provider call does not hold the session lock, so
// CurrentSubject and the first-launch flag stay readable while it runs.
//
// The returned error reports only a failure to clear the session record; the
// state is Unauthenticated either way.
func (c *Coordinator) SignOut(ctx context.Context) error {
	if err := c.usable(); err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	// Teardown runs to completion even if the caller gives up.
	local := context.WithoutCancel(ctx)

	// The epoch bump stops in-flight actions from writing a session while the
	// provider call runs outside the lock.
	c.writeMu.Lock()
	c.epoch++
	userID := ""
	if c.subject != nil {
		userID = c.subject.SubjectID
	}
	c.writeMu.Unlock()

	providerCtx, cancel := context.WithTimeout(local, c.config.Provider.SignOutTimeout)
	if err := c.provider.SignOut(providerCtx); err != nil {
		c.metrics.Inc(MetricSignOutProviderFailure)
		c.logger.Warn("authflow: provider sign-out failed",
			slog.String("action", "sign_out"),
			slog.String("error", err.Error()),
		)
	}
	cancel()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	// Anything that started during the provider call is superseded too.
	c.epoch++
	clearErr := c.store.Clear(local)
	if clearErr != nil {
		c.logger.Error("authflow: session clear failed",
			slog.String("action", "sign_out"),
			slog.String("error", clearErr.Error()),
		)
	}

	for _, cache := range c.caches {
		if err := cache.Purge(local); err != nil {
			c.logger.Warn("authflow: derived cache purge failed",
				slog.String("action", "sign_out"),
				slog.String("cache", cache.Name()),
				slog.String("error", err.Error()),
			)
		}
	}

	c.subject = nil
	c.state.force(stateUnauthenticated)
	c.metrics.Inc(MetricSignOut)

	if clearErr != nil {
		ae := newAuthError(KindProviderUnavailable, msgSessionClear, clearErr)
		c.emitAudit(ctx, AuditSignOut, "", "", userID, ae)
		return ae
	}
	c.emitAudit(ctx, AuditSignOut, "", "", userID, nil)
	return nil
}

// ClearError acknowledges an Error state and returns to Unauthenticated. In
// any other state it does nothing.
func (c *Coordinator) ClearError() {
	c.state.transitionFrom(StateError, stateUnauthenticated)
}

// IsFirstLaunch reports whether onboarding has not been marked consumed since
// the session record was created or last cleared.
func (c *Coordinator) IsFirstLaunch(ctx context.Context) (bool, error) {
	if err := c.usable(); err != nil {
		return false, err
	}
	s, err := c.store.Load(ctx)
	if err != nil {
		return false, err
	}
	return !s.FirstLaunchConsumed, nil
}

// MarkFirstLaunchConsumed records that onboarding has been shown.
func (c *Coordinator) MarkFirstLaunchConsumed(ctx context.Context) error {
	if err := c.usable(); err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.store.Save(ctx, session.FirstLaunchDone())
}
