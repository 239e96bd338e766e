package authflow

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/MrEthical07/authflow/internal"
	"github.com/MrEthical07/authflow/internal/rate"
	"github.com/MrEthical07/authflow/session"
	"github.com/MrEthical07/authflow/validate"
)

// outcome is what a successful provider call yields: a subject for actions
// that establish a session, a challenge id for OTP requests.
type outcome struct {
	subject     SubjectIdentity
	challengeID string
}

// action describes one credential submission as it moves through the
// pipeline. Every field except call is derived from sanitized input.
type action struct {
	method     Method
	eventType  string
	rateAction string
	identifier string
	email      string
	policy     RateLimitPolicy
	// secret is hashed into the flight key so that only byte-identical
	// submissions are coalesced.
	secret string
	// session is set for actions whose success writes the session record.
	session bool

	success MetricID
	failure MetricID

	validate func() *AuthError
	call     func(ctx context.Context) (outcome, error)
}

func (a *action) rateKey() string {
	return rate.Key(a.rateAction, a.identifier)
}

func (a *action) flightKey() string {
	sum := sha256.Sum256([]byte(a.secret))
	return string(a.method) + "|" + a.rateKey() + "|" + hex.EncodeToString(sum[:])
}

type fieldCheck struct {
	kind  validate.Kind
	value string
}

func (c *Coordinator) firstInvalid(checks ...fieldCheck) *AuthError {
	for _, fc := range checks {
		if r := c.validator.Validate(fc.kind, fc.value); !r.Valid() {
			return newAuthError(KindValidation, r.Reason, r.Err())
		}
	}
	return nil
}

// run admits a at most once at a time. An identical submission made while a
// is in flight joins it and shares its result; any other submission is
// refused with ErrBusy and leaves the state alone.
func (c *Coordinator) run(ctx context.Context, a *action) (outcome, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	key := a.flightKey()

	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return outcome{}, ErrClosed
	case !c.started:
		c.mu.Unlock()
		return outcome{}, ErrNotStarted
	case c.flight.key != "" && c.flight.key != key:
		c.mu.Unlock()
		c.metrics.Inc(MetricBusyRejected)
		return outcome{}, ErrBusy
	}

	joined := c.flight.key != ""
	if !joined {
		c.flightSeq++
		c.flight = flight{key: key, id: c.flightSeq}
	}
	id := c.flight.id
	// The flight is released inside fn, under c.mu, so a caller that still
	// sees it here is guaranteed to join the live call.
	ch := c.flights.DoChan(key+"#"+strconv.FormatUint(id, 10), func() (any, error) {
		defer c.endFlight(id)
		return c.execute(ctx, a)
	})
	c.mu.Unlock()

	if !joined {
		res := <-ch
		return flightResult(res.Val, res.Err)
	}

	c.metrics.Inc(MetricDuplicateCoalesced)
	select {
	case res := <-ch:
		return flightResult(res.Val, res.Err)
	case <-ctx.Done():
		return outcome{}, ctx.Err()
	}
}

func flightResult(v any, err error) (outcome, error) {
	if err != nil {
		return outcome{}, err
	}
	return v.(outcome), nil
}

func (c *Coordinator) endFlight(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.flight.id == id {
		c.flight = flight{}
	}
}

// execute is the pipeline proper: connectivity, validation and the rate limit
// are checked before Loading; the attempt is recorded before the provider is
// called and is never rolled back.
func (c *Coordinator) execute(ctx context.Context, a *action) (outcome, error) {
	if c.state.get().Kind == StateAuthenticated {
		return outcome{}, ErrAlreadyAuthenticated
	}
	epoch := c.currentEpoch()

	if c.network != nil && !c.network.IsNetworkAvailable() {
		c.metrics.Inc(MetricOffline)
		return outcome{}, c.reject(ctx, a, newAuthError(KindNetwork, msgOffline, nil))
	}
	if ae := a.validate(); ae != nil {
		c.metrics.Inc(MetricValidationRejected)
		return outcome{}, c.reject(ctx, a, ae)
	}

	key := a.rateKey()
	limited, err := c.limiter.IsRateLimited(ctx, key, a.policy.MaxAttempts, a.policy.Window)
	if err != nil {
		return outcome{}, c.reject(ctx, a, newAuthError(KindProviderUnavailable, msgProviderUnavailable, err))
	}
	if limited {
		c.metrics.Inc(MetricRateLimited)
		ae := newAuthError(KindRateLimited, msgRateLimited, nil)
		c.emitAudit(ctx, AuditRateLimited, a.method, a.identifier, "", ae)
		return outcome{}, c.reject(ctx, a, ae)
	}

	if !c.state.transition(stateLoading) {
		return outcome{}, ErrAlreadyAuthenticated
	}
	if err := c.limiter.RecordAttempt(ctx, key); err != nil {
		return outcome{}, c.fail(ctx, a, newAuthError(KindProviderUnavailable, msgProviderUnavailable, err))
	}

	out, err := c.callProvider(ctx, a.call)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			c.metrics.Inc(MetricCancelled)
			c.state.transitionFrom(StateLoading, stateUnauthenticated)
			return outcome{}, ctxErr
		}
		if errors.Is(err, ErrProviderTimeout) {
			c.metrics.Inc(MetricProviderTimeout)
		}
		kind, msg := classifyProviderError(ctx, err)
		return outcome{}, c.fail(ctx, a, newAuthError(kind, msg, err))
	}

	if !a.session {
		c.state.transitionFrom(StateLoading, stateUnauthenticated)
		c.metrics.Inc(a.success)
		c.emitAudit(ctx, a.eventType, a.method, a.identifier, "", nil)
		return out, nil
	}
	return c.establish(ctx, a, key, epoch, out)
}

// establish clears the rate-limit key, writes a fresh session and moves to
// Authenticated, unless a sign-out happened since the action began.
func (c *Coordinator) establish(ctx context.Context, a *action, key string, epoch uint64, out outcome) (outcome, error) {
	subject := out.subject
	if subject.SubjectID == "" {
		return outcome{}, c.fail(ctx, a, newAuthError(KindUnknown, msgUnknown, errors.New("provider returned an empty subject id")))
	}
	if subject.Email == "" {
		subject.Email = a.email
	}

	if err := c.limiter.Clear(ctx, key); err != nil {
		c.logger.Warn("authflow: rate limit clear failed",
			slog.String("action", a.rateAction),
			slog.String("error", err.Error()),
		)
	}

	token, err := internal.NewSessionToken(c.config.Session.TokenBytes)
	if err != nil {
		return outcome{}, c.fail(ctx, a, newAuthError(KindUnknown, msgSessionSave, err))
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.epoch != epoch {
		c.state.transitionFrom(StateLoading, stateUnauthenticated)
		return outcome{}, ErrInterrupted
	}
	// The provider already accepted the credential; a late cancel must not
	// leave it without a local session.
	if err := c.store.Save(context.WithoutCancel(ctx), session.SignedIn(subject.SubjectID, subject.Email, token)); err != nil {
		return outcome{}, c.fail(ctx, a, newAuthError(KindProviderUnavailable, msgSessionSave, err))
	}
	c.subject = &subject
	c.state.transitionFrom(StateLoading, stateAuthenticated)

	c.metrics.Inc(MetricSessionCreated)
	c.metrics.Inc(a.success)
	c.emitAudit(ctx, a.eventType, a.method, a.identifier, subject.SubjectID, nil)
	return outcome{subject: subject}, nil
}

// callProvider bounds call by the provider timeout. The call runs on its own
// goroutine so a provider that ignores its context cannot hold the pipeline
// past the deadline.
func (c *Coordinator) callProvider(ctx context.Context, call func(context.Context) (outcome, error)) (outcome, error) {
	callCtx, cancel := context.WithTimeoutCause(ctx, c.config.Provider.Timeout, ErrProviderTimeout)
	defer cancel()

	type result struct {
		out outcome
		err error
	}
	done := make(chan result, 1)
	start := time.Now()

	go func() {
		out, err := call(callCtx)
		done <- result{out: out, err: err}
	}()

	select {
	case r := <-done:
		c.metrics.Observe(MetricProviderLatency, time.Since(start))
		if r.err != nil && ctx.Err() == nil && errors.Is(context.Cause(callCtx), ErrProviderTimeout) {
			return outcome{}, ErrProviderTimeout
		}
		return r.out, r.err
	case <-callCtx.Done():
		c.metrics.Observe(MetricProviderLatency, time.Since(start))
		if err := ctx.Err(); err != nil {
			return outcome{}, err
		}
		return outcome{}, ErrProviderTimeout
	}
}

// reject records a pre-flight failure. The state moves straight to Error.
func (c *Coordinator) reject(ctx context.Context, a *action, ae *AuthError) error {
	c.state.transition(errorState(ae.Kind, ae.Message))
	c.metrics.Inc(a.failure)
	if ae.Kind != KindRateLimited {
		c.emitAudit(ctx, a.eventType, a.method, a.identifier, "", ae)
	}
	return ae
}

// fail records a failure after Loading.
func (c *Coordinator) fail(ctx context.Context, a *action, ae *AuthError) error {
	c.state.transitionFrom(StateLoading, errorState(ae.Kind, ae.Message))
	c.metrics.Inc(a.failure)
	c.emitAudit(ctx, a.eventType, a.method, a.identifier, "", ae)
	if ae.Cause != nil {
		c.logger.Debug("authflow: auth action failed",
			slog.String("action", a.rateAction),
			slog.String("kind", string(ae.Kind)),
			slog.String("error", ae.Cause.Error()),
		)
	}
	return ae
}
