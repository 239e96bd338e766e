package authflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/authflow/internal/rate"
	"github.com/MrEthical07/authflow/session"
)

func (e *testEnv) attempts(t *testing.T, key string, window time.Duration) int {
	t.Helper()
	mem, ok := e.c.limiter.(*rate.Memory)
	if !ok {
		t.Fatalf("expected in-memory limiter, got %T", e.c.limiter)
	}
	return mem.Attempts(key, window)
}

func nextState(t *testing.T, ch <-chan AuthState) AuthState {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for state")
		return AuthState{}
	}
}

func TestSignUpWeakPasswordRejectedBeforeProvider(t *testing.T) {
	env := newTestEnv(t, testConfig())

	_, err := env.c.SignUp(context.Background(), "Alice", "alice@example.com", "abc123", "abc123")
	wantKind(t, err, KindValidation)

	var ae *AuthError
	errors.As(err, &ae)
	if ae.Message != "Password must be at least 8 characters" {
		t.Fatalf("unexpected message %q", ae.Message)
	}
	if n := env.provider.registerCalls.Load(); n != 0 {
		t.Fatalf("provider must not be called, got %d calls", n)
	}
	if st := env.c.State(); st.Kind != StateError || st.Err != KindValidation {
		t.Fatalf("expected Error(VALIDATION), got %s", st)
	}
	if n := env.attempts(t, "signup_alice@example.com", time.Hour); n != 0 {
		t.Fatalf("validation failures must not record attempts, got %d", n)
	}
}

func TestSignUpPasswordMismatch(t *testing.T) {
	env := newTestEnv(t, testConfig())

	_, err := env.c.SignUp(context.Background(), "Alice", "alice@example.com", "Str0ng!Pass", "Str0ng!Pas")
	wantKind(t, err, KindValidation)
	if st := env.c.State(); st.Message != msgPasswordMismatch {
		t.Fatalf("expected mismatch message, got %q", st.Message)
	}
	if env.provider.registerCalls.Load() != 0 {
		t.Fatal("provider must not be called")
	}
}

func TestSignUpThroughSignInCredential(t *testing.T) {
	env := newTestEnv(t, testConfig())

	subject, err := env.c.SignIn(context.Background(), EmailPasswordConfirm{
		Name:     "  Alice   Liddell ",
		Email:    "Alice@Example.com",
		Password: "Str0ng!Pass",
		Confirm:  "Str0ng!Pass",
	})
	if err != nil {
		t.Fatalf("sign-up failed: %v", err)
	}
	if subject.DisplayName != "Alice Liddell" {
		t.Fatalf("expected sanitized name, got %q", subject.DisplayName)
	}
	if env.provider.registerCalls.Load() != 1 || env.provider.verifyCalls.Load() != 0 {
		t.Fatal("expected exactly one Register call")
	}
	if got := env.stored(t)[session.FieldUserEmail]; got != "alice@example.com" {
		t.Fatalf("expected normalized email persisted, got %q", got)
	}
	if env.c.MetricsSnapshot().Counters[MetricSignUpSuccess] != 1 {
		t.Fatal("expected sign-up success metric")
	}
}

func TestSixthSignInRateLimited(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.provider.set(func(p *fakeProvider) {
		p.verifyErr = &ProviderError{Code: "auth/wrong-password", Message: "The password is invalid"}
	})

	cred := EmailPassword{Email: "user@example.com", Password: "wrong"}
	for i := 0; i < 5; i++ {
		_, err := env.c.SignIn(context.Background(), cred)
		wantKind(t, err, KindCredentialRejected)
	}

	_, err := env.c.SignIn(context.Background(), cred)
	wantKind(t, err, KindRateLimited)
	if !errors.Is(err, ErrRateLimited) {
		t.Fatal("expected errors.Is(err, ErrRateLimited)")
	}
	if n := env.provider.verifyCalls.Load(); n != 5 {
		t.Fatalf("expected 5 provider calls, got %d", n)
	}
	if n := env.attempts(t, "login_user@example.com", 15*time.Minute); n != 5 {
		t.Fatalf("rate-limited attempt must not be recorded, got %d", n)
	}
	if st := env.c.State(); st.Err != KindRateLimited || st.Message != msgRateLimited {
		t.Fatalf("unexpected state %s", st)
	}

	// Case and whitespace variants share the key.
	_, err = env.c.SignIn(context.Background(), EmailPassword{Email: "  USER@example.COM ", Password: "wrong"})
	wantKind(t, err, KindRateLimited)

	env.clock.Advance(15*time.Minute + time.Second)
	_, err = env.c.SignIn(context.Background(), cred)
	wantKind(t, err, KindCredentialRejected)
	if n := env.provider.verifyCalls.Load(); n != 6 {
		t.Fatalf("expected the window to slide, got %d calls", n)
	}
}

func TestSignInSuccessPersistsSession(t *testing.T) {
	env := newTestEnv(t, testConfig())

	states, cancel := env.c.Subscribe(8)
	defer cancel()
	if s := nextState(t, states); s.Kind != StateUnauthenticated {
		t.Fatalf("expected current state first, got %s", s)
	}

	subject, err := env.c.SignIn(context.Background(), EmailPassword{Email: " User@Example.com ", Password: "Secret-pass1"})
	if err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	if subject.SubjectID != "uid-1" {
		t.Fatalf("unexpected subject %+v", subject)
	}

	if s := nextState(t, states); s.Kind != StateLoading {
		t.Fatalf("expected Loading, got %s", s)
	}
	if s := nextState(t, states); s.Kind != StateAuthenticated {
		t.Fatalf("expected Authenticated, got %s", s)
	}

	fields := env.stored(t)
	if fields[session.FieldIsLoggedIn] != "true" {
		t.Fatalf("expected is_logged_in=true, got %q", fields[session.FieldIsLoggedIn])
	}
	if fields[session.FieldUserID] != "uid-1" {
		t.Fatalf("unexpected user_id %q", fields[session.FieldUserID])
	}
	if fields[session.FieldUserEmail] != "user@example.com" {
		t.Fatalf("unexpected user_email %q", fields[session.FieldUserEmail])
	}
	if len(fields[session.FieldUserToken]) < 43 {
		t.Fatalf("expected a 32-byte base64url token, got %q", fields[session.FieldUserToken])
	}

	env.provider.mu.Lock()
	got, ok := env.provider.lastCred.(EmailPassword)
	env.provider.mu.Unlock()
	if !ok || got.Email != "user@example.com" {
		t.Fatalf("provider should receive normalized credential, got %v", env.provider.lastCred)
	}

	if cur, ok := env.c.CurrentSubject(); !ok || cur.SubjectID != "uid-1" {
		t.Fatalf("unexpected current subject %+v", cur)
	}
	if n := env.attempts(t, "login_user@example.com", 15*time.Minute); n != 0 {
		t.Fatalf("success must clear the key, got %d", n)
	}

	snap := env.c.MetricsSnapshot()
	if snap.Counters[MetricSignInSuccess] != 1 || snap.Counters[MetricSessionCreated] != 1 {
		t.Fatalf("unexpected counters %v", snap.Counters)
	}
}

func TestSignInFreshTokenEachTime(t *testing.T) {
	env := newTestEnv(t, testConfig())
	cred := EmailPassword{Email: "user@example.com", Password: "pw"}

	if _, err := env.c.SignIn(context.Background(), cred); err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	first := env.stored(t)[session.FieldUserToken]
	if err := env.c.SignOut(context.Background()); err != nil {
		t.Fatalf("SignOut failed: %v", err)
	}
	if _, err := env.c.SignIn(context.Background(), cred); err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	if second := env.stored(t)[session.FieldUserToken]; second == "" || second == first {
		t.Fatal("expected a new token per session")
	}
}

func TestSignInWhileAuthenticated(t *testing.T) {
	env := newTestEnv(t, testConfig())
	cred := EmailPassword{Email: "user@example.com", Password: "pw"}
	if _, err := env.c.SignIn(context.Background(), cred); err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}

	_, err := env.c.SignIn(context.Background(), EmailPassword{Email: "other@example.com", Password: "pw"})
	if !errors.Is(err, ErrAlreadyAuthenticated) {
		t.Fatalf("expected ErrAlreadyAuthenticated, got %v", err)
	}
	if env.c.State().Kind != StateAuthenticated {
		t.Fatal("state must not change")
	}
}

func TestSignOutProviderFailureStillClears(t *testing.T) {
	cache := &fakeCache{name: "recently_viewed", err: errors.New("disk full")}
	history := &fakeCache{name: "search_history"}
	env := newTestEnv(t, testConfig(), func(b *Builder) {
		b.WithDerivedCache(cache).WithDerivedCache(history)
	})

	if _, err := env.c.SignIn(context.Background(), EmailPassword{Email: "user@example.com", Password: "pw"}); err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	if err := env.c.MarkFirstLaunchConsumed(context.Background()); err != nil {
		t.Fatalf("MarkFirstLaunchConsumed failed: %v", err)
	}
	env.provider.set(func(p *fakeProvider) {
		p.signOutErr = &ProviderError{Message: "service unavailable"}
	})

	if err := env.c.SignOut(context.Background()); err != nil {
		t.Fatalf("SignOut must swallow provider failure, got %v", err)
	}

	s, err := env.c.store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if s.IsLoggedIn || s.UserID != "" || s.Token != "" || s.Email != "" {
		t.Fatalf("expected empty session, got %+v", s)
	}
	if len(env.stored(t)) != 0 {
		t.Fatalf("expected every field cleared, got %v", env.stored(t))
	}
	first, err := env.c.IsFirstLaunch(context.Background())
	if err != nil || !first {
		t.Fatalf("sign-out resets the first-launch flag, got %v %v", first, err)
	}
	if env.c.State().Kind != StateUnauthenticated {
		t.Fatalf("expected Unauthenticated, got %s", env.c.State())
	}
	if _, ok := env.c.CurrentSubject(); ok {
		t.Fatal("expected no subject after sign-out")
	}
	if cache.purged.Load() != 1 || history.purged.Load() != 1 {
		t.Fatal("expected every derived cache purged")
	}
	if env.c.MetricsSnapshot().Counters[MetricSignOutProviderFailure] != 1 {
		t.Fatal("expected provider failure metric")
	}
}

func TestSignOutProviderCallDoesNotBlockReads(t *testing.T) {
	env := newTestEnv(t, testConfig())
	if _, err := env.c.SignIn(context.Background(), EmailPassword{Email: "user@example.com", Password: "pw"}); err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}

	gate := make(chan struct{})
	env.provider.set(func(p *fakeProvider) { p.signOutGate = gate })

	done := make(chan error, 1)
	go func() { done <- env.c.SignOut(context.Background()) }()
	waitFor(t, func() bool { return env.provider.signOutCalls.Load() == 1 })

	read := make(chan struct{})
	go func() {
		_, _ = env.c.CurrentSubject()
		_ = env.c.MarkFirstLaunchConsumed(context.Background())
		close(read)
	}()
	select {
	case <-read:
	case <-time.After(time.Second):
		t.Fatal("reads blocked behind the provider sign-out call")
	}

	close(gate)
	if err := <-done; err != nil {
		t.Fatalf("SignOut failed: %v", err)
	}
	if _, ok := env.c.CurrentSubject(); ok {
		t.Fatal("expected no subject after sign-out")
	}
	if env.c.State().Kind != StateUnauthenticated {
		t.Fatalf("expected Unauthenticated, got %s", env.c.State())
	}
}

func TestSignOutFromErrorState(t *testing.T) {
	env := newTestEnv(t, testConfig())
	_, _ = env.c.SignIn(context.Background(), EmailPassword{Email: "bad", Password: "pw"})
	if env.c.State().Kind != StateError {
		t.Fatal("expected Error")
	}
	if err := env.c.SignOut(context.Background()); err != nil {
		t.Fatalf("SignOut failed: %v", err)
	}
	if env.c.State().Kind != StateUnauthenticated {
		t.Fatalf("expected Unauthenticated, got %s", env.c.State())
	}
}

func TestProviderTimeoutIsNetworkAndCountsAttempt(t *testing.T) {
	cfg := testConfig()
	cfg.Provider.Timeout = 20 * time.Millisecond
	env := newTestEnv(t, cfg)

	gate := make(chan struct{})
	defer close(gate)
	env.provider.set(func(p *fakeProvider) {
		p.gate = gate
		p.ignoreCtx = true
	})

	_, err := env.c.SignIn(context.Background(), EmailPassword{Email: "user@example.com", Password: "pw"})
	wantKind(t, err, KindNetwork)
	if !errors.Is(err, ErrProviderTimeout) {
		t.Fatalf("expected timeout cause, got %v", err)
	}
	if st := env.c.State(); st.Err != KindNetwork || st.Message != msgTimeout {
		t.Fatalf("unexpected state %s", st)
	}
	if n := env.attempts(t, "login_user@example.com", 15*time.Minute); n != 1 {
		t.Fatalf("timeout must count as an attempt, got %d", n)
	}
	if env.c.MetricsSnapshot().Counters[MetricProviderTimeout] != 1 {
		t.Fatal("expected timeout metric")
	}
}

func TestCancellationKeepsAttempt(t *testing.T) {
	env := newTestEnv(t, testConfig())
	gate := make(chan struct{})
	defer close(gate)
	env.provider.set(func(p *fakeProvider) { p.gate = gate })

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		for env.provider.verifyCalls.Load() == 0 {
			time.Sleep(time.Millisecond)
		}
		cancel()
	}()

	_, err := env.c.SignIn(ctx, EmailPassword{Email: "user@example.com", Password: "pw"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if env.c.State().Kind != StateUnauthenticated {
		t.Fatalf("expected Unauthenticated after cancel, got %s", env.c.State())
	}
	if n := env.attempts(t, "login_user@example.com", 15*time.Minute); n != 1 {
		t.Fatalf("cancel must not roll back the attempt, got %d", n)
	}
}

func TestDuplicateSubmitsCoalesced(t *testing.T) {
	env := newTestEnv(t, testConfig())
	gate := make(chan struct{})
	env.provider.set(func(p *fakeProvider) {
		p.gate = gate
		p.verifyErr = &ProviderError{Code: "auth/user-not-found"}
	})

	cred := EmailPassword{Email: "user@example.com", Password: "pw"}
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.c.SignIn(context.Background(), cred)
		}(i)
	}

	waitFor(t, func() bool { return env.c.metrics.Value(MetricDuplicateCoalesced) == 1 })
	close(gate)
	wg.Wait()

	for _, err := range errs {
		wantKind(t, err, KindCredentialRejected)
	}
	if n := env.provider.verifyCalls.Load(); n != 1 {
		t.Fatalf("expected one provider call, got %d", n)
	}
	if n := env.attempts(t, "login_user@example.com", 15*time.Minute); n != 1 {
		t.Fatalf("expected one recorded attempt, got %d", n)
	}
}

func TestDistinctSubmitWhileInFlightIsBusy(t *testing.T) {
	env := newTestEnv(t, testConfig())
	gate := make(chan struct{})
	env.provider.set(func(p *fakeProvider) { p.gate = gate })

	done := make(chan error, 1)
	go func() {
		_, err := env.c.SignIn(context.Background(), EmailPassword{Email: "user@example.com", Password: "pw"})
		done <- err
	}()
	waitFor(t, func() bool { return env.provider.verifyCalls.Load() == 1 })

	_, err := env.c.SignIn(context.Background(), EmailPassword{Email: "user@example.com", Password: "other"})
	if !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	if env.c.State().Kind != StateLoading {
		t.Fatalf("busy rejection must not change state, got %s", env.c.State())
	}

	close(gate)
	if err := <-done; err != nil {
		t.Fatalf("first SignIn failed: %v", err)
	}
	if env.c.MetricsSnapshot().Counters[MetricBusyRejected] != 1 {
		t.Fatal("expected busy metric")
	}
}

func TestSignOutDuringInFlightSignIn(t *testing.T) {
	env := newTestEnv(t, testConfig())
	gate := make(chan struct{})
	env.provider.set(func(p *fakeProvider) { p.gate = gate })

	done := make(chan error, 1)
	go func() {
		_, err := env.c.SignIn(context.Background(), EmailPassword{Email: "user@example.com", Password: "pw"})
		done <- err
	}()
	waitFor(t, func() bool { return env.provider.verifyCalls.Load() == 1 })

	if err := env.c.SignOut(context.Background()); err != nil {
		t.Fatalf("SignOut failed: %v", err)
	}
	close(gate)

	if err := <-done; !errors.Is(err, ErrInterrupted) {
		t.Fatalf("expected ErrInterrupted, got %v", err)
	}
	if env.c.State().Kind != StateUnauthenticated {
		t.Fatalf("expected Unauthenticated, got %s", env.c.State())
	}
	if len(env.stored(t)) != 0 {
		t.Fatalf("interrupted sign-in must not write a session, got %v", env.stored(t))
	}
}

func TestOfflineRejectedFirst(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.network.up.Store(false)

	_, err := env.c.SignIn(context.Background(), EmailPassword{Email: "not-an-email", Password: ""})
	wantKind(t, err, KindNetwork)
	if st := env.c.State(); st.Message != msgOffline {
		t.Fatalf("unexpected message %q", st.Message)
	}
	if env.provider.verifyCalls.Load() != 0 {
		t.Fatal("provider must not be called offline")
	}
}

func TestClearError(t *testing.T) {
	env := newTestEnv(t, testConfig())

	env.c.ClearError()
	if env.c.State().Kind != StateUnauthenticated {
		t.Fatal("ClearError outside Error must be a no-op")
	}

	_, _ = env.c.SignIn(context.Background(), EmailPassword{Email: "bad", Password: "pw"})
	if env.c.State().Kind != StateError {
		t.Fatal("expected Error")
	}
	env.c.ClearError()
	if env.c.State().Kind != StateUnauthenticated {
		t.Fatalf("expected Unauthenticated, got %s", env.c.State())
	}
}

func TestSignInUnsupportedCredential(t *testing.T) {
	env := newTestEnv(t, testConfig())

	_, err := env.c.SignIn(context.Background(), PhoneNumber{Raw: "9876543210"})
	wantKind(t, err, KindValidation)
	if env.c.State().Message != msgUnsupportedMethod {
		t.Fatalf("unexpected message %q", env.c.State().Message)
	}
}

func TestPhoneOTPFlow(t *testing.T) {
	cfg := testConfig()
	cfg.Validation.IndiaOnlyPhone = true
	env := newTestEnv(t, cfg)

	id, err := env.c.RequestPhoneOTP(context.Background(), PhoneNumber{Raw: "+91 98765-43210"})
	if err != nil {
		t.Fatalf("RequestPhoneOTP failed: %v", err)
	}
	if id != "challenge-1" {
		t.Fatalf("unexpected challenge %q", id)
	}
	if env.provider.lastPhone != "9876543210" {
		t.Fatalf("expected canonical phone, got %q", env.provider.lastPhone)
	}
	if env.c.State().Kind != StateUnauthenticated {
		t.Fatalf("OTP request must not authenticate, got %s", env.c.State())
	}
	if len(env.stored(t)) != 0 {
		t.Fatal("OTP request must not write a session")
	}

	_, err = env.c.SignIn(context.Background(), OTPCode{Code: "12345", ChallengeID: id})
	wantKind(t, err, KindValidation)
	env.c.ClearError()

	if _, err := env.c.SignIn(context.Background(), OTPCode{Code: "123456", ChallengeID: id}); err != nil {
		t.Fatalf("OTP sign-in failed: %v", err)
	}
	if env.c.State().Kind != StateAuthenticated {
		t.Fatalf("expected Authenticated, got %s", env.c.State())
	}
	if _, ok := env.provider.lastCred.(OTPCode); !ok {
		t.Fatalf("expected OTPCode credential, got %T", env.provider.lastCred)
	}
}

func TestPhoneOTPRateLimited(t *testing.T) {
	env := newTestEnv(t, testConfig())
	phone := PhoneNumber{Raw: "9876543210"}

	for i := 0; i < 3; i++ {
		if _, err := env.c.RequestPhoneOTP(context.Background(), phone); err != nil {
			t.Fatalf("request %d failed: %v", i+1, err)
		}
	}
	_, err := env.c.RequestPhoneOTP(context.Background(), phone)
	wantKind(t, err, KindRateLimited)
	if n := env.provider.otpCalls.Load(); n != 3 {
		t.Fatalf("expected 3 provider calls, got %d", n)
	}
}

func TestRequestPhoneOTPUnsupported(t *testing.T) {
	p := newFakeProvider()
	c, err := New().WithIdentityProvider(verifyOnly{p: p}).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer c.Close()
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if _, err := c.RequestPhoneOTP(context.Background(), PhoneNumber{Raw: "9876543210"}); !errors.Is(err, ErrOTPUnsupported) {
		t.Fatalf("expected ErrOTPUnsupported, got %v", err)
	}
}

func TestFederatedSignIn(t *testing.T) {
	env := newTestEnv(t, testConfig())

	_, err := env.c.SignIn(context.Background(), FederatedToken{Provider: "google", Token: "  "})
	wantKind(t, err, KindValidation)
	env.c.ClearError()

	if _, err := env.c.SignIn(context.Background(), FederatedToken{Provider: "google", Token: "id-token"}); err != nil {
		t.Fatalf("federated sign-in failed: %v", err)
	}
	if env.stored(t)[session.FieldUserID] != "uid-1" {
		t.Fatal("expected session for federated subject")
	}
}

func TestFederatedFailuresAreLimitedPerToken(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.provider.set(func(p *fakeProvider) {
		p.verifyErr = &ProviderError{Code: "auth/invalid-credential", Message: "invalid token"}
	})

	// Failures with many different tokens do not share one broker-wide key.
	for i := 0; i < 10; i++ {
		_, err := env.c.SignIn(context.Background(), FederatedToken{Provider: "google", Token: fmt.Sprintf("forged-token-%d", i)})
		wantKind(t, err, KindCredentialRejected)
	}
	if n := env.attempts(t, "federated_google", 15*time.Minute); n != 0 {
		t.Fatalf("expected no broker-wide attempts, got %d", n)
	}

	// The same token is limited once its own key is exhausted.
	replayed := FederatedToken{Provider: "google", Token: "replayed-token"}
	for i := 0; i < 10; i++ {
		_, err := env.c.SignIn(context.Background(), replayed)
		wantKind(t, err, KindCredentialRejected)
	}
	_, err := env.c.SignIn(context.Background(), replayed)
	wantKind(t, err, KindRateLimited)
	calls := env.provider.verifyCalls.Load()

	env.provider.set(func(p *fakeProvider) { p.verifyErr = nil })
	if _, err := env.c.SignIn(context.Background(), FederatedToken{Provider: "google", Token: "valid-token"}); err != nil {
		t.Fatalf("another user's token must not be limited: %v", err)
	}
	if env.provider.verifyCalls.Load() != calls+1 {
		t.Fatal("expected the provider to verify the other token")
	}
}

func TestOperationsBeforeStart(t *testing.T) {
	c, err := New().WithIdentityProvider(newFakeProvider()).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer c.Close()

	if c.State().Kind != StateLoading {
		t.Fatalf("expected initial Loading, got %s", c.State())
	}
	if _, err := c.SignIn(context.Background(), EmailPassword{Email: "user@example.com", Password: "pw"}); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("expected ErrNotStarted, got %v", err)
	}
	if err := c.SignOut(context.Background()); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("expected ErrNotStarted, got %v", err)
	}
}

func TestStartRestoresSession(t *testing.T) {
	backend := session.NewMemoryBackend()
	if err := session.NewStore(backend).Save(context.Background(), session.SignedIn("uid-9", "kept@example.com", "tok")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	c, err := New().WithIdentityProvider(newFakeProvider()).WithSessionBackend(backend).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer c.Close()
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if c.State().Kind != StateAuthenticated {
		t.Fatalf("expected Authenticated, got %s", c.State())
	}
	subject, ok := c.CurrentSubject()
	if !ok || subject.SubjectID != "uid-9" || subject.Email != "kept@example.com" {
		t.Fatalf("unexpected subject %+v", subject)
	}
}

func TestStartDiscardsCorruptRecord(t *testing.T) {
	backend := session.NewMemoryBackend()
	_ = backend.Put(context.Background(), map[string]string{session.FieldIsLoggedIn: "maybe"})

	c, err := New().WithIdentityProvider(newFakeProvider()).WithSessionBackend(backend).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer c.Close()
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if c.State().Kind != StateUnauthenticated {
		t.Fatalf("expected Unauthenticated, got %s", c.State())
	}
	fields, _ := backend.Get(context.Background())
	if len(fields) != 0 {
		t.Fatalf("expected corrupt record cleared, got %v", fields)
	}
}

func TestFirstLaunchFlag(t *testing.T) {
	env := newTestEnv(t, testConfig())

	first, err := env.c.IsFirstLaunch(context.Background())
	if err != nil || !first {
		t.Fatalf("expected first launch pending, got %v %v", first, err)
	}
	if err := env.c.MarkFirstLaunchConsumed(context.Background()); err != nil {
		t.Fatalf("MarkFirstLaunchConsumed failed: %v", err)
	}
	if env.stored(t)[session.FieldFirstTimeLaunch] != "false" {
		t.Fatalf("expected first_time_launch=false, got %v", env.stored(t))
	}
	first, _ = env.c.IsFirstLaunch(context.Background())
	if first {
		t.Fatal("expected first launch consumed")
	}
}

func TestAuditEventsMasked(t *testing.T) {
	cfg := testConfig()
	cfg.Audit.Enabled = true
	sink := NewChannelSink(16)
	env := newTestEnv(t, cfg, func(b *Builder) { b.WithAuditSink(sink) })
	env.provider.set(func(p *fakeProvider) {
		p.verifyErr = &ProviderError{Code: "auth/wrong-password"}
	})

	_, _ = env.c.SignIn(context.Background(), EmailPassword{Email: "user@example.com", Password: "pw"})

	select {
	case ev := <-sink.Events():
		if ev.EventType != AuditSignIn || ev.Success {
			t.Fatalf("unexpected event %+v", ev)
		}
		if ev.Identifier != "u***@example.com" {
			t.Fatalf("identifier must be masked, got %q", ev.Identifier)
		}
		if ev.ErrorKind != string(KindCredentialRejected) {
			t.Fatalf("unexpected error kind %q", ev.ErrorKind)
		}
		if ev.Method != string(MethodEmailPassword) {
			t.Fatalf("unexpected method %q", ev.Method)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected an audit event")
	}
}

func TestMaskIdentifier(t *testing.T) {
	tests := map[string]string{
		"":                 "",
		"user@example.com": "u***@example.com",
		"9876543210":       "******3210",
		"123":              "****",
		"google":           "**ogle",
	}
	for in, want := range tests {
		if got := maskIdentifier(in); got != want {
			t.Fatalf("maskIdentifier(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCloseEndsSubscriptions(t *testing.T) {
	env := newTestEnv(t, testConfig())
	states, _ := env.c.Subscribe(1)
	<-states

	if err := env.c.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, ok := <-states; ok {
		t.Fatal("expected channel closed")
	}
	if _, err := env.c.SignIn(context.Background(), EmailPassword{Email: "user@example.com", Password: "pw"}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
