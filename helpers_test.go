package authflow

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/authflow/session"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// fakeProvider records calls and answers with the configured results. When
// gate is non-nil, Verify and Register block until it is closed or ctx ends.
type fakeProvider struct {
	mu sync.Mutex

	verifyCalls   atomic.Int32
	registerCalls atomic.Int32
	otpCalls      atomic.Int32
	signOutCalls  atomic.Int32

	subject     SubjectIdentity
	verifyErr   error
	signOutErr  error
	gate        chan struct{}
	signOutGate chan struct{}
	lastCred    Credential
	lastPhone   string
	ignoreCtx   bool
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		subject: SubjectIdentity{SubjectID: "uid-1", Email: "user@example.com", DisplayName: "User"},
	}
}

func (p *fakeProvider) wait(ctx context.Context) error {
	p.mu.Lock()
	gate := p.gate
	ignore := p.ignoreCtx
	p.mu.Unlock()
	if gate == nil {
		return nil
	}
	if ignore {
		<-gate
		return nil
	}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *fakeProvider) result() (SubjectIdentity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.verifyErr != nil {
		return SubjectIdentity{}, p.verifyErr
	}
	return p.subject, nil
}

func (p *fakeProvider) Verify(ctx context.Context, cred Credential) (SubjectIdentity, error) {
	p.verifyCalls.Add(1)
	p.mu.Lock()
	p.lastCred = cred
	p.mu.Unlock()
	if err := p.wait(ctx); err != nil {
		return SubjectIdentity{}, err
	}
	return p.result()
}

func (p *fakeProvider) Register(ctx context.Context, name, email, password string) (SubjectIdentity, error) {
	p.registerCalls.Add(1)
	if err := p.wait(ctx); err != nil {
		return SubjectIdentity{}, err
	}
	s, err := p.result()
	if err != nil {
		return s, err
	}
	s.DisplayName = name
	s.Email = email
	return s, nil
}

func (p *fakeProvider) SignOut(ctx context.Context) error {
	p.signOutCalls.Add(1)
	p.mu.Lock()
	gate := p.signOutGate
	p.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.signOutErr
}

func (p *fakeProvider) RequestOTP(_ context.Context, phone string) (string, error) {
	p.otpCalls.Add(1)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastPhone = phone
	if p.verifyErr != nil {
		return "", p.verifyErr
	}
	return "challenge-1", nil
}

func (p *fakeProvider) set(fn func(*fakeProvider)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(p)
}

// verifyOnly is an IdentityProvider without the OTPRequester capability.
type verifyOnly struct{ p *fakeProvider }

func (v verifyOnly) Verify(ctx context.Context, cred Credential) (SubjectIdentity, error) {
	return v.p.Verify(ctx, cred)
}

func (v verifyOnly) Register(ctx context.Context, name, email, password string) (SubjectIdentity, error) {
	return v.p.Register(ctx, name, email, password)
}

func (v verifyOnly) SignOut(ctx context.Context) error {
	return v.p.SignOut(ctx)
}

type staticNetwork struct{ up atomic.Bool }

func (n *staticNetwork) IsNetworkAvailable() bool { return n.up.Load() }

type fakeCache struct {
	name   string
	err    error
	purged atomic.Int32
}

func (c *fakeCache) Name() string { return c.name }

func (c *fakeCache) Purge(context.Context) error {
	c.purged.Add(1)
	return c.err
}

type testEnv struct {
	c        *Coordinator
	provider *fakeProvider
	backend  *session.MemoryBackend
	clock    *fakeClock
	network  *staticNetwork
}

func testConfig() Config {
	cfg := defaultConfig()
	cfg.Metrics.Enabled = true
	cfg.Provider.Timeout = 2 * time.Second
	return cfg
}

func newTestEnv(t *testing.T, cfg Config, opts ...func(*Builder)) *testEnv {
	t.Helper()

	env := &testEnv{
		provider: newFakeProvider(),
		backend:  session.NewMemoryBackend(),
		clock:    newFakeClock(),
		network:  &staticNetwork{},
	}
	env.network.up.Store(true)

	b := New().
		WithConfig(cfg).
		WithIdentityProvider(env.provider).
		WithConnectivity(env.network).
		WithSessionBackend(env.backend).
		WithClock(env.clock.Now)
	for _, opt := range opts {
		opt(b)
	}

	c, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	env.c = c
	return env
}

func (e *testEnv) stored(t *testing.T) map[string]string {
	t.Helper()
	fields, err := e.backend.Get(context.Background())
	if err != nil {
		t.Fatalf("backend Get failed: %v", err)
	}
	return fields
}

func wantKind(t *testing.T, err error, kind ErrorKind) {
	t.Helper()
	var ae *AuthError
	if !errors.As(err, &ae) {
		t.Fatalf("expected *AuthError of kind %s, got %v", kind, err)
	}
	if ae.Kind != kind {
		t.Fatalf("expected kind %s, got %s (%v)", kind, ae.Kind, err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(time.Millisecond)
	}
}
