// Command authflow drives the auth coordinator from a terminal against a local
// SQLite user database and session file.
//
//	authflow [global flags] <command> [command flags]
//
// Commands: signup, signin, signout, status, otp-request, otp-verify.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"

	"github.com/MrEthical07/authflow"
	"github.com/MrEthical07/authflow/connectivity"
	"github.com/MrEthical07/authflow/metrics/export/prometheus"
	"github.com/MrEthical07/authflow/provider/local"
	"github.com/redis/go-redis/v9"
)

const usage = `usage: authflow [global flags] <command> [flags]

commands:
  signup       -name -email -password [-confirm]
  signin       -email -password
  signout
  status
  otp-request  -phone
  otp-verify   -challenge -code

global flags:
`

type globals struct {
	usersDB     string
	sessionDB   string
	redisAddr   string
	probe       string
	verbose     bool
	showMetrics bool
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	// State lines and audit logs are written from other goroutines.
	stdout, stderr = &lockedWriter{w: stdout}, &lockedWriter{w: stderr}

	var g globals
	fs := flag.NewFlagSet("authflow", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&g.usersDB, "users-db", "authflow-users.db", "sqlite database holding local accounts")
	fs.StringVar(&g.sessionDB, "session-db", "", "sqlite session file; overrides AUTHFLOW_SESSION_SQLITE_PATH")
	fs.StringVar(&g.redisAddr, "redis-addr", "", "redis address for the rate limiter and session; REDIS_ADDR env is used when empty")
	fs.StringVar(&g.probe, "probe", "", "host:port to probe for connectivity before acting")
	fs.BoolVar(&g.verbose, "v", false, "debug logging")
	fs.BoolVar(&g.showMetrics, "metrics", false, "print metrics after the command")
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	level := slog.LevelInfo
	if g.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	app, err := open(ctx, g, logger, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "authflow: %v\n", err)
		return 1
	}
	defer app.close()

	states, cancel := app.coord.Subscribe(8)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for s := range states {
			fmt.Fprintf(stdout, "state: %s\n", s)
		}
	}()

	code := dispatch(ctx, app, fs.Arg(0), fs.Args()[1:], stdout, stderr)

	cancel()
	wg.Wait()

	if g.showMetrics {
		fmt.Fprint(stdout, prometheus.NewPrometheusExporter(app.coord).Render())
	}
	return code
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

type app struct {
	coord    *authflow.Coordinator
	provider *local.Provider
	monitor  *connectivity.Monitor
	redis    redis.UniversalClient
}

func open(ctx context.Context, g globals, logger *slog.Logger, stderr io.Writer) (*app, error) {
	cfg, err := authflow.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}
	cfg.Metrics.Enabled = cfg.Metrics.Enabled || g.showMetrics
	if g.sessionDB != "" {
		cfg.Session.SQLitePath = g.sessionDB
	}
	if cfg.Session.SQLitePath == "" {
		cfg.Session.SQLitePath = "authflow-session.db"
	}

	provider, err := local.Open(g.usersDB, local.Options{
		Logger: logger,
		Sender: local.OTPSenderFunc(func(_ context.Context, phone, code string) error {
			fmt.Fprintf(stderr, "verification code for %s: %s\n", phone, code)
			return nil
		}),
	})
	if err != nil {
		return nil, err
	}

	a := &app{provider: provider}
	b := authflow.New().
		WithConfig(cfg).
		WithIdentityProvider(provider).
		WithLogger(logger).
		WithAuditSink(authflow.NewSlogSink(logger))

	addr := g.redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}
	if addr != "" {
		a.redis = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		b = b.WithRedis(a.redis)
	}

	if g.probe != "" {
		monitor, err := connectivity.NewMonitor(connectivity.Config{
			Targets: []string{g.probe},
			Logger:  logger,
		})
		if err != nil {
			a.close()
			return nil, err
		}
		monitor.Start(ctx)
		a.monitor = monitor
		b = b.WithConnectivity(monitor)
	}

	coord, err := b.Build()
	if err != nil {
		a.close()
		return nil, err
	}
	a.coord = coord
	if err := coord.Start(ctx); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) close() {
	if a.coord != nil {
		_ = a.coord.Close()
	}
	if a.monitor != nil {
		_ = a.monitor.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.provider != nil {
		_ = a.provider.Close()
	}
}

func dispatch(ctx context.Context, a *app, cmd string, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(stderr)

	switch cmd {
	case "signup":
		name := fs.String("name", "", "display name")
		email := fs.String("email", "", "email address")
		password := fs.String("password", "", "password")
		confirm := fs.String("confirm", "", "password confirmation; defaults to -password")
		if fs.Parse(args) != nil {
			return 2
		}
		if *confirm == "" {
			*confirm = *password
		}
		subject, err := a.coord.SignUp(ctx, *name, *email, *password, *confirm)
		return report(stdout, stderr, subject, err)

	case "signin":
		email := fs.String("email", "", "email address")
		password := fs.String("password", "", "password")
		if fs.Parse(args) != nil {
			return 2
		}
		subject, err := a.coord.SignIn(ctx, authflow.EmailPassword{Email: *email, Password: *password})
		return report(stdout, stderr, subject, err)

	case "signout":
		if fs.Parse(args) != nil {
			return 2
		}
		if err := a.coord.SignOut(ctx); err != nil {
			return fail(stderr, err)
		}
		fmt.Fprintln(stdout, "signed out")
		return 0

	case "status":
		if fs.Parse(args) != nil {
			return 2
		}
		first, err := a.coord.IsFirstLaunch(ctx)
		if err != nil {
			return fail(stderr, err)
		}
		if first {
			if err := a.coord.MarkFirstLaunchConsumed(ctx); err != nil {
				return fail(stderr, err)
			}
			fmt.Fprintln(stdout, "first launch")
		}
		if subject, ok := a.coord.CurrentSubject(); ok {
			fmt.Fprintf(stdout, "signed in as %s (%s)\n", subject.Email, subject.SubjectID)
		} else {
			fmt.Fprintln(stdout, "signed out")
		}
		return 0

	case "otp-request":
		phone := fs.String("phone", "", "phone number")
		if fs.Parse(args) != nil {
			return 2
		}
		challenge, err := a.coord.RequestPhoneOTP(ctx, authflow.PhoneNumber{Raw: *phone})
		if err != nil {
			return fail(stderr, err)
		}
		fmt.Fprintf(stdout, "challenge: %s\n", challenge)
		return 0

	case "otp-verify":
		challenge := fs.String("challenge", "", "challenge id from otp-request")
		code := fs.String("code", "", "verification code")
		if fs.Parse(args) != nil {
			return 2
		}
		subject, err := a.coord.SignIn(ctx, authflow.OTPCode{Code: *code, ChallengeID: *challenge})
		return report(stdout, stderr, subject, err)

	default:
		fmt.Fprintf(stderr, "authflow: unknown command %q\n", cmd)
		return 2
	}
}

func report(stdout, stderr io.Writer, subject authflow.SubjectIdentity, err error) int {
	if err != nil {
		return fail(stderr, err)
	}
	fmt.Fprintf(stdout, "signed in as %s (%s)\n", subject.Email, subject.SubjectID)
	return 0
}

// fail prints the user-facing message only; causes go to the debug log.
func fail(stderr io.Writer, err error) int {
	var ae *authflow.AuthError
	if errors.As(err, &ae) {
		fmt.Fprintf(stderr, "%s: %s\n", ae.Kind, ae.Message)
		return 1
	}
	fmt.Fprintf(stderr, "authflow: %v\n", err)
	return 1
}
