package local

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/MrEthical07/authflow"
	"github.com/MrEthical07/authflow/internal"
	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// OTPSender delivers a one-time code to a phone number, for example through an
// SMS gateway.
type OTPSender interface {
	SendOTP(ctx context.Context, phone, code string) error
}

// OTPSenderFunc adapts a function to [OTPSender].
type OTPSenderFunc func(ctx context.Context, phone, code string) error

func (f OTPSenderFunc) SendOTP(ctx context.Context, phone, code string) error {
	return f(ctx, phone, code)
}

// Options configures a [Provider]. Zero fields take the defaults noted.
type Options struct {
	// Hash is the argon2id cost for new hashes. Default DefaultHashParams().
	Hash HashParams
	// OTPTTL bounds how long a challenge can be answered. Default 5m.
	OTPTTL time.Duration
	// OTPMaxAttempts is the number of wrong answers a challenge tolerates.
	// Default 5.
	OTPMaxAttempts int
	// Sender delivers codes. Without one RequestOTP fails.
	Sender OTPSender
	Logger *slog.Logger
	Now    func() time.Time
}

// Provider is an [authflow.IdentityProvider] and [authflow.OTPRequester]
// backed by a SQLite database. It answers with the same provider-native error
// codes a hosted identity service would, so the coordinator's classifier
// applies unchanged.
type Provider struct {
	db        *sql.DB
	opts      Options
	writeLock sync.Mutex // go-sqlite does not support concurrent writes
}

var (
	_ authflow.IdentityProvider = (*Provider)(nil)
	_ authflow.OTPRequester     = (*Provider)(nil)
)

var (
	errUserNotFound  = &authflow.ProviderError{Code: "auth/user-not-found", Message: "There is no user record corresponding to this identifier."}
	errWrongPassword = &authflow.ProviderError{Code: "auth/wrong-password", Message: "The password is invalid or the user does not have a password."}
	errEmailInUse    = &authflow.ProviderError{Code: "auth/email-already-in-use", Message: "The email address is already in use by another account."}
	errInvalidCode   = &authflow.ProviderError{Code: "auth/invalid-verification-code", Message: "The verification code is invalid."}
	errCodeExpired   = &authflow.ProviderError{Code: "auth/code-expired", Message: "The verification code expired."}
	errTooManyTries  = &authflow.ProviderError{Code: "auth/too-many-requests", Message: "Too many attempts for this verification code."}
	errNoSender      = &authflow.ProviderError{Code: "auth/internal-error", Message: "No OTP sender configured."}
	errNotAllowed    = &authflow.ProviderError{Code: "auth/operation-not-allowed", Message: "This sign-in method is not enabled."}
)

// Open opens (creating if needed) the database at path.
func Open(path string, opts Options) (*Provider, error) {
	if opts.Hash == (HashParams{}) {
		opts.Hash = DefaultHashParams()
	}
	if err := opts.Hash.validate(); err != nil {
		return nil, err
	}
	if opts.OTPTTL <= 0 {
		opts.OTPTTL = 5 * time.Minute
	}
	if opts.OTPMaxAttempts <= 0 {
		opts.OTPMaxAttempts = 5
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	if err := initializeDB(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize db: %w", err)
	}

	return &Provider{db: db, opts: opts}, nil
}

func initializeDB(db *sql.DB) error {
	for _, stmt := range []string{`
		CREATE TABLE IF NOT EXISTS users (
			id             TEXT    PRIMARY KEY,
			email          TEXT    UNIQUE,
			phone          TEXT    UNIQUE,
			display_name   TEXT    NOT NULL DEFAULT '',
			password_hash  TEXT    NOT NULL DEFAULT '',
			email_verified INTEGER NOT NULL DEFAULT 0,
			created_at     INTEGER NOT NULL
		)`, `
		CREATE TABLE IF NOT EXISTS otp_challenges (
			id         TEXT    PRIMARY KEY,
			phone      TEXT    NOT NULL,
			code_hash  BLOB    NOT NULL,
			expires_at INTEGER NOT NULL,
			attempts   INTEGER NOT NULL DEFAULT 0
		)`,
	} {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

// Close releases the database handle.
func (p *Provider) Close() error {
	return p.db.Close()
}

// Register creates an email account. The email is expected in normalized form.
func (p *Provider) Register(ctx context.Context, name, email, password string) (authflow.SubjectIdentity, error) {
	hash, err := hashPassword(p.opts.Hash, password)
	if err != nil {
		return authflow.SubjectIdentity{}, err
	}

	id := uuid.NewString()

	p.writeLock.Lock()
	defer p.writeLock.Unlock()

	_, err = p.db.ExecContext(ctx,
		"INSERT INTO users (id, email, display_name, password_hash, created_at) VALUES (?, ?, ?, ?, ?)",
		id, email, name, hash, p.opts.Now().Unix(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return authflow.SubjectIdentity{}, errEmailInUse
		}
		return authflow.SubjectIdentity{}, fmt.Errorf("insert user: %w", err)
	}

	return authflow.SubjectIdentity{SubjectID: id, Email: email, DisplayName: name}, nil
}

// Verify checks an EmailPassword against the stored hash or an OTPCode against
// its challenge. Other credentials are not enabled.
func (p *Provider) Verify(ctx context.Context, cred authflow.Credential) (authflow.SubjectIdentity, error) {
	switch c := cred.(type) {
	case authflow.EmailPassword:
		return p.verifyPassword(ctx, c.Email, c.Password)
	case authflow.OTPCode:
		return p.verifyOTP(ctx, c.ChallengeID, c.Code)
	default:
		return authflow.SubjectIdentity{}, errNotAllowed
	}
}

func (p *Provider) verifyPassword(ctx context.Context, email, password string) (authflow.SubjectIdentity, error) {
	var (
		subject  authflow.SubjectIdentity
		encoded  string
		verified bool
	)
	err := p.db.QueryRowContext(ctx,
		"SELECT id, email, display_name, password_hash, email_verified FROM users WHERE email = ?",
		email,
	).Scan(&subject.SubjectID, &subject.Email, &subject.DisplayName, &encoded, &verified)
	if errors.Is(err, sql.ErrNoRows) {
		return authflow.SubjectIdentity{}, errUserNotFound
	}
	if err != nil {
		return authflow.SubjectIdentity{}, fmt.Errorf("query user: %w", err)
	}
	if encoded == "" {
		return authflow.SubjectIdentity{}, errWrongPassword
	}

	ok, rehash, err := verifyPassword(p.opts.Hash, password, encoded)
	if err != nil {
		return authflow.SubjectIdentity{}, fmt.Errorf("verify hash: %w", err)
	}
	if !ok {
		return authflow.SubjectIdentity{}, errWrongPassword
	}
	subject.EmailVerified = verified

	if rehash {
		p.upgradeHash(ctx, subject.SubjectID, password)
	}
	return subject, nil
}

func (p *Provider) upgradeHash(ctx context.Context, id, password string) {
	hash, err := hashPassword(p.opts.Hash, password)
	if err == nil {
		p.writeLock.Lock()
		_, err = p.db.ExecContext(ctx, "UPDATE users SET password_hash = ? WHERE id = ?", hash, id)
		p.writeLock.Unlock()
	}
	if err != nil {
		p.opts.Logger.Warn("local provider: password rehash failed", slog.String("error", err.Error()))
	}
}

// RequestOTP stores a hashed six-digit code for phone and hands the plain code
// to the configured sender.
func (p *Provider) RequestOTP(ctx context.Context, phone string) (string, error) {
	if p.opts.Sender == nil {
		return "", errNoSender
	}
	code, err := internal.NewOTP(6)
	if err != nil {
		return "", err
	}

	id := uuid.NewString()
	digest := internal.HashCode(id, code)
	now := p.opts.Now()

	p.writeLock.Lock()
	_, err = p.db.ExecContext(ctx,
		"DELETE FROM otp_challenges WHERE expires_at <= ?", now.Unix(),
	)
	if err == nil {
		_, err = p.db.ExecContext(ctx,
			"INSERT INTO otp_challenges (id, phone, code_hash, expires_at) VALUES (?, ?, ?, ?)",
			id, phone, digest[:], now.Add(p.opts.OTPTTL).Unix(),
		)
	}
	p.writeLock.Unlock()
	if err != nil {
		return "", fmt.Errorf("store challenge: %w", err)
	}

	if err := p.opts.Sender.SendOTP(ctx, phone, code); err != nil {
		return "", fmt.Errorf("send otp: %w", err)
	}
	return id, nil
}

func (p *Provider) verifyOTP(ctx context.Context, challengeID, code string) (authflow.SubjectIdentity, error) {
	p.writeLock.Lock()
	defer p.writeLock.Unlock()

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return authflow.SubjectIdentity{}, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var (
		phone     string
		digest    []byte
		expiresAt int64
		attempts  int
	)
	err = tx.QueryRowContext(ctx,
		"SELECT phone, code_hash, expires_at, attempts FROM otp_challenges WHERE id = ?",
		challengeID,
	).Scan(&phone, &digest, &expiresAt, &attempts)
	if errors.Is(err, sql.ErrNoRows) {
		return authflow.SubjectIdentity{}, errInvalidCode
	}
	if err != nil {
		return authflow.SubjectIdentity{}, fmt.Errorf("query challenge: %w", err)
	}

	switch {
	case p.opts.Now().Unix() >= expiresAt:
		_, _ = tx.ExecContext(ctx, "DELETE FROM otp_challenges WHERE id = ?", challengeID)
		_ = tx.Commit()
		return authflow.SubjectIdentity{}, errCodeExpired
	case attempts >= p.opts.OTPMaxAttempts:
		return authflow.SubjectIdentity{}, errTooManyTries
	case !internal.CodeMatches(challengeID, code, digest):
		if _, err := tx.ExecContext(ctx, "UPDATE otp_challenges SET attempts = attempts + 1 WHERE id = ?", challengeID); err != nil {
			return authflow.SubjectIdentity{}, fmt.Errorf("count attempt: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return authflow.SubjectIdentity{}, fmt.Errorf("commit: %w", err)
		}
		return authflow.SubjectIdentity{}, errInvalidCode
	}

	// A challenge is single use.
	if _, err := tx.ExecContext(ctx, "DELETE FROM otp_challenges WHERE id = ?", challengeID); err != nil {
		return authflow.SubjectIdentity{}, fmt.Errorf("consume challenge: %w", err)
	}

	subject := authflow.SubjectIdentity{}
	var email sql.NullString
	err = tx.QueryRowContext(ctx, "SELECT id, email, display_name FROM users WHERE phone = ?", phone).
		Scan(&subject.SubjectID, &email, &subject.DisplayName)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// Phone sign-in creates the account on first use.
		subject.SubjectID = uuid.NewString()
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO users (id, phone, created_at) VALUES (?, ?, ?)",
			subject.SubjectID, phone, p.opts.Now().Unix(),
		); err != nil {
			return authflow.SubjectIdentity{}, fmt.Errorf("insert phone user: %w", err)
		}
	case err != nil:
		return authflow.SubjectIdentity{}, fmt.Errorf("query phone user: %w", err)
	}
	subject.Email = email.String

	if err := tx.Commit(); err != nil {
		return authflow.SubjectIdentity{}, fmt.Errorf("commit: %w", err)
	}
	return subject, nil
}

// SignOut is a no-op: the local provider keeps no server-side session.
func (p *Provider) SignOut(context.Context) error {
	return nil
}

// MarkEmailVerified flags the account registered with email as verified.
func (p *Provider) MarkEmailVerified(ctx context.Context, email string) error {
	p.writeLock.Lock()
	defer p.writeLock.Unlock()

	res, err := p.db.ExecContext(ctx, "UPDATE users SET email_verified = 1 WHERE email = ?", strings.ToLower(email))
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errUserNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var liteErr *sqlite.Error
	if !errors.As(err, &liteErr) {
		return false
	}
	switch liteErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
		return true
	}
	return false
}
