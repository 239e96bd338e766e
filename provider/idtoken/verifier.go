package idtoken

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Algorithm selects how ID tokens are signed.
type Algorithm string

const (
	AlgEd25519 Algorithm = "ed25519"
	AlgHS256   Algorithm = "hs256"
)

// Config describes the tokens one federated broker issues.
type Config struct {
	// Provider is the FederatedToken.Provider name these tokens arrive under.
	Provider  string
	Algorithm Algorithm
	// Secret is the shared key for HS256.
	Secret []byte
	// PublicKey is the Ed25519 key, raw or PEM.
	PublicKey []byte
	// VerifyKeys, when set, selects the key by the token's kid header.
	VerifyKeys map[string][]byte
	Issuer     string
	Audience   string
	Leeway     time.Duration
	// MaxFutureIAT rejects tokens issued further ahead than this. Default 10m.
	MaxFutureIAT time.Duration
	Now          func() time.Time
}

// Claims are the ID token claims mapped into a subject identity.
type Claims struct {
	Email         string `json:"email,omitempty"`
	EmailVerified bool   `json:"email_verified,omitempty"`
	Name          string `json:"name,omitempty"`
	Picture       string `json:"picture,omitempty"`
	jwt.RegisteredClaims
}

// Verifier checks ID tokens against one Config.
type Verifier struct {
	cfg  Config
	keys map[string]any
	key  any
}

func NewVerifier(cfg Config) (*Verifier, error) {
	cfg.Provider = strings.TrimSpace(cfg.Provider)
	if cfg.Provider == "" {
		return nil, errors.New("idtoken: provider name required")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("idtoken: invalid leeway")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = 10 * time.Minute
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("idtoken: invalid MaxFutureIAT")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	v := &Verifier{cfg: cfg}

	switch cfg.Algorithm {
	case AlgHS256:
		if len(cfg.Secret) == 0 && len(cfg.VerifyKeys) == 0 {
			return nil, errors.New("idtoken: hs256 requires a secret")
		}
		v.key = cfg.Secret
	case AlgEd25519:
		if len(cfg.PublicKey) == 0 && len(cfg.VerifyKeys) == 0 {
			return nil, errors.New("idtoken: ed25519 requires a public key or verify key set")
		}
		if len(cfg.PublicKey) > 0 {
			pub, err := parseEdPublicKey(cfg.PublicKey)
			if err != nil {
				return nil, err
			}
			v.key = pub
		}
	default:
		return nil, fmt.Errorf("idtoken: unsupported algorithm %q", cfg.Algorithm)
	}

	if len(cfg.VerifyKeys) > 0 {
		v.keys = make(map[string]any, len(cfg.VerifyKeys))
		for kid, raw := range cfg.VerifyKeys {
			if strings.TrimSpace(kid) == "" {
				return nil, errors.New("idtoken: verify key map contains empty kid")
			}
			if cfg.Algorithm == AlgHS256 {
				v.keys[kid] = raw
				continue
			}
			pub, err := parseEdPublicKey(raw)
			if err != nil {
				return nil, fmt.Errorf("idtoken: verify key %q: %w", kid, err)
			}
			v.keys[kid] = pub
		}
	}

	return v, nil
}

// Provider returns the broker name this verifier answers for.
func (v *Verifier) Provider() string {
	return v.cfg.Provider
}

func (v *Verifier) method() jwt.SigningMethod {
	if v.cfg.Algorithm == AlgHS256 {
		return jwt.SigningMethodHS256
	}
	return jwt.SigningMethodEdDSA
}

// Parse verifies the signature and registered claims of token. A subject is
// required.
func (v *Verifier) Parse(token string) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{v.method().Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(v.cfg.Now),
	}
	if v.cfg.Leeway > 0 {
		options = append(options, jwt.WithLeeway(v.cfg.Leeway))
	}
	if v.cfg.Issuer != "" {
		options = append(options, jwt.WithIssuer(v.cfg.Issuer))
	}
	if v.cfg.Audience != "" {
		options = append(options, jwt.WithAudience(v.cfg.Audience))
	}

	parsed, err := jwt.NewParser(options...).ParseWithClaims(token, &Claims{}, v.keyFor)
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", jwt.ErrTokenInvalidClaims)
	}
	if claims.IssuedAt != nil && claims.IssuedAt.Time.After(v.cfg.Now().Add(v.cfg.MaxFutureIAT)) {
		return nil, fmt.Errorf("%w: iat too far in the future", jwt.ErrTokenInvalidClaims)
	}
	return claims, nil
}

func (v *Verifier) keyFor(t *jwt.Token) (any, error) {
	if t.Method.Alg() != v.method().Alg() {
		return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
	}
	if v.keys == nil {
		return v.key, nil
	}
	kid, _ := t.Header["kid"].(string)
	if kid == "" {
		return nil, errors.New("missing kid")
	}
	key, ok := v.keys[kid]
	if !ok {
		return nil, errors.New("unknown kid")
	}
	return key, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("idtoken: invalid ed25519 public key")
	}
	pub, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("idtoken: invalid ed25519 public key type")
	}
	return pub, nil
}
