package local

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	minMemoryKB   uint32 = 8 * 1024
	minSaltLength uint32 = 16
	minKeyLength  uint32 = 16
	phcAlgorithm         = "argon2id"
)

var errMalformedHash = errors.New("malformed password hash")

// HashParams are the argon2id cost parameters for new password hashes. Stored
// hashes keep the parameters they were created with and are upgraded on the
// next successful sign-in.
type HashParams struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultHashParams follows the RFC 9106 second recommended option.
func DefaultHashParams() HashParams {
	return HashParams{
		Memory:      64 * 1024,
		Time:        3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func (p HashParams) validate() error {
	switch {
	case p.Memory < minMemoryKB:
		return fmt.Errorf("hash memory must be >= %d KB", minMemoryKB)
	case p.Time < 1:
		return errors.New("hash time must be >= 1")
	case p.Parallelism < 1:
		return errors.New("hash parallelism must be >= 1")
	case p.SaltLength < minSaltLength:
		return fmt.Errorf("hash salt length must be >= %d", minSaltLength)
	case p.KeyLength < minKeyLength:
		return fmt.Errorf("hash key length must be >= %d", minKeyLength)
	}
	return nil
}

// hashPassword returns the PHC string
// $argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<key>.
func hashPassword(p HashParams, password string) (string, error) {
	salt := make([]byte, p.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	key := argon2.IDKey([]byte(password), salt, p.Time, p.Memory, p.Parallelism, p.KeyLength)

	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		phcAlgorithm, argon2.Version, p.Memory, p.Time, p.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

type storedHash struct {
	params HashParams
	salt   []byte
	key    []byte
}

func parseHash(encoded string) (storedHash, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != phcAlgorithm {
		return storedHash{}, errMalformedHash
	}
	if parts[2] != "v="+strconv.Itoa(argon2.Version) {
		return storedHash{}, fmt.Errorf("%w: unsupported version %q", errMalformedHash, parts[2])
	}

	var (
		h       storedHash
		threads uint32
	)
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &h.params.Memory, &h.params.Time, &threads); err != nil {
		return storedHash{}, fmt.Errorf("%w: parameters: %v", errMalformedHash, err)
	}
	if threads == 0 || threads > 255 || h.params.Time == 0 || h.params.Memory < minMemoryKB {
		return storedHash{}, fmt.Errorf("%w: parameters out of range", errMalformedHash)
	}
	h.params.Parallelism = uint8(threads)

	var err error
	if h.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil || len(h.salt) < int(minSaltLength) {
		return storedHash{}, fmt.Errorf("%w: salt", errMalformedHash)
	}
	if h.key, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil || len(h.key) == 0 {
		return storedHash{}, fmt.Errorf("%w: key", errMalformedHash)
	}
	h.params.SaltLength = uint32(len(h.salt))
	h.params.KeyLength = uint32(len(h.key))
	return h, nil
}

// verifyPassword reports whether password matches encoded and whether encoded
// was produced with weaker parameters than want.
func verifyPassword(want HashParams, password, encoded string) (ok, rehash bool, err error) {
	h, err := parseHash(encoded)
	if err != nil {
		return false, false, err
	}
	key := argon2.IDKey([]byte(password), h.salt, h.params.Time, h.params.Memory, h.params.Parallelism, h.params.KeyLength)
	if subtle.ConstantTimeCompare(key, h.key) != 1 {
		return false, false, nil
	}

	rehash = h.params.Memory < want.Memory ||
		h.params.Time < want.Time ||
		h.params.Parallelism < want.Parallelism ||
		h.params.KeyLength != want.KeyLength
	return true, rehash, nil
}
