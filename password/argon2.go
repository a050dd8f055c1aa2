package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	minMemoryKB   uint32 = 8 * 1024
	minSaltLength uint32 = 16
	minKeyLength  uint32 = 16
	minPassBytes         = 8
	algorithmID          = "argon2id"
)

var (
	// ErrTooShort is returned by Hash for passwords under eight bytes.
	ErrTooShort = errors.New("password must be at least 8 bytes")
	// ErrMalformedHash is returned when a stored hash is not an argon2id PHC string.
	ErrMalformedHash = errors.New("malformed password hash")
)

// Config holds argon2id cost parameters.
type Config struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultConfig returns the parameters used for portal accounts.
func DefaultConfig() Config {
	return Config{
		Memory:      64 * 1024,
		Time:        3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// Hasher hashes and verifies account passwords.
type Hasher struct {
	config Config
}

type phc struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	hash        []byte
}

// NewHasher validates cfg and returns a hasher.
func NewHasher(cfg Config) (*Hasher, error) {
	switch {
	case cfg.Memory < minMemoryKB:
		return nil, errors.New("password memory must be >= 8192 KB")
	case cfg.Time < 1:
		return nil, errors.New("password time must be >= 1")
	case cfg.Parallelism < 1:
		return nil, errors.New("password parallelism must be >= 1")
	case cfg.SaltLength < minSaltLength:
		return nil, errors.New("password salt length must be >= 16")
	case cfg.KeyLength < minKeyLength:
		return nil, errors.New("password key length must be >= 16")
	}
	return &Hasher{config: cfg}, nil
}

// Hash returns the PHC encoding of password under a fresh salt.
func (h *Hasher) Hash(password string) (string, error) {
	if len(password) < minPassBytes {
		return "", ErrTooShort
	}

	salt := make([]byte, h.config.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}

	key := argon2.IDKey([]byte(password), salt, h.config.Time, h.config.Memory, h.config.Parallelism, h.config.KeyLength)

	return fmt.Sprintf(
		"$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID,
		argon2.Version,
		h.config.Memory,
		h.config.Time,
		h.config.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether password matches encoded. The comparison is
// constant time.
func (h *Hasher) Verify(password, encoded string) (bool, error) {
	p, err := parsePHC(encoded)
	if err != nil {
		return false, err
	}

	key := argon2.IDKey([]byte(password), p.salt, p.time, p.memory, p.parallelism, uint32(len(p.hash)))
	return subtle.ConstantTimeCompare(key, p.hash) == 1, nil
}

// NeedsRehash reports whether encoded was produced with weaker parameters
// than the hasher's.
func (h *Hasher) NeedsRehash(encoded string) (bool, error) {
	p, err := parsePHC(encoded)
	if err != nil {
		return false, err
	}
	return h.config.Memory > p.memory ||
		h.config.Time > p.time ||
		h.config.Parallelism > p.parallelism ||
		h.config.KeyLength != uint32(len(p.hash)), nil
}

func parsePHC(encoded string) (*phc, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != algorithmID {
		return nil, ErrMalformedHash
	}
	if parts[2] != "v="+strconv.Itoa(argon2.Version) {
		return nil, fmt.Errorf("%w: unsupported version %q", ErrMalformedHash, parts[2])
	}

	p := &phc{}
	var seen int
	for _, pair := range strings.Split(parts[3], ",") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, ErrMalformedHash
		}
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil || n == 0 {
			return nil, fmt.Errorf("%w: bad parameter %q", ErrMalformedHash, pair)
		}
		switch k {
		case "m":
			if n < uint64(minMemoryKB) {
				return nil, fmt.Errorf("%w: memory below minimum", ErrMalformedHash)
			}
			p.memory = uint32(n)
		case "t":
			p.time = uint32(n)
		case "p":
			if n > 255 {
				return nil, fmt.Errorf("%w: parallelism out of range", ErrMalformedHash)
			}
			p.parallelism = uint8(n)
		default:
			return nil, fmt.Errorf("%w: unknown parameter %q", ErrMalformedHash, k)
		}
		seen++
	}
	if seen != 3 || p.memory == 0 || p.time == 0 || p.parallelism == 0 {
		return nil, fmt.Errorf("%w: missing parameters", ErrMalformedHash)
	}

	var err error
	if p.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil || len(p.salt) < int(minSaltLength) {
		return nil, fmt.Errorf("%w: bad salt", ErrMalformedHash)
	}
	if p.hash, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil || len(p.hash) == 0 {
		return nil, fmt.Errorf("%w: bad hash", ErrMalformedHash)
	}
	return p, nil
}
