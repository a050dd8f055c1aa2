package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod selects the algorithm portal tokens are signed with.
type SigningMethod string

const (
	MethodEd25519 SigningMethod = "ed25519"
	MethodHS256   SigningMethod = "hs256"
)

const (
	maxLeeway           = 2 * time.Minute
	defaultMaxFutureIAT = 10 * time.Minute
	minHMACKeyLen       = 32
)

var (
	// ErrMissingSubject is returned when a token carries no user ID.
	ErrMissingSubject = errors.New("token has no subject")
	// ErrMissingUserType is returned when a token does not name the account
	// role it was issued for.
	ErrMissingUserType = errors.New("token has no user_type")
	// ErrFutureIssuedAt is returned when iat is further ahead than MaxFutureIAT.
	ErrFutureIssuedAt = errors.New("token iat too far in the future")
	// ErrVerifyOnly is returned by Issue on a manager built without a
	// signing key.
	ErrVerifyOnly = errors.New("manager has no signing key")

	errUnknownKID = errors.New("unknown kid")
)

// Config configures a [Manager].
//
// HS256 signs and verifies with PrivateKey. Ed25519 signs with PrivateKey and
// verifies with PublicKey, or with VerifyKeys selected by the kid header.
type Config struct {
	TTL           time.Duration
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	MaxFutureIAT  time.Duration
	KeyID         string
	VerifyKeys    map[string][]byte
}

// PortalClaims identify the account a token was issued to.
type PortalClaims struct {
	UserType string `json:"user_type,omitempty"`
	jwt.RegisteredClaims
}

// Manager issues and verifies the bearer token the portal stores as
// jwt_token. Keys are decoded once in NewManager; a Manager is safe for
// concurrent use.
type Manager struct {
	ttl          time.Duration
	issuer       string
	audience     string
	maxFutureIAT time.Duration
	kid          string

	method jwt.SigningMethod
	sign   any
	keys   keyring
	parser *jwt.Parser
}

// keyring resolves the verification key for a parsed token header.
type keyring struct {
	byKID    map[string]any
	fallback any
	pinKID   string
}

func (k keyring) lookup(header map[string]any) (any, error) {
	kid, _ := header["kid"].(string)
	if len(k.byKID) > 0 {
		if kid == "" {
			return nil, errors.New("missing kid")
		}
		key, ok := k.byKID[kid]
		if !ok {
			return nil, errUnknownKID
		}
		return key, nil
	}
	if k.pinKID != "" && kid != k.pinKID {
		return nil, errUnknownKID
	}
	if k.fallback == nil {
		return nil, errors.New("no verification key")
	}
	return k.fallback, nil
}

// NewManager validates cfg, decodes its keys and returns a manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.TTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > maxLeeway {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = defaultMaxFutureIAT
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("invalid MaxFutureIAT configuration")
	}

	m := &Manager{
		ttl:          cfg.TTL,
		issuer:       cfg.Issuer,
		audience:     cfg.Audience,
		maxFutureIAT: cfg.MaxFutureIAT,
		kid:          strings.TrimSpace(cfg.KeyID),
	}

	var err error
	switch cfg.SigningMethod {
	case MethodHS256:
		err = m.loadHMAC(cfg)
	case MethodEd25519:
		err = m.loadEd25519(cfg)
	default:
		err = errors.New("unsupported signing method")
	}
	if err != nil {
		return nil, err
	}

	if m.kid != "" && len(m.keys.byKID) > 0 {
		if _, ok := m.keys.byKID[m.kid]; !ok {
			return nil, errors.New("KeyID is not present in VerifyKeys")
		}
	}
	if len(m.keys.byKID) == 0 {
		m.keys.pinKID = m.kid
	}

	m.parser = jwt.NewParser(m.parserOptions(cfg.Leeway)...)
	return m, nil
}

func (m *Manager) loadHMAC(cfg Config) error {
	if len(cfg.PrivateKey) < minHMACKeyLen {
		return fmt.Errorf("hs256 requires a key of at least %d bytes", minHMACKeyLen)
	}
	m.method = jwt.SigningMethodHS256
	m.sign = cfg.PrivateKey
	m.keys.fallback = cfg.PrivateKey
	return nil
}

func (m *Manager) loadEd25519(cfg Config) error {
	m.method = jwt.SigningMethodEdDSA

	if len(cfg.PrivateKey) > 0 {
		priv, err := parseEdPrivateKey(cfg.PrivateKey)
		if err != nil {
			return err
		}
		m.sign = priv
	}
	if len(cfg.PublicKey) > 0 {
		pub, err := parseEdPublicKey(cfg.PublicKey)
		if err != nil {
			return err
		}
		m.keys.fallback = pub
	}
	if len(cfg.VerifyKeys) == 0 && m.keys.fallback == nil {
		return errors.New("ed25519 requires public key or verify key set")
	}

	if len(cfg.VerifyKeys) > 0 {
		m.keys.byKID = make(map[string]any, len(cfg.VerifyKeys))
	}
	for kid, raw := range cfg.VerifyKeys {
		if strings.TrimSpace(kid) == "" {
			return errors.New("verify key map contains empty kid")
		}
		pub, err := parseEdPublicKey(raw)
		if err != nil {
			return fmt.Errorf("invalid ed25519 verify key for kid %q: %w", kid, err)
		}
		m.keys.byKID[kid] = pub
	}
	return nil
}

func (m *Manager) parserOptions(leeway time.Duration) []jwt.ParserOption {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.method.Alg()}),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
	}
	if leeway > 0 {
		opts = append(opts, jwt.WithLeeway(leeway))
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}
	if m.audience != "" {
		opts = append(opts, jwt.WithAudience(m.audience))
	}
	return opts
}

// Issue signs a token for userID carrying the account role.
func (m *Manager) Issue(userID, userType string) (string, error) {
	if userID == "" {
		return "", ErrMissingSubject
	}
	if userType == "" {
		return "", ErrMissingUserType
	}
	if m.sign == nil {
		return "", ErrVerifyOnly
	}

	now := time.Now()
	claims := PortalClaims{
		UserType: userType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	if m.audience != "" {
		claims.Audience = jwt.ClaimStrings{m.audience}
	}

	token := jwt.NewWithClaims(m.method, claims)
	if m.kid != "" {
		token.Header["kid"] = m.kid
	}
	return token.SignedString(m.sign)
}

// Parse verifies tokenStr and returns its claims.
func (m *Manager) Parse(tokenStr string) (*PortalClaims, error) {
	claims := &PortalClaims{}
	token, err := m.parser.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		return m.keys.lookup(t.Header)
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}

	switch {
	case claims.Subject == "":
		return nil, ErrMissingSubject
	case claims.UserType == "":
		return nil, ErrMissingUserType
	case claims.IssuedAt != nil && claims.IssuedAt.After(time.Now().Add(m.maxFutureIAT)):
		return nil, ErrFutureIssuedAt
	}
	return claims, nil
}

// VerifyToken reports whether token is a valid, unexpired portal token.
func (m *Manager) VerifyToken(token string) error {
	_, err := m.Parse(token)
	return err
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
