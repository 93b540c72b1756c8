package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/NeillJohnston/macropinna/internal/device"
)

// Issuer is the iss claim of every credential.
const Issuer = "macropinna"

// credentialPurpose binds derived keys to this credential format.
const credentialPurpose = "macropinna remote credential v1"

// ErrInvalidCredential is the only error Verify returns for a bad token.
var ErrInvalidCredential = errors.New("invalid credential")

// Claims are the signed contents of a credential.
type Claims struct {
	Name  string       `json:"name"`
	Agent device.Agent `json:"agent"`
	jwt.RegisteredClaims
}

// DeviceID returns the subject as a UUID.
func (c *Claims) DeviceID() (uuid.UUID, error) {
	return uuid.Parse(c.Subject)
}

// CodecConfig holds configuration for the credential codec.
type CodecConfig struct {
	// Secret is the raw signing secret. Required.
	Secret []byte

	// TTL is how long an issued credential stays valid.
	// Default: 5 minutes
	TTL time.Duration

	// TimeNow returns the current time. If nil, time.Now is used.
	TimeNow func() time.Time
}

// Codec signs and verifies HS256 credentials.
type Codec struct {
	key    []byte
	ttl    time.Duration
	now    func() time.Time
	parser *jwt.Parser
}

// NewCodec derives the signing key from the secret.
func NewCodec(cfg CodecConfig) (*Codec, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("auth: empty signing secret")
	}
	key, err := DeriveKey(cfg.Secret, credentialPurpose)
	if err != nil {
		return nil, err
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}
	if cfg.TimeNow == nil {
		cfg.TimeNow = time.Now
	}

	return &Codec{
		key: key,
		ttl: cfg.TTL,
		now: cfg.TimeNow,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(Issuer),
			jwt.WithExpirationRequired(),
			jwt.WithTimeFunc(cfg.TimeNow),
		),
	}, nil
}

// Sign issues a credential for the identity.
func (c *Codec) Sign(id device.Identity) (string, error) {
	now := c.now()
	claims := Claims{
		Name:  id.Name,
		Agent: id.Agent,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   id.UUID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign credential: %w", err)
	}
	return token, nil
}

// Verify checks signature, algorithm, issuer, expiry and subject. Every
// failure is reported as ErrInvalidCredential wrapping the parser's reason.
func (c *Codec) Verify(raw string) (*Claims, error) {
	if raw == "" {
		return nil, ErrInvalidCredential
	}

	claims := &Claims{}
	token, err := c.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return c.key, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}
	if !token.Valid {
		return nil, ErrInvalidCredential
	}
	if _, err := claims.DeviceID(); err != nil {
		return nil, fmt.Errorf("%w: bad subject", ErrInvalidCredential)
	}
	return claims, nil
}
