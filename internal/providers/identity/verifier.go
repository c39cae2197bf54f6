package identity

import (
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	jwt "github.com/golang-jwt/jwt/v5"
)

const defaultLeeway = 30 * time.Second

var (
	ErrMissingToken = errors.New("missing_token")
	ErrInvalidToken = errors.New("invalid_token")
)

// Principal is the authenticated caller extracted from a bearer token.
type Principal struct {
	ID    snowflake.ID
	Email string
}

type claims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
}

// Verifier validates HS256 bearer tokens issued by the identity provider
// and extracts the caller's identity.
type Verifier struct {
	secret []byte
	leeway time.Duration
}

func NewVerifier(secret string) (*Verifier, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("identity verifier requires a signing secret")
	}
	return &Verifier{secret: []byte(secret), leeway: defaultLeeway}, nil
}

// Verify parses and validates a raw token, returning the caller identity.
func (v *Verifier) Verify(token string) (Principal, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Principal{}, ErrMissingToken
	}

	parsed := claims{}
	tkn, err := jwt.ParseWithClaims(token, &parsed, func(*jwt.Token) (any, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(v.leeway),
	)
	if err != nil || !tkn.Valid {
		return Principal{}, ErrInvalidToken
	}

	subject := strings.TrimSpace(parsed.Subject)
	if subject == "" {
		return Principal{}, ErrInvalidToken
	}
	id, err := snowflake.ParseString(subject)
	if err != nil || id == 0 {
		return Principal{}, ErrInvalidToken
	}

	return Principal{ID: id, Email: strings.TrimSpace(parsed.Email)}, nil
}

// FromAuthorizationHeader strips the Bearer scheme from a header value.
func FromAuthorizationHeader(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", ErrMissingToken
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", ErrInvalidToken
	}
	return strings.TrimSpace(parts[1]), nil
}
