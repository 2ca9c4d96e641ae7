package auth

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/golang-jwt/jwt/v5"
)

var _ Authenticator = (*JWTAuthenticator)(nil)

type tokenClaims struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone,omitempty"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// JWTAuthenticator verifies and issues HS256 tokens.
type JWTAuthenticator struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewJWTAuthenticator creates a JWTAuthenticator with the shared secret and
// expected issuer.
func NewJWTAuthenticator(secret []byte, issuer string) *JWTAuthenticator {
	return &JWTAuthenticator{secret: secret, issuer: issuer, now: time.Now}
}

// Authenticate parses token and returns its identity. Any parse, signature,
// issuer or expiry failure yields ErrInvalidToken.
func (a *JWTAuthenticator) Authenticate(_ context.Context, token string) (*Identity, error) {
	var c tokenClaims
	_, err := jwt.ParseWithClaims(token, &c,
		func(*jwt.Token) (any, error) { return a.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(a.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidToken, err.Error())
	}
	if c.Subject == "" {
		return nil, ErrInvalidToken
	}

	role := c.Role
	if role == "" {
		role = RoleCustomer
	}
	return &Identity{
		ID:    c.Subject,
		Email: c.Email,
		Name:  c.Name,
		Phone: c.Phone,
		Role:  role,
	}, nil
}

// Issue signs a token for id valid for ttl.
func (a *JWTAuthenticator) Issue(id Identity, ttl time.Duration) (string, error) {
	now := a.now()
	c := tokenClaims{
		Email: id.Email,
		Name:  id.Name,
		Phone: id.Phone,
		Role:  id.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.ID,
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(a.secret)
	if err != nil {
		return "", errors.Wrap(err, "sign token")
	}
	return signed, nil
}
