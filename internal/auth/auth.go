package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrNoToken means no credential was supplied at all.
	ErrNoToken = errors.New("no token provided")
	// ErrInvalidToken means a credential was supplied but failed verification.
	ErrInvalidToken = errors.New("invalid token")
)

// Verifier resolves a bearer credential to a subscriber identity.
type Verifier interface {
	Verify(token string) (int64, error)
}

// JWTVerifier verifies HS256-signed bearer tokens whose subject claim carries
// the subscriber id.
type JWTVerifier struct {
	secret   []byte
	tokenTTL time.Duration
}

func NewJWTVerifier(secret string, tokenTTL time.Duration) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret), tokenTTL: tokenTTL}
}

// Verify checks the token signature and expiry and returns the subscriber id.
func (v *JWTVerifier) Verify(token string) (int64, error) {
	if token == "" {
		return 0, ErrNoToken
	}

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return 0, ErrInvalidToken
	}

	sub, err := parsed.Claims.GetSubject()
	if err != nil || sub == "" {
		return 0, ErrInvalidToken
	}
	userID, err := strconv.ParseInt(sub, 10, 64)
	if err != nil {
		return 0, ErrInvalidToken
	}
	return userID, nil
}

// Issue mints a token for a subscriber. Credential issuance proper lives
// outside this service; this exists for tests and local tooling.
func (v *JWTVerifier) Issue(userID int64) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(userID, 10),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(v.tokenTTL)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}
