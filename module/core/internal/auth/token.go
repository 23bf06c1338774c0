package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rotisserie/eris"
)

var (
	ErrInvalidToken = eris.New("invalid token")
	ErrMissingToken = eris.New("missing bearer token")
)

// Claims scope a token to the one device whose stream it may watch.
type Claims struct {
	DeviceID string `json:"device_id"`
	jwt.RegisteredClaims
}

type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewIssuer(secret string, ttl time.Duration) *Issuer {
	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (i *Issuer) MakeToken(deviceID string) (string, error) {
	now := i.now()
	claims := Claims{
		DeviceID: deviceID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   deviceID,
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}

func (i *Issuer) ParseToken(tok string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (interface{}, error) {
		return i.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(i.now))
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ParseRequest reads the token from the Authorization header, falling back
// to the token query parameter for browser WebSocket clients.
func (i *Issuer) ParseRequest(r *http.Request) (*Claims, error) {
	if tok, ok := bearer(r); ok {
		return i.ParseToken(tok)
	}
	if tok := r.URL.Query().Get("token"); tok != "" {
		return i.ParseToken(tok)
	}
	return nil, ErrMissingToken
}

// HasKey reports whether r carries key as its bearer credential. An empty
// key matches nothing.
func HasKey(r *http.Request, key string) bool {
	tok, ok := bearer(r)
	if !ok || key == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(tok), []byte(key)) == 1
}

func bearer(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return "", false
	}
	return strings.TrimSpace(header[len("bearer "):]), true
}
