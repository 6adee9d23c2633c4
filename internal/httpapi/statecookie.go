package httpapi

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tcmvision-hue/post-it-core/pkg/postit"
)

const (
	userCookieName  = "post_it_uid"
	stateCookieName = "post_it_state"
)

// StateCookieCodec signs and verifies the client-held state snapshot. The
// cookie is a hint for rehydration across stateless instances; decode fails
// open to nil so a bad cookie never breaks a request.
type StateCookieCodec struct {
	signingKey []byte
	ttl        time.Duration
	nowFn      func() time.Time
}

type stateClaims struct {
	Snapshot postit.Snapshot `json:"snap"`
	jwt.RegisteredClaims
}

// NewStateCookieCodec wires a codec.
func NewStateCookieCodec(signingKey []byte, ttl time.Duration, now func() time.Time) (*StateCookieCodec, error) {
	if len(signingKey) == 0 {
		return nil, fmt.Errorf("statecookie: signing key is required")
	}
	if now == nil {
		now = time.Now
	}
	return &StateCookieCodec{signingKey: signingKey, ttl: ttl, nowFn: now}, nil
}

// Encode serializes a snapshot into a signed cookie value.
func (codec *StateCookieCodec) Encode(snapshot postit.Snapshot) (string, error) {
	now := codec.nowFn()
	claims := stateClaims{
		Snapshot: snapshot,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   snapshot.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(codec.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(codec.signingKey)
}

// Decode verifies a cookie value and returns its snapshot, or nil for any
// malformed, expired, forged, or mismatched-user cookie.
func (codec *StateCookieCodec) Decode(value string, expectedUserID string) *postit.Snapshot {
	if value == "" || expectedUserID == "" {
		return nil
	}
	claims := &stateClaims{}
	token, err := jwt.ParseWithClaims(value, claims, func(token *jwt.Token) (any, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return codec.signingKey, nil
	}, jwt.WithTimeFunc(codec.nowFn))
	if err != nil || !token.Valid {
		return nil
	}
	if claims.Snapshot.UserID != expectedUserID {
		return nil
	}
	return &claims.Snapshot
}
