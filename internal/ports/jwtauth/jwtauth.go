package jwtauth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"trickroom/internal/ports"

	"github.com/form3tech-oss/jwt-go"
)

// Verifier resolves HS256 session tokens to identities and issues them for development clients.
type Verifier struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// New returns a verifier for tokens signed with secret. An empty issuer accepts any issuer.
func New(secret, issuer string) *Verifier {
	return &Verifier{secret: []byte(secret), issuer: issuer, now: time.Now}
}

// Issue signs a token for userID that expires after ttl.
func (v *Verifier) Issue(userID, displayName string, ttl time.Duration) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("user is required")
	}
	now := v.now()
	claims := jwt.MapClaims{
		"sub":  userID,
		"name": displayName,
		"iat":  now.Unix(),
		"exp":  now.Add(ttl).Unix(),
	}
	if v.issuer != "" {
		claims["iss"] = v.issuer
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// Resolve validates credential (optionally prefixed with "Bearer ") and returns its subject.
func (v *Verifier) Resolve(_ context.Context, credential string) (ports.Identity, error) {
	raw := strings.TrimSpace(strings.TrimPrefix(credential, "Bearer "))
	if raw == "" {
		return ports.Identity{}, ports.ErrUnauthenticated
	}

	token, err := jwt.Parse(raw, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return ports.Identity{}, fmt.Errorf("%w: %v", ports.ErrUnauthenticated, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return ports.Identity{}, ports.ErrUnauthenticated
	}
	if v.issuer != "" && !claims.VerifyIssuer(v.issuer, true) {
		return ports.Identity{}, fmt.Errorf("%w: issuer mismatch", ports.ErrUnauthenticated)
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return ports.Identity{}, fmt.Errorf("%w: token has no subject", ports.ErrUnauthenticated)
	}
	name, _ := claims["name"].(string)
	if name == "" {
		name = sub
	}
	return ports.Identity{UserID: sub, DisplayName: name}, nil
}

var _ ports.IdentityPort = (*Verifier)(nil)
