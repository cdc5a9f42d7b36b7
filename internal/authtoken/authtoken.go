// Package authtoken issues and verifies the HS256 bearer tokens that identify an
// owner and their subscription tier to the remote store.
package authtoken

import (
	"errors"
	"fmt"
	"time"

	"github.com/atinyakov/learnpath/internal/models"
	"github.com/golang-jwt/jwt/v5"
)

// Claims are the registered JWT claims plus the owner's tier.
type Claims struct {
	// Tier is the subscription tier of the subject.
	Tier models.Tier `json:"tier"`
	jwt.RegisteredClaims
}

// Identity is the verified caller derived from a token.
type Identity struct {
	// OwnerID is the token subject.
	OwnerID string
	// Tier is the subscription tier claimed by the token.
	Tier models.Tier
}

// ErrInvalidToken is returned for tokens that fail parsing or verification.
var ErrInvalidToken = errors.New("invalid token")

// Issue signs a token for ownerID valid for ttl.
//
//	secret: HMAC signing key shared with the server
//	ownerID: subject of the token
//	tier:    subscription tier carried in the "tier" claim
//	ttl:     lifetime; zero means the token never expires
func Issue(secret, ownerID string, tier models.Tier, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("signing secret is required")
	}
	if ownerID == "" {
		return "", errors.New("owner id is required")
	}
	if !models.ValidTier(tier) {
		return "", fmt.Errorf("unknown tier %q", tier)
	}

	now := time.Now()
	claims := Claims{
		Tier: tier,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  ownerID,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Parse verifies token against secret and returns the caller identity.
func Parse(secret, token string) (Identity, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return identityFrom(claims)
}

// ParseUnverified reads the identity from token without checking its signature.
// Clients use it to learn who they are; only the server may trust the result.
func ParseUnverified(token string) (Identity, error) {
	var claims Claims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return identityFrom(claims)
}

func identityFrom(claims Claims) (Identity, error) {
	if claims.Subject == "" {
		return Identity{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	tier := claims.Tier
	if !models.ValidTier(tier) {
		tier = models.TierFree
	}
	return Identity{OwnerID: claims.Subject, Tier: tier}, nil
}
