package authtoken

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ReceiptClaims is a paid order signed by the payment provider.
type ReceiptClaims struct {
	// Order is the provider's order id.
	Order string `json:"order"`
	jwt.RegisteredClaims
}

// Receipt is a verified paid order.
type Receipt struct {
	OwnerID string
	OrderID string
}

// IssueReceipt signs a receipt for an order paid by ownerID. A zero ttl never
// expires.
func IssueReceipt(secret, ownerID, orderID string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("signing secret is required")
	}
	if ownerID == "" || orderID == "" {
		return "", errors.New("owner id and order id are required")
	}

	now := time.Now()
	claims := ReceiptClaims{
		Order: orderID,
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
		return "", fmt.Errorf("sign receipt: %w", err)
	}
	return signed, nil
}

// ParseReceipt verifies receipt against secret.
func ParseReceipt(secret, receipt string) (Receipt, error) {
	var claims ReceiptClaims
	_, err := jwt.ParseWithClaims(receipt, &claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Receipt{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" || claims.Order == "" {
		return Receipt{}, fmt.Errorf("%w: receipt needs a subject and an order", ErrInvalidToken)
	}
	return Receipt{OwnerID: claims.Subject, OrderID: claims.Order}, nil
}
