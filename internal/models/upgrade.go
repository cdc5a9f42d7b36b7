package models

// UpgradeRequest confirms a paid order. OrderID carries the payment receipt.
type UpgradeRequest struct {
	OrderID string `json:"order_id"`
}

// UpgradeResponse carries the bearer token issued for the upgraded tier.
type UpgradeResponse struct {
	Token string `json:"token"`
}
