package product

import "time"

const (
	EventProductCreated         = "PaymentProductCreated"
	EventProductActivated       = "PaymentProductActivated"
	EventProductCreationRevoked = "PaymentProductCreationRevoked"
	EventProductDeactivated     = "PaymentProductDeactivated"
)

type ProductCreated struct {
	ProductID      string    `json:"product_id"`
	ApplicationKey string    `json:"application_key"`
	ExternalKey    string    `json:"external_key"`
	Name           string    `json:"name"`
	Method         string    `json:"method"`
	CreatedAt      time.Time `json:"created_at"`
}

type ProductActivated struct {
	ProductID   string    `json:"product_id"`
	ActivatedAt time.Time `json:"activated_at"`
}

type ProductCreationRevoked struct {
	ProductID string    `json:"product_id"`
	Reason    string    `json:"reason"`
	RevokedAt time.Time `json:"revoked_at"`
}

type ProductDeactivated struct {
	ProductID     string    `json:"product_id"`
	Reason        string    `json:"reason"`
	DeactivatedAt time.Time `json:"deactivated_at"`
}
