package clientapp

import "time"

const (
	EventClientApplicationCreated         = "ClientApplicationCreated"
	EventClientApplicationActivated       = "ClientApplicationActivated"
	EventClientApplicationCreationRevoked = "ClientApplicationCreationRevoked"
	EventClientApplicationDeactivated     = "ClientApplicationDeactivated"
)

type ClientApplicationCreated struct {
	ApplicationID string    `json:"application_id"`
	ExternalKey   string    `json:"external_key"`
	Name          string    `json:"name"`
	CreatedAt     time.Time `json:"created_at"`
}

type ClientApplicationActivated struct {
	ApplicationID string    `json:"application_id"`
	ActivatedAt   time.Time `json:"activated_at"`
}

type ClientApplicationCreationRevoked struct {
	ApplicationID string    `json:"application_id"`
	Reason        string    `json:"reason"`
	RevokedAt     time.Time `json:"revoked_at"`
}

type ClientApplicationDeactivated struct {
	ApplicationID string    `json:"application_id"`
	Reason        string    `json:"reason"`
	DeactivatedAt time.Time `json:"deactivated_at"`
}
