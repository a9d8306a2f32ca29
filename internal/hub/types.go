package hub

import "time"

// Status is a hub's administrative state.
type Status string

const (
	StatusActive  Status = "active"
	StatusRevoked Status = "revoked"
)

// DefaultLabel and DefaultMaxMsgsPerMinute apply to hubs created
// without them.
const (
	DefaultLabel            = "Untitled"
	DefaultMaxMsgsPerMinute = 60
)

// Hub is one registered home hub.
type Hub struct {
	ID               string    `json:"hubId"`
	SecretHash       string    `json:"-"`
	Label            string    `json:"label"`
	Status           Status    `json:"status"`
	MaxMsgsPerMinute int       `json:"maxMsgsPerMinute"`
	OwnerEmail       string    `json:"ownerEmail,omitempty"`
	OwnerIdentity    string    `json:"ownerIdentity,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// IsActive reports whether the hub may register.
func (h *Hub) IsActive() bool {
	return h.Status == StatusActive
}

// Patch is a partial admin update. Nil fields are left unchanged; an
// empty OwnerEmail clears it.
type Patch struct {
	Label            *string `json:"label,omitempty"`
	MaxMsgsPerMinute *int    `json:"maxMsgsPerMinute,omitempty"`
	OwnerEmail       *string `json:"ownerEmail,omitempty"`
}

// Validate checks the patch values.
func (p Patch) Validate() error {
	if p.MaxMsgsPerMinute != nil && *p.MaxMsgsPerMinute < 0 {
		return ErrInvalidHub
	}
	return nil
}
