package entity

import (
	"licensebot/lib/validate"
	"net/http"
	"time"
)

// License is an unredeemed code entitling its holder to one licensed role
// in one group for DurationHours. Licenses are created in batches by a group
// administrator and deleted when redeemed; they are never updated in place.
type License struct {
	Code          string    `json:"code" bson:"code" validate:"required"`
	GroupID       int64     `json:"group_id" bson:"group_id" validate:"required"`
	RoleID        int64     `json:"role_id" bson:"role_id" validate:"required"`
	DurationHours int       `json:"duration_hours" bson:"duration_hours" validate:"min=1,max=876000"`
	CreatedAt     time.Time `json:"created_at" bson:"created_at"`
}

func (l *License) Validate() error {
	return validate.Struct(l)
}

// GenerateRequest is the body of a license generation call on the admin API.
// Zero RoleID or DurationHours fall back to the group defaults.
type GenerateRequest struct {
	Count         int   `json:"count" validate:"required,min=1"`
	RoleID        int64 `json:"role_id" validate:"omitempty"`
	DurationHours int   `json:"duration_hours" validate:"omitempty,min=1,max=876000"`
}

func (g *GenerateRequest) Bind(_ *http.Request) error {
	return validate.Struct(g)
}
