package entity

import (
	"fmt"
	"time"
)

// GroupSettings holds per-group defaults used when licenses are generated
// without an explicit role or duration, and the unused license quota.
type GroupSettings struct {
	GroupID              int64     `json:"group_id" bson:"group_id"`
	DefaultRoleID        int64     `json:"default_role_id" bson:"default_role_id"`
	DefaultDurationHours int       `json:"default_duration_hours" bson:"default_duration_hours"`
	MaxUnusedLicenses    int       `json:"max_unused_licenses" bson:"max_unused_licenses"`
	JoinedAt             time.Time `json:"joined_at" bson:"joined_at"`
}

// Role is a licensed chat registered to a group. Holding the role means
// being a member of that chat.
type Role struct {
	ID      int64  `json:"role_id" bson:"role_id"`
	GroupID int64  `json:"group_id" bson:"group_id"`
	Name    string `json:"name" bson:"name"`
}

// Group and Member are identities resolved through the group provider.
type Group struct {
	ID    int64
	Title string
}

type Member struct {
	ID       int64
	Username string
}

func (m *Member) DisplayName() string {
	if m.Username != "" {
		return fmt.Sprintf("@%s (%d)", m.Username, m.ID)
	}
	return fmt.Sprintf("%d", m.ID)
}
