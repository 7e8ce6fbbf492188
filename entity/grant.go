package entity

import "time"

// Grant is the active record of an issued role entitlement ("licensed member").
// At most one Grant exists per (MemberID, RoleID).
type Grant struct {
	MemberID  int64     `json:"member_id" bson:"member_id"`
	GroupID   int64     `json:"group_id" bson:"group_id"`
	RoleID    int64     `json:"role_id" bson:"role_id"`
	ExpiresAt time.Time `json:"expires_at" bson:"expires_at"`
}

// Expired reports whether the grant expired strictly before now.
func (g *Grant) Expired(now time.Time) bool {
	return g.ExpiresAt.Before(now)
}
