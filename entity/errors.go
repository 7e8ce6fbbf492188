package entity

import "errors"

// Storage boundary errors. Every store implementation maps its driver
// specific conditions onto these.
var (
	ErrNotFound     = errors.New("not found")
	ErrDuplicateKey = errors.New("duplicate key")
)

// Group provider boundary errors.
var (
	ErrGroupNotFound  = errors.New("group not found")
	ErrMemberNotFound = errors.New("member not found")
	ErrRoleNotFound   = errors.New("role not found")
	ErrRoleNotHeld    = errors.New("member does not hold the role")
	ErrForbidden      = errors.New("forbidden")
	ErrBlocked        = errors.New("direct messages blocked")
)
