package entitlement

import (
	"errors"
	"fmt"
	"licensebot/lib/clock"
	"time"
)

var (
	ErrProviderNotConnected = errors.New("group provider not connected")

	ErrInvalidLicense   = errors.New("license is invalid or deactivated")
	ErrWrongGroup       = errors.New("license belongs to another group")
	ErrGroupNotFound    = errors.New("group not found")
	ErrPermissionDenied = errors.New("missing permission to manage roles")
	ErrMemberNotFound   = errors.New("member not found in group")
	ErrRoleNotFound     = errors.New("licensed role not found in group")
	ErrAlreadyActive    = errors.New("subscription already active")
	ErrRepairFailed     = errors.New("grant repair failed")
	ErrNoSubscription   = errors.New("no subscription for that role")

	ErrInvalidCount     = errors.New("count must be positive")
	ErrTooMany          = errors.New("too many licenses requested")
	ErrQuotaExceeded    = errors.New("unused license quota reached")
	ErrQuotaWouldExceed = errors.New("unused license quota would be exceeded")
	ErrNoDefaultRole    = errors.New("no default role configured")
	ErrDurationTooLong  = errors.New("license duration too long")
)

// AlreadyActiveError is returned when the member already holds the role with
// an active grant. The license is left unredeemed.
type AlreadyActiveError struct {
	Expiration time.Time
	Remaining  time.Duration
}

func (e *AlreadyActiveError) Error() string {
	return fmt.Sprintf("%s: valid for another %s", ErrAlreadyActive, clock.FormatRemaining(e.Remaining))
}

func (e *AlreadyActiveError) Is(target error) bool {
	return target == ErrAlreadyActive
}

// QuotaWouldExceedError reports how many licenses can still be generated.
type QuotaWouldExceedError struct {
	Quota     int
	Remaining int
}

func (e *QuotaWouldExceedError) Error() string {
	return fmt.Sprintf("%s: limit %d, remaining %d", ErrQuotaWouldExceed, e.Quota, e.Remaining)
}

func (e *QuotaWouldExceedError) Is(target error) bool {
	return target == ErrQuotaWouldExceed
}

// checkDuration rejects durations that cannot be added to a redemption time.
func checkDuration(hours int) error {
	if hours > clock.MaxDurationHours {
		return fmt.Errorf("%w: at most %d hours", ErrDurationTooLong, clock.MaxDurationHours)
	}
	return nil
}
