package auction

import (
	"errors"
	"fmt"
)

// ReasonCode is the machine-readable rejection code carried back to clients.
type ReasonCode string

const (
	ReasonItemNotActive      ReasonCode = "ITEM_NOT_ACTIVE"
	ReasonBidTooLow          ReasonCode = "BID_TOO_LOW"
	ReasonInsufficientBudget ReasonCode = "INSUFFICIENT_BUDGET"
	ReasonStaleVersion       ReasonCode = "STALE_VERSION"
	ReasonInvalidState       ReasonCode = "INVALID_SESSION_STATE"
	ReasonNotMember          ReasonCode = "NOT_A_MEMBER"
	ReasonSpinPending        ReasonCode = "SPIN_PENDING"
	ReasonNoSpinPending      ReasonCode = "NO_SPIN_PENDING"
	ReasonNoItems            ReasonCode = "NO_ITEMS_REMAINING"
	ReasonNotRevertible      ReasonCode = "NOT_REVERTIBLE"
	ReasonWrongMode          ReasonCode = "WRONG_AUCTION_MODE"
)

// ValidationError is an expected, client-correctable rejection. It never
// indicates a system fault and is logged at info level.
type ValidationError struct {
	Code    ReasonCode
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewValidationError(code ReasonCode, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// AsValidation unwraps a ValidationError if err carries one.
func AsValidation(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

// ConflictError reports an optimistic-concurrency loss: the bidder's view of
// the item was superseded before their bid landed. Clients retry with the
// current version.
type ConflictError struct {
	ItemID          int64
	ExpectedVersion int64
	ActualVersion   int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: item %d is at version %d, bid submitted against version %d",
		ReasonStaleVersion, e.ItemID, e.ActualVersion, e.ExpectedVersion)
}

func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

// ErrAlreadySettled signals a benign duplicate close. Timer expiry and a
// concurrent sellNow can race to the same item; the loser gets this and
// treats it as a no-op.
var ErrAlreadySettled = errors.New("item already settled")
