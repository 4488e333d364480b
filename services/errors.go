package services

import (
	"errors"
)

// Error kinds. Every DomainError unwraps to exactly one of these so callers
// can branch with errors.Is without knowing the specific failure.
var (
	ErrValidation           = errors.New("validation error")
	ErrUnauthenticated      = errors.New("unauthenticated")
	ErrAuthorization        = errors.New("not authorized")
	ErrNotFound             = errors.New("not found")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrConflict             = errors.New("state has changed")
	ErrAlreadySettled       = errors.New("already settled")
	ErrConsistencyViolation = errors.New("consistency violation")
)

// DomainError is a specific, client-facing failure.
type DomainError struct {
	Kind    error
	Code    string
	Message string
}

func (e *DomainError) Error() string { return e.Message }
func (e *DomainError) Unwrap() error { return e.Kind }

func newError(kind error, code, message string) *DomainError {
	return &DomainError{Kind: kind, Code: code, Message: message}
}

var (
	ErrInvalidBet    = newError(ErrValidation, "invalid_bet", "bet amount is below the minimum")
	ErrUnknownMove   = newError(ErrValidation, "unknown_move", "unknown move")
	ErrMissingUserID = newError(ErrUnauthenticated, "unauthenticated", "caller identity is required")

	ErrSelfAcceptance = newError(ErrAuthorization, "self_acceptance", "you cannot accept your own duel")
	ErrNotYourTurn    = newError(ErrAuthorization, "not_your_turn", "it is not your turn")
	ErrNotParticipant = newError(ErrAuthorization, "not_participant", "you are not a participant of this duel")
	ErrNotDuelCreator = newError(ErrAuthorization, "not_duel_creator", "only the creator can cancel this duel")

	ErrDuelNotFound         = newError(ErrNotFound, "duel_not_found", "duel not found")
	ErrBattleNotFound       = newError(ErrNotFound, "battle_not_found", "battle not found")
	ErrProfileNotFound      = newError(ErrNotFound, "profile_not_found", "profile not found")
	ErrNotificationNotFound = newError(ErrNotFound, "notification_not_found", "notification not found")

	ErrCreatorFunds       = newError(ErrInsufficientFunds, "insufficient_funds", "insufficient coins for this bet")
	ErrAcceptorFunds      = newError(ErrInsufficientFunds, "insufficient_funds", "insufficient coins to accept this duel")
	ErrCreatorCannotCover = newError(ErrInsufficientFunds, "creator_insufficient_funds", "the duel creator can no longer cover this bet")

	ErrDuelNoLongerOpen  = newError(ErrConflict, "duel_no_longer_open", "duel is no longer open")
	ErrStaleBattleState  = newError(ErrConflict, "stale_battle_state", "battle state has changed, refresh and try again")
	ErrBattleNotReady    = newError(ErrConflict, "battle_not_ready", "duel has not been accepted yet")
	ErrDuelCancelled     = newError(ErrConflict, "duel_cancelled", "duel has been cancelled")
	ErrBattleNotFinished = newError(ErrConflict, "battle_not_finished", "battle has not finished yet")
	ErrWinnerMismatch    = newError(ErrConflict, "winner_mismatch", "winner does not match the finished battle")
	ErrDuelNotInProgress = newError(ErrConflict, "duel_not_in_progress", "duel is not in progress")

	ErrDuelAlreadySettled = newError(ErrAlreadySettled, "already_settled", "duel has already been settled")
)

// consistencyError describes a broken invariant. It is never expected in
// correct operation and always aborts the surrounding transaction.
func consistencyError(message string) *DomainError {
	return newError(ErrConsistencyViolation, "consistency_violation", message)
}

// ErrorCode returns the machine-readable code of err, or "internal".
func ErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return "internal"
}

// invalidRequest is a one-off validation failure.
func invalidRequest(message string) *DomainError {
	return newError(ErrValidation, "invalid_request", message)
}
