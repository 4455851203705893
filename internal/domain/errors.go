package domain

import "errors"

// Engine errors. Every failure leaves engine state exactly as it was before
// the call.
var (
	ErrNotAuthorized         = errors.New("not authorized")
	ErrAlreadyInitialized    = errors.New("already initialized")
	ErrNotInitialized        = errors.New("not initialized")
	ErrInvalidOperator       = errors.New("operator must be a non-zero address")
	ErrWindowAlreadyActive   = errors.New("window already active")
	ErrNoActiveWindow        = errors.New("no active window")
	ErrInvalidCandidate      = errors.New("invalid candidate")
	ErrInvalidCandidateIndex = errors.New("invalid candidate index")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrSignatureExpired      = errors.New("signature expired")
	ErrInvalidNonce          = errors.New("invalid nonce")
	ErrInvalidSignature      = errors.New("invalid signature")
	ErrSignerMismatch        = errors.New("signer mismatch")
	ErrLengthMismatch        = errors.New("winners length does not match candidates")
	ErrIndexOutOfBounds      = errors.New("index out of bounds")
	ErrTransferFailed        = errors.New("transfer failed")
	ErrTransferPending       = errors.New("transfer broadcast but unconfirmed")
	ErrAmountOverflow        = errors.New("amount overflow")
)

// Infrastructure errors.
var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrRateLimited  = errors.New("rate limited")
	ErrLockHeld     = errors.New("lock already held")
	ErrNotSupported = errors.New("not supported by this deployment")
)
