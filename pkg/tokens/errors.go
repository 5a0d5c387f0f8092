package tokens

import "errors"

// Decode failures are distinguished internally for logging only; callers
// outside the auth service must collapse them to a single unauthenticated
// outcome so the response does not reveal which check failed.
var (
	ErrMalformed = errors.New("token malformed")
	ErrSignature = errors.New("token signature invalid")
	ErrExpired   = errors.New("token expired")
	ErrWrongKind = errors.New("token kind mismatch")
)
