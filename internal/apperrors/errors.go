// Package apperrors provides the structured error taxonomy used at the
// party-coordinator and data-layer boundaries instead of ad hoc exceptions:
// every failure that should be rendered back to a caller is a typed Code,
// not a string the caller has to pattern-match.
package apperrors

import "fmt"

// Code identifies a user-facing error class. It is a value the caller
// switches on, never an exception type.
type Code string

// Party coordinator taxonomy (spec §7).
const (
	CodeAlreadyInParty        Code = "ALREADY_IN_PARTY"
	CodeNotInParty            Code = "NOT_IN_PARTY"
	CodeNotLeader             Code = "NOT_LEADER"
	CodeNotModerator          Code = "NOT_MODERATOR"
	CodeTargetAlreadyInParty  Code = "TARGET_ALREADY_IN_PARTY"
	CodeTargetNotInParty      Code = "TARGET_NOT_IN_PARTY"
	CodeInviteAlreadyPending  Code = "INVITE_ALREADY_PENDING"
	CodeInviteNotFound        Code = "INVITE_NOT_FOUND"
	CodeInviteExpired         Code = "INVITE_EXPIRED"
	CodePartyFull             Code = "PARTY_FULL"
	CodeLeaderOnlyAction      Code = "LEADER_ONLY_ACTION"
	CodeCannotTargetSelf      Code = "CANNOT_TARGET_SELF"
	CodeRedisUnavailable      Code = "REDIS_UNAVAILABLE"
	CodeUnknown               Code = "UNKNOWN"
)

// Data layer taxonomy (spec §4.G / §7).
const (
	CodeSaveFailed        Code = "SAVE_FAILED"
	CodeNoSQLTranslation  Code = "NO_SQL_TRANSLATION"
	CodeBackendUnavailable Code = "BACKEND_UNAVAILABLE"
)

// Reservation taxonomy (spec §4.F).
const (
	CodeNoOnlineMembers  Code = "NO_ONLINE_MEMBERS"
	CodeTeamSizeExceeded Code = "TEAM_SIZE_EXCEEDED"
)

// Error is a structured, renderable error: a Code plus a human message and
// an optional wrapped cause for logs.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates an Error with no wrapped cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap creates an Error around an existing cause.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf extracts the Code from an *Error. A nil err yields the empty
// Code; any other error that is not itself an *Error yields CodeUnknown.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var e *Error
	if as, ok := err.(*Error); ok {
		e = as
	} else {
		return CodeUnknown
	}
	return e.Code
}
