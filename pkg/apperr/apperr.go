// Package apperr carries the structured failure kinds returned by the registry
// core. Every failure has a kind, a stable code and a human readable message.
package apperr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindMalformedInput Kind = "MalformedInput"
	KindVerification   Kind = "VerificationError"
	KindConflict       Kind = "ConflictError"
	KindAuthorization  Kind = "AuthorizationError"
	KindInvariant      Kind = "InvariantViolation"
	KindNotFound       Kind = "NotFound"
	KindUnavailable    Kind = "Unavailable"
)

type Code string

const (
	CodeMalformedInput       Code = "MALFORMED_INPUT"
	CodeTxNotFound           Code = "NOT_FOUND"
	CodeUnconfirmed          Code = "UNCONFIRMED"
	CodeAddressMismatch      Code = "ADDRESS_MISMATCH"
	CodeContractMismatch     Code = "CONTRACT_MISMATCH"
	CodeCallDataMismatch     Code = "CALL_DATA_MISMATCH"
	CodeReverted             Code = "TRANSACTION_REVERTED"
	CodeIdentityMismatch     Code = "IDENTITY_MISMATCH"
	CodeDuplicateTransaction Code = "DUPLICATE_TRANSACTION"
	CodeDuplicateDocumentID  Code = "DUPLICATE_DOCUMENT_ID"
	CodeAddressAlreadyBound  Code = "ADDRESS_ALREADY_BOUND"
	CodeNotOwner             Code = "NOT_OWNER"
	CodeNotBound             Code = "NOT_BOUND"
	CodeLastWallet           Code = "LAST_WALLET"
	CodeUnknownDocument      Code = "UNKNOWN_DOCUMENT"
	CodeStoreUnavailable     Code = "STORE_UNAVAILABLE"
	CodeLedgerUnavailable    Code = "LEDGER_UNAVAILABLE"
	CodeUpstreamFailure      Code = "UPSTREAM_FAILURE"
)

// Conflict identifies the account that already holds a contested address.
type Conflict struct {
	AccountID string `json:"account_id"`
	Username  string `json:"username"`
}

type Error struct {
	Kind     Kind
	Code     Code
	Message  string
	Conflict *Conflict
	cause    error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Is matches on code so callers can compare against the sentinels below.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

func New(kind Kind, code Code, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

func Wrap(err error, kind Kind, code Code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message, cause: err}
}

func Malformed(format string, args ...any) *Error {
	return New(KindMalformedInput, CodeMalformedInput, format, args...)
}

// Store wraps a persistence failure that is not a client-correctable condition.
func Store(err error, op string) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	return Wrap(err, KindUnavailable, CodeStoreUnavailable, op)
}

var (
	ErrMalformedInput       = &Error{Kind: KindMalformedInput, Code: CodeMalformedInput}
	ErrTxNotFound           = &Error{Kind: KindVerification, Code: CodeTxNotFound}
	ErrUnconfirmed          = &Error{Kind: KindVerification, Code: CodeUnconfirmed}
	ErrAddressMismatch      = &Error{Kind: KindVerification, Code: CodeAddressMismatch}
	ErrContractMismatch     = &Error{Kind: KindVerification, Code: CodeContractMismatch}
	ErrCallDataMismatch     = &Error{Kind: KindVerification, Code: CodeCallDataMismatch}
	ErrReverted             = &Error{Kind: KindVerification, Code: CodeReverted}
	ErrIdentityMismatch     = &Error{Kind: KindVerification, Code: CodeIdentityMismatch}
	ErrDuplicateTransaction = &Error{Kind: KindConflict, Code: CodeDuplicateTransaction}
	ErrDuplicateDocumentID  = &Error{Kind: KindConflict, Code: CodeDuplicateDocumentID}
	ErrAddressAlreadyBound  = &Error{Kind: KindConflict, Code: CodeAddressAlreadyBound}
	ErrNotOwner             = &Error{Kind: KindAuthorization, Code: CodeNotOwner}
	ErrNotBound             = &Error{Kind: KindAuthorization, Code: CodeNotBound}
	ErrLastWallet           = &Error{Kind: KindInvariant, Code: CodeLastWallet}
	ErrUnknownDocument      = &Error{Kind: KindNotFound, Code: CodeUnknownDocument}
	ErrStoreUnavailable     = &Error{Kind: KindUnavailable, Code: CodeStoreUnavailable}
	ErrLedgerUnavailable    = &Error{Kind: KindUnavailable, Code: CodeLedgerUnavailable}
)

// KindOf returns the kind of err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}

func HTTPStatus(err error) int {
	var ae *Error
	if !errors.As(err, &ae) {
		return http.StatusInternalServerError
	}
	if ae.Code == CodeUpstreamFailure {
		return http.StatusBadGateway
	}
	switch ae.Kind {
	case KindMalformedInput:
		return http.StatusBadRequest
	case KindVerification:
		return http.StatusUnprocessableEntity
	case KindConflict:
		return http.StatusConflict
	case KindAuthorization:
		return http.StatusForbidden
	case KindInvariant:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

type response struct {
	Kind     Kind      `json:"kind,omitempty"`
	Code     Code      `json:"code,omitempty"`
	Error    string    `json:"error"`
	Conflict *Conflict `json:"conflict,omitempty"`
}

// Write renders err as a JSON body. Unavailable and unclassified errors never
// leak their cause to the client.
func Write(w http.ResponseWriter, err error) {
	status := HTTPStatus(err)
	body := response{Error: "Internal server error"}
	var ae *Error
	if errors.As(err, &ae) {
		body.Kind = ae.Kind
		body.Code = ae.Code
		body.Conflict = ae.Conflict
		body.Error = ae.Message
		if ae.Kind == KindUnavailable {
			body.Error = "Service unavailable"
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
