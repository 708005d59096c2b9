package common

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindConfiguration
	KindInsufficientBalance
	KindSimulation
	KindReverted
	KindTimeout
	KindUpstream
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConfiguration:
		return "configuration"
	case KindInsufficientBalance:
		return "insufficient_balance"
	case KindSimulation:
		return "simulation"
	case KindReverted:
		return "reverted"
	case KindTimeout:
		return "timeout"
	case KindUpstream:
		return "upstream"
	case KindInternal:
		return "internal"
	}

	return "unknown"
}

// Status maps a kind to the HTTP status the relay answers with. A timeout is
// not a failure: the transaction may still be mined, so callers get 202.
func (k Kind) Status() int {
	switch k {
	case KindValidation, KindReverted:
		return http.StatusBadRequest
	case KindTimeout:
		return http.StatusAccepted
	case KindUpstream:
		return http.StatusBadGateway
	case KindConfiguration, KindInsufficientBalance, KindSimulation, KindInternal:
		return http.StatusInternalServerError
	}

	return http.StatusInternalServerError
}

// Error is the wire shape of every failure the services report. Fields other
// than Message are optional and omitted when empty.
type Error struct {
	Kind Kind `json:"-"`

	Message string `json:"error"`
	Details string `json:"details,omitempty"`

	TxHash   string `json:"txHash,omitempty"`
	Explorer string `json:"explorer,omitempty"`

	Balance  string `json:"balance,omitempty"`
	Required string `json:"required,omitempty"`

	cause error
}

func NewError(kind Kind, message string) *Error {
	return &Error{
		Kind:    kind,
		Message: message,
	}
}

func WrapError(kind Kind, message string, cause error) *Error {
	e := &Error{
		Kind:    kind,
		Message: message,
		cause:   cause,
	}

	if cause != nil {
		e.Details = cause.Error()
	}

	return e
}

func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Details)
	}

	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

func (e *Error) Status() int {
	return e.Kind.Status()
}

func (e *Error) WithTx(hash, explorer string) *Error {
	e.TxHash = hash
	e.Explorer = explorer

	return e
}

// KindOf reports the kind of err, falling back to KindInternal for errors
// that did not originate from this package.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}

	return KindInternal
}

func IsKind(err error, kind Kind) bool {
	var e *Error

	return errors.As(err, &e) && e.Kind == kind
}
