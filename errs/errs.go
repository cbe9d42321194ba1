// Package errs provides structured error types shared across orderdesk.
package errs

import (
	"errors"
	"strconv"
	"strings"
)

// Code identifies a failure category used for retry classification.
type Code string

const (
	// CodeNetwork indicates a transport failure (connect, timeout, read).
	CodeNetwork Code = "network"
	// CodeRateLimited indicates that the request exceeded exchange rate limits.
	CodeRateLimited Code = "rate_limited"
	// CodeClockSkew indicates the request timestamp fell outside recvWindow.
	CodeClockSkew Code = "clock_skew"
	// CodeInvalid indicates invalid input provided by the caller.
	CodeInvalid Code = "invalid_request"
	// CodeExchange indicates an exchange-side failure.
	CodeExchange Code = "exchange_error"
	// CodeNotFound indicates a missing resource.
	CodeNotFound Code = "not_found"
	// CodeConflict indicates a duplicate or conflicting mutation.
	CodeConflict Code = "conflict"
	// CodeUnavailable indicates the service is temporarily unavailable.
	CodeUnavailable Code = "unavailable"
)

// CanonicalCode captures domain-level outcome categories mapped from raw
// exchange errors.
type CanonicalCode string

const (
	// CanonicalUnknown captures uncategorized failures.
	CanonicalUnknown CanonicalCode = "unknown"
	// CanonicalDuplicateOrder indicates a client order id was already submitted.
	CanonicalDuplicateOrder CanonicalCode = "duplicate_order"
	// CanonicalInsufficientBalance indicates insufficient balance for the order.
	CanonicalInsufficientBalance CanonicalCode = "insufficient_balance"
	// CanonicalFilterViolation indicates the order violated a trading-rule filter.
	CanonicalFilterViolation CanonicalCode = "filter_violation"
	// CanonicalOrderNotFound indicates that the referenced order does not exist.
	CanonicalOrderNotFound CanonicalCode = "order_not_found"
	// CanonicalNotTradable indicates the symbol does not currently accept orders.
	CanonicalNotTradable CanonicalCode = "not_tradable"
	// CanonicalRateLimited indicates the request was rate limited.
	CanonicalRateLimited CanonicalCode = "rate_limited"
	// CanonicalClockSkew indicates a timestamp outside the accepted window.
	CanonicalClockSkew CanonicalCode = "clock_skew"
)

// E captures structured error information produced across the orderdesk stack.
type E struct {
	Scope        string
	Code         Code
	HTTP         int
	ExchangeCode int
	RawMsg       string
	Message      string
	Canonical    CanonicalCode
	Remediation  string

	cause error
}

// Option configures an error envelope.
type Option func(*E)

// New constructs an error envelope for the given scope and failure category.
func New(scope string, code Code, opts ...Option) *E {
	e := &E{
		Scope:     strings.TrimSpace(scope),
		Code:      code,
		Canonical: CanonicalUnknown,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// WithMessage attaches a human-readable message to the error.
func WithMessage(message string) Option {
	trimmed := strings.TrimSpace(message)
	return func(e *E) {
		e.Message = trimmed
	}
}

// WithRemediation attaches remediation guidance to the error.
func WithRemediation(remediation string) Option {
	trimmed := strings.TrimSpace(remediation)
	return func(e *E) {
		e.Remediation = trimmed
	}
}

// WithHTTP records the associated HTTP status code.
func WithHTTP(status int) Option {
	return func(e *E) {
		e.HTTP = status
	}
}

// WithExchangeCode captures the raw numeric exchange error code.
func WithExchangeCode(code int) Option {
	return func(e *E) {
		e.ExchangeCode = code
	}
}

// WithRawMessage captures the raw exchange error message.
func WithRawMessage(msg string) Option {
	return func(e *E) {
		e.RawMsg = msg
	}
}

// WithCause sets the underlying cause error.
func WithCause(err error) Option {
	return func(e *E) {
		e.cause = err
	}
}

// WithCanonicalCode sets the canonical code describing the failure category.
func WithCanonicalCode(code CanonicalCode) Option {
	trimmed := strings.TrimSpace(string(code))
	return func(e *E) {
		if trimmed == "" {
			e.Canonical = CanonicalUnknown
			return
		}
		e.Canonical = CanonicalCode(trimmed)
	}
}

func (e *E) Error() string {
	if e == nil {
		return "<nil>"
	}
	var parts []string

	scope := strings.TrimSpace(e.Scope)
	if scope == "" {
		scope = "unknown"
	}
	parts = append(parts, "scope="+scope)

	code := strings.TrimSpace(string(e.Code))
	if code == "" {
		code = "unknown"
	}
	parts = append(parts, "code="+code)

	if cc := strings.TrimSpace(string(e.Canonical)); cc != "" && cc != string(CanonicalUnknown) {
		parts = append(parts, "canonical="+cc)
	}
	if e.HTTP > 0 {
		parts = append(parts, "http="+strconv.Itoa(e.HTTP))
	}
	if e.ExchangeCode != 0 {
		parts = append(parts, "exchange_code="+strconv.Itoa(e.ExchangeCode))
	}
	if e.Message != "" {
		parts = append(parts, "message="+strconv.Quote(e.Message))
	}
	if e.Remediation != "" {
		parts = append(parts, "remediation="+strconv.Quote(e.Remediation))
	}
	if e.RawMsg != "" {
		parts = append(parts, "raw_msg="+strconv.Quote(e.RawMsg))
	}
	if e.cause != nil {
		parts = append(parts, "cause="+strconv.Quote(e.cause.Error()))
	}

	return strings.Join(parts, " ")
}

func (e *E) Unwrap() error { return e.cause }

// Retriable reports whether the failure category is safe to retry with backoff.
func (e *E) Retriable() bool {
	if e == nil {
		return false
	}
	switch e.Code {
	case CodeNetwork, CodeRateLimited, CodeClockSkew, CodeUnavailable:
		return true
	}
	return false
}

// Retriable reports whether err carries a retriable classification.
func Retriable(err error) bool {
	var e *E
	if errors.As(err, &e) {
		return e.Retriable()
	}
	return false
}

// CodeOf extracts the classification code from err, or empty when err does
// not carry one.
func CodeOf(err error) Code {
	var e *E
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// HasCode reports whether err carries the given classification code.
func HasCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// Canonical extracts the canonical code from err, or CanonicalUnknown.
func Canonical(err error) CanonicalCode {
	var e *E
	if errors.As(err, &e) {
		return e.Canonical
	}
	return CanonicalUnknown
}

// HasCanonical reports whether err carries the given canonical code.
func HasCanonical(err error, code CanonicalCode) bool {
	return Canonical(err) == code
}
