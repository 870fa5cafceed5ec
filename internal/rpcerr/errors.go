// Package rpcerr implements the runtime's error taxonomy: a small set of
// typed kinds with a fixed propagation policy, wrapped with %w so callers can
// still errors.Is/errors.As through to underlying causes.
package rpcerr

import (
	"errors"
	"fmt"
)

// Kind is one of the taxonomy rows.
type Kind string

const (
	NotFound            Kind = "not_found"          // 404-class
	InsufficientFunds   Kind = "insufficient_funds" // 402-class, no retry
	RateLimited         Kind = "rate_limited"       // 429-class
	InsufficientHistory Kind = "insufficient_history"
	ToolArity           Kind = "tool_arity" // retry up to N, else 502-class
	ToolParse           Kind = "tool_parse" // retry up to N, else 502-class
	NoUsage             Kind = "no_usage"
	Timeout             Kind = "timeout"      // retry embedder/LLM up to 2x with jitter
	Transient           Kind = "transient"    // same retry policy as Timeout
	SchemaDrift         Kind = "schema_drift" // fatal at boot
	Fatal               Kind = "fatal"        // invariant violation, abort + alert
)

// Error carries a Kind alongside the wrapped cause so callers can branch on
// propagation policy without string-matching messages.
type Error struct {
	Kind Kind
	Op   string // the operation that failed, e.g. "roleplay.Turn"
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is allows errors.Is(err, rpcerr.New(rpcerr.NotFound, "", nil)) style checks
// by comparing Kind, matching the convention of a pure sentinel target.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Kind == e.Kind
	}
	return false
}

// New wraps err (which may be nil) under op with the given kind.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Of reports the Kind carried by err, if any, and whether one was found.
func Of(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// Is reports whether err (or something it wraps) carries the given Kind.
func Is(err error, kind Kind) bool {
	k, ok := Of(err)
	return ok && k == kind
}

// Retryable reports whether the taxonomy's propagation policy calls for a
// retry (Timeout and Transient share a retry-with-jitter policy).
func Retryable(err error) bool {
	return Is(err, Timeout) || Is(err, Transient)
}
