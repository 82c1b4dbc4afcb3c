// Copyright (c) 2024 djtezos contributors

// Package errors implements the error taxonomy from spec §7: Temporary,
// Permanent and Validation errors, classified the way the teacher's rpc
// package classifies transport errors into httpError/rpcError/plainError
// (see rpc/client.go's handleError) — a small set of concrete types behind
// a couple of narrow predicates, rather than a class hierarchy.
package errors

import (
	"fmt"

	"github.com/pkg/errors"
)

// Temporary wraps a transient condition: network flakiness, counter
// mismatch, insufficient confirmations, operation not yet found within the
// search window. Policy: retry (FSM returns to the phase's entry state) and
// count toward the abort threshold (spec §4.2, §7).
type Temporary struct {
	msg   string
	cause error
}

func (e *Temporary) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.cause)
	}
	return e.msg
}

func (e *Temporary) Unwrap() error { return e.cause }

// Temporaryf builds a Temporary error from a format string.
func Temporaryf(format string, args ...any) error {
	return &Temporary{msg: fmt.Sprintf(format, args...)}
}

// WrapTemporary wraps an existing error as Temporary, preserving it for
// errors.Unwrap/errors.Cause chains.
func WrapTemporary(err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Temporary{msg: msg, cause: err}
}

// Permanent wraps a protocol-level rejection: malformed args/storage,
// script failure, reveal impossible. Policy: transition to the phase's
// terminal *-aborted state (spec §4.2, §7).
type Permanent struct {
	msg   string
	cause error
}

func (e *Permanent) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.cause)
	}
	return e.msg
}

func (e *Permanent) Unwrap() error { return e.cause }

// Permanentf builds a Permanent error from a format string.
func Permanentf(format string, args ...any) error {
	return &Permanent{msg: fmt.Sprintf(format, args...)}
}

// WrapPermanent wraps an existing error as Permanent.
func WrapPermanent(err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Permanent{msg: msg, cause: err}
}

// Validation reports an invariant violation caught before any Provider
// call: bad state name, missing required variant field, address cannot be
// revealed. Policy: raised to the caller of the mutation; the row is never
// persisted (spec §7).
type Validation struct {
	msg string
}

func (e *Validation) Error() string { return e.msg }

// Validationf builds a Validation error from a format string.
func Validationf(format string, args ...any) error {
	return &Validation{msg: fmt.Sprintf(format, args...)}
}

// IsTemporary reports whether err is, or wraps, a Temporary error.
func IsTemporary(err error) bool {
	var t *Temporary
	return errors.As(err, &t)
}

// IsPermanent reports whether err is, or wraps, a Permanent error.
func IsPermanent(err error) bool {
	var p *Permanent
	return errors.As(err, &p)
}

// IsValidation reports whether err is, or wraps, a Validation error.
func IsValidation(err error) bool {
	var v *Validation
	return errors.As(err, &v)
}

// Classify applies spec §7's default: an error that is already Temporary,
// Permanent or Validation keeps its class; anything else (an "unknown exception") is
// treated as Temporary by default, matching the newer flow described in
// spec §7 ("treated as TemporaryError in the newer flow").
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if IsTemporary(err) || IsPermanent(err) || IsValidation(err) {
		return err
	}
	return WrapTemporary(err, "unclassified provider error")
}
