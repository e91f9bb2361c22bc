package transaction

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformed is returned for byte strings that can't be decoded into
	// a transaction.
	ErrMalformed = errors.New("malformed transaction")
	// ErrPrunableUnavailable is returned when a pruned payload can't be
	// restored anymore.
	ErrPrunableUnavailable = errors.New("prunable data unavailable")
	// ErrNotEncrypted is returned on an attempt to serialize an encryptable
	// appendix that wasn't encrypted yet.
	ErrNotEncrypted = errors.New("appendix is not encrypted")
	// ErrInvalidVersion is returned for unsupported appendix versions.
	ErrInvalidVersion = errors.New("unsupported version")
)

// NotValidError is a permanent validation failure, transaction with such
// defect will never be valid.
type NotValidError struct {
	Err error
}

// NotCurrentlyValidError is a transient validation failure, transaction may
// become valid later (timing windows, balances). Retry is set for failures
// that clear by themselves as the chain advances (timestamp ahead of epoch
// time, EC block not reached or not matching after a switch), pooled
// transactions failing this way are kept until the next sweep.
type NotCurrentlyValidError struct {
	Err   error
	Retry bool
}

// NotValidf creates a NotValidError with the formatted cause.
func NotValidf(format string, args ...any) error {
	return &NotValidError{Err: fmt.Errorf(format, args...)}
}

// NotCurrentlyValidf creates a NotCurrentlyValidError with the formatted cause.
func NotCurrentlyValidf(format string, args ...any) error {
	return &NotCurrentlyValidError{Err: fmt.Errorf(format, args...)}
}

// NotYetValidf creates a NotCurrentlyValidError that is worth retrying
// later, see IsDeferred.
func NotYetValidf(format string, args ...any) error {
	return &NotCurrentlyValidError{Err: fmt.Errorf(format, args...), Retry: true}
}

// Error implements the error interface.
func (e *NotValidError) Error() string {
	return "not valid: " + e.Err.Error()
}

// Unwrap returns the cause.
func (e *NotValidError) Unwrap() error {
	return e.Err
}

// Error implements the error interface.
func (e *NotCurrentlyValidError) Error() string {
	return "not currently valid: " + e.Err.Error()
}

// Unwrap returns the cause.
func (e *NotCurrentlyValidError) Unwrap() error {
	return e.Err
}

// IsPermanent returns true for errors that make a transaction invalid
// forever (it should be purged, not deferred).
func IsPermanent(err error) bool {
	var nv *NotValidError
	return errors.As(err, &nv) || errors.Is(err, ErrMalformed)
}

// IsTransient returns true for NotCurrentlyValidError failures.
func IsTransient(err error) bool {
	var ncv *NotCurrentlyValidError
	return errors.As(err, &ncv)
}

// IsDeferred returns true for transient failures that are expected to clear
// without any ledger change, such transactions are deferred, not purged.
func IsDeferred(err error) bool {
	var ncv *NotCurrentlyValidError
	return errors.As(err, &ncv) && ncv.Retry
}
