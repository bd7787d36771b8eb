package store

import (
	"database/sql"
	"errors"
	"fmt"
)

// Kind classifies every error that leaves the storage boundary.
type Kind int

const (
	KindStorage Kind = iota
	KindConfiguration
	KindNotFound
	KindState
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindNotFound:
		return "not_found"
	case KindState:
		return "state"
	default:
		return "storage"
	}
}

// Sentinels for errors.Is. An *Error matches the sentinel of its Kind.
var (
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrState         = errors.New("illegal state transition")
	ErrStorage       = errors.New("storage unavailable")
)

// Error carries the Kind, the failing operation and the underlying cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.sentinel())
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	return target == e.sentinel()
}

func (e *Error) sentinel() error {
	switch e.Kind {
	case KindConfiguration:
		return ErrConfiguration
	case KindNotFound:
		return ErrNotFound
	case KindState:
		return ErrState
	default:
		return ErrStorage
	}
}

func ConfigurationError(op, format string, args ...any) error {
	return &Error{Kind: KindConfiguration, Op: op, Err: fmt.Errorf(format, args...)}
}

func NotFoundError(op, format string, args ...any) error {
	return &Error{Kind: KindNotFound, Op: op, Err: fmt.Errorf(format, args...)}
}

func StateError(op, format string, args ...any) error {
	return &Error{Kind: KindState, Op: op, Err: fmt.Errorf(format, args...)}
}

func StorageError(op string, err error) error {
	return &Error{Kind: KindStorage, Op: op, Err: err}
}

// KindOf reports the Kind of err. Errors that were never classified are
// treated as storage failures.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindStorage
}

func IsNotFound(err error) bool      { return errors.Is(err, ErrNotFound) }
func IsState(err error) bool         { return errors.Is(err, ErrState) }
func IsConfiguration(err error) bool { return errors.Is(err, ErrConfiguration) }
func IsStorage(err error) bool       { return err != nil && KindOf(err) == KindStorage }

// classify translates driver and context errors into the taxonomy.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	if errors.Is(err, sql.ErrNoRows) {
		return &Error{Kind: KindNotFound, Op: op, Err: err}
	}
	// Timeouts, cancellation and driver failures all surface as storage errors.
	return &Error{Kind: KindStorage, Op: op, Err: err}
}
