package loader

import (
	"errors"
	"fmt"
)

// Kind classifies a load failure.
type Kind int

const (
	KindConfig Kind = iota + 1 // malformed or incomplete specification
	KindParse                  // filename metadata does not match the date format
	KindIO                     // source file unreadable or stream failure
	KindStore                  // audit or target store round trip failed
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindParse:
		return "parse"
	case KindIO:
		return "io"
	case KindStore:
		return "store"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is matching against an *Error of the same kind.
var (
	ErrConfig = errors.New("configuration error")
	ErrParse  = errors.New("parse error")
	ErrIO     = errors.New("io error")
	ErrStore  = errors.New("store error")
)

// ErrNoRows is returned by Row.Scan when a query produced no result.
// Stores translate their driver's equivalent into this value.
var ErrNoRows = errors.New("no rows in result set")

// Error is a classified load error. Op names the step that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel for e's kind.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrConfig:
		return e.Kind == KindConfig
	case ErrParse:
		return e.Kind == KindParse
	case ErrIO:
		return e.Kind == KindIO
	case ErrStore:
		return e.Kind == KindStore
	}
	return false
}

func configError(op string, err error) error { return &Error{Kind: KindConfig, Op: op, Err: err} }
func parseError(op string, err error) error  { return &Error{Kind: KindParse, Op: op, Err: err} }
func ioError(op string, err error) error     { return &Error{Kind: KindIO, Op: op, Err: err} }
func storeError(op string, err error) error  { return &Error{Kind: KindStore, Op: op, Err: err} }

// KindOf returns the kind of the first *Error in err's chain, or 0.
func KindOf(err error) Kind {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	return 0
}
