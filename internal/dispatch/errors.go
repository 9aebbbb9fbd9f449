package dispatch

import (
	"errors"

	"github.com/shakram02/go-mcp-sql-db/internal/policy"
)

// Kind classifies a dispatch failure.
type Kind string

const (
	KindUnknownOperation      Kind = "UnknownOperation"
	KindInvalidArguments      Kind = "InvalidArguments"
	KindStatementKindMismatch Kind = "StatementKindMismatch"
	KindBlockedCommand        Kind = "BlockedCommand"
	KindObjectNotFound        Kind = "ObjectNotFound"
	KindQueryError            Kind = "QueryError"
)

var (
	ErrUnknownOperation      = errors.New("unknown operation")
	ErrInvalidArguments      = errors.New("invalid arguments")
	ErrStatementKindMismatch = errors.New("statement kind mismatch")
	ErrObjectNotFound        = errors.New("object not found")
	ErrQuery                 = errors.New("query failed")
)

func (k Kind) sentinel() error {
	switch k {
	case KindUnknownOperation:
		return ErrUnknownOperation
	case KindInvalidArguments:
		return ErrInvalidArguments
	case KindStatementKindMismatch:
		return ErrStatementKindMismatch
	case KindBlockedCommand:
		return policy.ErrBlocked
	case KindObjectNotFound:
		return ErrObjectNotFound
	default:
		return ErrQuery
	}
}

// Error is a classified failure of one operation. It matches the sentinel of
// its Kind with errors.Is.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == e.Kind.sentinel() }

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}
