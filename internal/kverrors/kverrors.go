// Package kverrors defines the small set of error codes a worker can
// return to a caller, generalized from the teacher's store.Error.
package kverrors

// Code classifies why an operation on a key could not be served.
type Code int

const (
	// Success is never wrapped in an Error; callers test for nil.
	CodeKeyDNE Code = iota + 1
	CodeWrongThread
	CodeLatticeMismatch
	CodeInternal
)

func (c Code) String() string {
	switch c {
	case CodeKeyDNE:
		return "KEY_DNE"
	case CodeWrongThread:
		return "WRONG_THREAD"
	case CodeLatticeMismatch:
		return "LATTICE_MISMATCH"
	case CodeInternal:
		return "INTERNAL_ERROR"
	default:
		return "UNKNOWN"
	}
}

// Error is the error type handed back across the wire and from storage.
// It mirrors the teacher's store.Error{Code, Msg} shape exactly.
type Error struct {
	Code Code
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Code.String()
	}
	return e.Code.String() + ": " + e.Msg
}

func New(code Code, msg string) *Error {
	return &Error{Code: code, Msg: msg}
}

func KeyDNE(key string) *Error {
	return &Error{Code: CodeKeyDNE, Msg: "no such key: " + key}
}

func WrongThread(key string) *Error {
	return &Error{Code: CodeWrongThread, Msg: "key not owned by this thread: " + key}
}

func LatticeMismatch(key string) *Error {
	return &Error{Code: CodeLatticeMismatch, Msg: "lattice type mismatch for key: " + key}
}

// Is allows errors.Is(err, kverrors.CodeKeyDNE) style checks via a
// sentinel comparison on Code rather than pointer identity.
func Is(err error, code Code) bool {
	e, ok := err.(*Error)
	return ok && e.Code == code
}
