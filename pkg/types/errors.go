package types

import (
	"errors"
	"fmt"
)

// Kind identifies a failure class. Callers branch on the kind of a returned
// error instead of matching message strings.
type Kind string

const (
	KindSignatureInvalid  Kind = "SIGNATURE_INVALID"
	KindRateLimit         Kind = "RATE_LIMIT"
	KindAuthentication    Kind = "AUTHENTICATION"
	KindSync              Kind = "SYNC"
	KindIntegrity         Kind = "INTEGRITY"
	KindTaskExecution     Kind = "TASK_EXECUTION"
	KindNotRollbackable   Kind = "NOT_ROLLBACKABLE"
	KindAlreadyRolledBack Kind = "ALREADY_ROLLED_BACK"
	KindTransient         Kind = "TRANSIENT"
)

type Fault struct {
	Kind    Kind
	Message string
	Err     error
}

func (f *Fault) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %s: %v", f.Kind, f.Message, f.Err)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

func (f *Fault) Unwrap() error {
	return f.Err
}

func NewFault(kind Kind, message string) *Fault {
	return &Fault{Kind: kind, Message: message}
}

func WrapFault(kind Kind, message string, err error) *Fault {
	return &Fault{Kind: kind, Message: message, Err: err}
}

func Faultf(kind Kind, format string, args ...any) *Fault {
	return &Fault{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of err, or the empty string when err carries none.
func KindOf(err error) Kind {
	var f *Fault
	if errors.As(err, &f) {
		return f.Kind
	}
	return ""
}

func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
