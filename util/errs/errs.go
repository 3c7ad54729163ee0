package errs

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindNotFound           Kind = "NotFound"
	KindAlreadyExists      Kind = "AlreadyExists"
	KindInvalidArgument    Kind = "InvalidArgument"
	KindAuthRejected       Kind = "AuthRejected"
	KindServiceUnavailable Kind = "ServiceUnavailable"
	KindStageFailure       Kind = "StageFailure"
	KindCycleDetected      Kind = "CycleDetected"
	KindParseError         Kind = "ParseError"
	KindTaskInProgress     Kind = "TaskInProgress"
	KindInternal           Kind = "Internal"
)

// Sentinels match any classified error of the same kind through errors.Is.
var (
	ErrNotFound           = &classifiedError{kind: KindNotFound}
	ErrAlreadyExists      = &classifiedError{kind: KindAlreadyExists}
	ErrInvalidArgument    = &classifiedError{kind: KindInvalidArgument}
	ErrAuthRejected       = &classifiedError{kind: KindAuthRejected}
	ErrServiceUnavailable = &classifiedError{kind: KindServiceUnavailable}
	ErrStageFailure       = &classifiedError{kind: KindStageFailure}
	ErrCycleDetected      = &classifiedError{kind: KindCycleDetected}
	ErrParseError         = &classifiedError{kind: KindParseError}
	ErrTaskInProgress     = &classifiedError{kind: KindTaskInProgress}
)

type classifiedError struct {
	kind    Kind
	code    string
	message string
	details any
	cause   error
}

func (e *classifiedError) Error() string {
	switch {
	case e.message != "" && e.cause != nil:
		return e.message + ": " + e.cause.Error()
	case e.message != "":
		return e.message
	case e.cause != nil:
		return e.cause.Error()
	}
	return string(e.kind)
}

func (e *classifiedError) Unwrap() error {
	return e.cause
}

func (e *classifiedError) Is(target error) bool {
	t, ok := target.(*classifiedError)
	if !ok {
		return false
	}
	return t.code == "" && t.message == "" && t.cause == nil && t.kind == e.kind
}

func New(kind Kind, code, message string) error {
	return &classifiedError{kind: kind, code: code, message: message}
}

func Newf(kind Kind, code, format string, args ...any) error {
	return &classifiedError{kind: kind, code: code, message: fmt.Sprintf(format, args...)}
}

func Wrap(cause error, kind Kind, code, message string) error {
	if cause == nil {
		return nil
	}
	return &classifiedError{kind: kind, code: code, message: message, cause: cause}
}

// WithDetails returns a copy of err carrying details. Unclassified errors are
// wrapped as Internal first.
func WithDetails(err error, details any) error {
	if err == nil {
		return nil
	}
	var classified *classifiedError
	if errors.As(err, &classified) {
		clone := *classified
		clone.details = details
		return &clone
	}
	return &classifiedError{kind: KindInternal, cause: err, details: details}
}

func KindOf(err error) Kind {
	var classified *classifiedError
	if errors.As(err, &classified) {
		return classified.kind
	}
	return ""
}

func CodeOf(err error) string {
	var classified *classifiedError
	if errors.As(err, &classified) {
		if classified.code != "" {
			return classified.code
		}
		return string(classified.kind)
	}
	return ""
}

func MessageOf(err error) string {
	var classified *classifiedError
	if errors.As(err, &classified) && classified.message != "" {
		return classified.message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

func DetailsOf(err error) any {
	var classified *classifiedError
	if errors.As(err, &classified) {
		return classified.details
	}
	return nil
}

func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
