package errs

import (
	stderrors "errors"

	"github.com/pkg/errors"
)

// Error kinds surfaced by the transfer core. Match them with errors.Is.
var (
	ErrIdentityUnavailable = stderrors.New("identity unavailable")
	ErrProvisioningFailed  = stderrors.New("provisioning failed")
	ErrValidation          = stderrors.New("validation error")
	ErrBuildFailed         = stderrors.New("build failed")
	ErrSigningFailed       = stderrors.New("signing failed")
	ErrSubmissionFailed    = stderrors.New("submission failed")
	ErrPollFailed          = stderrors.New("poll failed")
)

// Error tags an underlying error with one of the kinds above.
type Error struct {
	Kind error
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.Error()
	}
	return e.Kind.Error() + ": " + e.Err.Error()
}

func (e *Error) Is(target error) bool { return target == e.Kind }

func (e *Error) Unwrap() error { return e.Err }

// Cause lets errors.Cause from pkg/errors reach the collaborator's error.
func (e *Error) Cause() error { return e.Err }

// Wrap tags err with kind and records a stack trace. A nil err still
// produces an error of that kind.
func Wrap(kind error, err error, message string) error {
	if err != nil && message != "" {
		err = errors.WithMessage(err, message)
	} else if err == nil && message != "" {
		err = errors.New(message)
	}
	return errors.WithStack(&Error{Kind: kind, Err: err})
}

// New returns an error of the given kind with a plain message.
func New(kind error, message string) error {
	return Wrap(kind, nil, message)
}

// Ensure tags err with kind unless it already carries a kind.
func Ensure(kind error, err error) error {
	if err == nil || Kind(err) != nil {
		return err
	}
	return Wrap(kind, err, "")
}

// Kind reports which kind err carries, or nil.
func Kind(err error) error {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return nil
}

// UserMessage is the text shown to the user for err.
func UserMessage(err error) string {
	switch Kind(err) {
	case ErrIdentityUnavailable:
		return "Your session is not available. Please sign in again."
	case ErrProvisioningFailed:
		return "Failed to create or fetch smart account. Please try again later."
	case ErrValidation:
		return "Enter a valid recipient address and a positive amount."
	case ErrBuildFailed, ErrSigningFailed, ErrSubmissionFailed:
		return "Failed to process transfer. Please try again."
	case ErrPollFailed:
		return "Balance may be out of date."
	default:
		return "Something went wrong. Please try again later."
	}
}
