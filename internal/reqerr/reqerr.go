// Package reqerr defines the errors surfaced by requirement installation.
//
// Every failure that belongs to the installation contract is a *Error with a
// Kind. Use errors.Is against the sentinel values to dispatch on the kind and
// errors.As to read the payload.
package reqerr

import (
	"errors"
	"fmt"
)

// Kind identifies one class of installation failure.
type Kind int

const (
	KindInvalidFormat Kind = iota + 1
	KindRepeatedRequirement
	KindNonExistentRequirement
	KindInstallationFailure
)

func (k Kind) String() string {
	switch k {
	case KindInvalidFormat:
		return "INVALID_REQS_FILE_FORMAT"
	case KindRepeatedRequirement:
		return "REPEATED_REQ"
	case KindNonExistentRequirement:
		return "NON_EXISTENT_REQ"
	case KindInstallationFailure:
		return "INSTALLATION_FAILURE"
	default:
		return "UNKNOWN"
	}
}

// Sentinels for errors.Is. They match any *Error of the same kind.
var (
	ErrInvalidFormat          = &Error{Kind: KindInvalidFormat}
	ErrRepeatedRequirement    = &Error{Kind: KindRepeatedRequirement}
	ErrNonExistentRequirement = &Error{Kind: KindNonExistentRequirement}
	ErrInstallationFailure    = &Error{Kind: KindInstallationFailure}
)

// Error is an installation failure. Which payload fields are set depends on Kind:
// Line for KindInvalidFormat, Package for KindRepeatedRequirement, Package and
// Version for KindNonExistentRequirement. Err holds the cause of an
// installation failure.
type Error struct {
	Kind    Kind
	Line    int
	Package string
	Version string
	Err     error
}

// InvalidFormat reports a line that is neither ignorable nor a pinned requirement.
func InvalidFormat(line int) *Error {
	return &Error{Kind: KindInvalidFormat, Line: line}
}

// RepeatedRequirement reports a package named more than once.
func RepeatedRequirement(pkg string) *Error {
	return &Error{Kind: KindRepeatedRequirement, Package: pkg}
}

// NonExistentRequirement reports a requirement the package index does not know.
func NonExistentRequirement(pkg, version string) *Error {
	return &Error{Kind: KindNonExistentRequirement, Package: pkg, Version: version}
}

// InstallationFailure reports a failed batch. The batch has already been rolled back.
func InstallationFailure(pkg, version string, cause error) *Error {
	return &Error{Kind: KindInstallationFailure, Package: pkg, Version: version, Err: cause}
}

// Code returns the stable numeric code of the error kind.
func (e *Error) Code() int {
	return int(e.Kind)
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindInvalidFormat:
		return fmt.Sprintf("the requirements file contains an invalid line under the %d number", e.Line)
	case KindRepeatedRequirement:
		return fmt.Sprintf("the requirements file contains a repeated requirement with the %q name", e.Package)
	case KindNonExistentRequirement:
		return fmt.Sprintf("the requirements file contains a non-existent requirement with the %q name and %q version", e.Package, e.Version)
	case KindInstallationFailure:
		msg := fmt.Sprintf("installing %s==%s failed, batch rolled back", e.Package, e.Version)
		if e.Err != nil {
			msg += ": " + e.Err.Error()
		}
		return msg
	default:
		return fmt.Sprintf("unknown requirements error (kind %d)", e.Kind)
	}
}

// Unwrap returns the cause, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// IsInputError reports whether err is a validation error detected before any
// filesystem change.
func IsInputError(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	switch e.Kind {
	case KindInvalidFormat, KindRepeatedRequirement, KindNonExistentRequirement:
		return true
	}
	return false
}
