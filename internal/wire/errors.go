package wire

import (
	"errors"

	"github.com/matthewbaird/onboarding/internal/catalog"
	"github.com/matthewbaird/onboarding/internal/form"
	"github.com/matthewbaird/onboarding/internal/funding"
	"github.com/matthewbaird/onboarding/internal/onboarding"
	"github.com/matthewbaird/onboarding/internal/sections"
	"github.com/matthewbaird/onboarding/internal/types"
	"github.com/matthewbaird/onboarding/internal/validate"
)

// Stable error codes sent to clients.
const (
	CodeInvalidData  = "invalid_data"
	CodeValidation   = "validation_failed"
	CodeNotFound     = "not_found"
	CodeCapacity     = "capacity_exceeded"
	CodeReadOnly     = "read_only"
	CodeInvalidState = "invalid_state"
	CodeUnknownType  = "unknown_type"
	CodeInternal     = "internal"
)

// Code maps a domain error to its client error code.
func Code(err error) string {
	switch {
	case errors.Is(err, validate.ErrInvalid), errors.Is(err, funding.ErrBlankName):
		return CodeValidation
	case errors.Is(err, catalog.ErrNotFound),
		errors.Is(err, sections.ErrUnknownSection),
		errors.Is(err, form.ErrUnknownField),
		errors.Is(err, funding.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, funding.ErrCapacity):
		return CodeCapacity
	case errors.Is(err, onboarding.ErrReadOnly):
		return CodeReadOnly
	case errors.Is(err, form.ErrInvalidOption),
		errors.Is(err, funding.ErrUnknownType),
		errors.Is(err, types.ErrInvalidRef):
		return CodeInvalidData
	case errors.Is(err, onboarding.ErrNoSelection),
		errors.Is(err, onboarding.ErrNotFunding),
		errors.Is(err, onboarding.ErrNoEditor),
		errors.Is(err, onboarding.ErrNoPendingRemoval),
		errors.Is(err, funding.ErrResolved):
		return CodeInvalidState
	case errors.Is(err, onboarding.ErrUnknownEvent):
		return CodeUnknownType
	}
	return CodeInternal
}

// errorData builds the error payload, carrying field messages for
// validation failures.
func errorData(err error) ErrorData {
	d := ErrorData{Code: Code(err), Message: err.Error()}
	var verr *validate.Error
	if errors.As(err, &verr) {
		d.Fields = verr.Fields
	}
	return d
}
