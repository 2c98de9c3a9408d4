package pipeline

import (
	"errors"
	"fmt"

	"github.com/melodia-app/melodia-api/internal/config"
	"github.com/melodia-app/melodia-api/internal/generation"
	"github.com/melodia-app/melodia-api/internal/melody"
	"github.com/melodia-app/melodia-api/internal/separation"
)

// ErrorKind tags every pipeline failure with a stable, caller-facing
// classification. The string values are part of the API contract.
type ErrorKind string

const (
	KindInputMissing            ErrorKind = "missing_file"
	KindNoNotesDetected         ErrorKind = "no_notes_detected"
	KindSeparationOutputMissing ErrorKind = "separation_output_missing"
	KindMelodyExtractionFailed  ErrorKind = "melody_extraction_failed"
	KindEmptyGenerationResult   ErrorKind = "empty_generation_result"
	KindCopyrightRejected       ErrorKind = "recitation_error"
	KindGenerationServiceError  ErrorKind = "generation_service_error"
	KindMergeFailed             ErrorKind = "merge_failed"
	KindMissingConfiguration    ErrorKind = "missing_configuration"
	KindInternal                ErrorKind = "internal_server_error"
)

// Error is a classified pipeline failure with a human-readable message.
// Raw tool diagnostics stay in the wrapped error, never in Message.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// UserRecoverable reports whether the failure is caused by the request
// rather than the service, so the HTTP layer can answer 4xx instead of 5xx.
func (e *Error) UserRecoverable() bool {
	switch e.Kind {
	case KindInputMissing, KindCopyrightRejected, KindNoNotesDetected, KindMelodyExtractionFailed:
		return true
	}
	return false
}

// classify maps an arbitrary stage error onto the taxonomy. Stages return
// their own typed errors; everything unrecognized becomes internal.
func classify(err error) *Error {
	var rejection *generation.CopyrightRejectionError
	if errors.As(err, &rejection) {
		return &Error{
			Kind:    KindCopyrightRejected,
			Message: rejection.Error(),
			Err:     err,
		}
	}

	var svcErr *generation.ServiceError
	if errors.As(err, &svcErr) {
		return &Error{
			Kind:    KindGenerationServiceError,
			Message: "music generation service failed",
			Err:     err,
		}
	}

	switch {
	case errors.Is(err, generation.ErrEmptyResult):
		return &Error{
			Kind:    KindEmptyGenerationResult,
			Message: "music generation returned no audio",
			Err:     err,
		}
	case errors.Is(err, separation.ErrVocalStemMissing):
		return &Error{
			Kind:    KindSeparationOutputMissing,
			Message: "source separation did not produce the expected vocal stem",
			Err:     err,
		}
	case errors.Is(err, melody.ErrNoNotesDetected):
		return &Error{
			Kind:    KindNoNotesDetected,
			Message: "could not detect any notes in the audio",
			Err:     err,
		}
	case errors.Is(err, config.ErrMissingProjectID):
		return &Error{
			Kind:    KindMissingConfiguration,
			Message: "service configuration is incomplete",
			Err:     err,
		}
	}

	return &Error{
		Kind:    KindInternal,
		Message: "internal pipeline failure",
		Err:     err,
	}
}
