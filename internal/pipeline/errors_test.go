package pipeline

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/melodia-app/melodia-api/internal/config"
	"github.com/melodia-app/melodia-api/internal/generation"
	"github.com/melodia-app/melodia-api/internal/melody"
	"github.com/melodia-app/melodia-api/internal/separation"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{
			name: "copyright rejection",
			err:  &generation.CopyrightRejectionError{Detail: "blocked by recitation checks"},
			want: KindCopyrightRejected,
		},
		{
			name: "generation service error",
			err:  &generation.ServiceError{StatusCode: 429, Message: "quota"},
			want: KindGenerationServiceError,
		},
		{
			name: "empty generation result",
			err:  generation.ErrEmptyResult,
			want: KindEmptyGenerationResult,
		},
		{
			name: "missing vocal stem",
			err:  fmt.Errorf("wrapped: %w", separation.ErrVocalStemMissing),
			want: KindSeparationOutputMissing,
		},
		{
			name: "no notes detected",
			err:  melody.ErrNoNotesDetected,
			want: KindNoNotesDetected,
		},
		{
			name: "missing project configuration",
			err:  fmt.Errorf("startup: %w", config.ErrMissingProjectID),
			want: KindMissingConfiguration,
		},
		{
			name: "anything else is internal",
			err:  errors.New("disk full"),
			want: KindInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			perr := classify(tt.err)
			assert.Equal(t, tt.want, perr.Kind)
			assert.ErrorIs(t, perr, tt.err)
		})
	}
}

func TestError_UserRecoverable(t *testing.T) {
	recoverable := []ErrorKind{
		KindInputMissing, KindCopyrightRejected, KindNoNotesDetected, KindMelodyExtractionFailed,
	}
	for _, kind := range recoverable {
		assert.True(t, (&Error{Kind: kind}).UserRecoverable(), string(kind))
	}

	serverSide := []ErrorKind{
		KindSeparationOutputMissing, KindEmptyGenerationResult,
		KindGenerationServiceError, KindMergeFailed, KindMissingConfiguration, KindInternal,
	}
	for _, kind := range serverSide {
		assert.False(t, (&Error{Kind: kind}).UserRecoverable(), string(kind))
	}
}

func TestError_Message(t *testing.T) {
	assert.Equal(t, "plain", (&Error{Message: "plain"}).Error())

	wrapped := &Error{Message: "stage failed", Err: errors.New("exit status 1")}
	assert.Equal(t, "stage failed: exit status 1", wrapped.Error())
}
