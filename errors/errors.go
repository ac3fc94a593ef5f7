package errors

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Sentinels for the pipeline's own failure classes.
var (
	// ErrContent indicates well-formed JSON lacking an expected field or shape.
	ErrContent = errors.New("unexpected response content")

	// ErrPatternNotFound indicates a run identifier could not be located in a URL.
	ErrPatternNotFound = errors.New("run id not found")

	// ErrArchive indicates a corrupt or unsafe artifact archive.
	ErrArchive = errors.New("invalid archive")
)

// ContentError reports a decoded API response that does not have the shape
// the pipeline relies on. Value holds the offending JSON value.
type ContentError struct {
	Message string
	Value   any
}

// NewContentError creates a ContentError.
func NewContentError(message string, value any) *ContentError {
	return &ContentError{Message: message, Value: value}
}

func (e *ContentError) Error() string {
	return e.Message
}

func (e *ContentError) Unwrap() error {
	return ErrContent
}

// JSON renders Value as indented JSON for diagnostics.
func (e *ContentError) JSON() string {
	data, err := json.MarshalIndent(e.Value, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", e.Value)
	}
	return string(data)
}

// PatternNotFoundError reports a details URL without a run identifier.
type PatternNotFoundError struct {
	Input string
}

func (e *PatternNotFoundError) Error() string {
	return "Run id not found in: " + e.Input
}

func (e *PatternNotFoundError) Unwrap() error {
	return ErrPatternNotFound
}

// ArchiveError reports a zip archive that cannot be read or that contains
// an entry which cannot be extracted safely.
type ArchiveError struct {
	// Name is the offending entry, empty when the archive as a whole is bad.
	Name string

	Err error
}

func (e *ArchiveError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("invalid archive entry %q: %v", e.Name, e.Err)
	}
	return fmt.Sprintf("invalid archive: %v", e.Err)
}

func (e *ArchiveError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrArchive}
	}
	return []error{ErrArchive, e.Err}
}
