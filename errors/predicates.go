package errors

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"net"
	"net/url"
	"os"

	dphttp "github.com/randalmurphal/docpreviewer/http"
)

// Kind classifies a pipeline failure.
type Kind string

// Failure kinds.
const (
	KindTransport  Kind = "transport"
	KindStatus     Kind = "status"
	KindPayload    Kind = "payload"
	KindSize       Kind = "size"
	KindArchive    Kind = "archive"
	KindFilesystem Kind = "filesystem"
	KindContent    Kind = "content"
	KindPattern    Kind = "pattern"
	KindUnknown    Kind = "unknown"
)

// KindOf returns the kind of err, or "" for a nil error. The most specific
// classification wins, so an ArchiveError wrapping an I/O error is archive.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case IsPattern(err):
		return KindPattern
	case IsContent(err):
		return KindContent
	case IsArchive(err):
		return KindArchive
	case IsSize(err):
		return KindSize
	case IsStatus(err):
		return KindStatus
	case IsTransport(err):
		return KindTransport
	case IsFilesystem(err):
		return KindFilesystem
	case IsPayload(err):
		return KindPayload
	default:
		return KindUnknown
	}
}

// IsContent checks if an error is a response-shape error.
func IsContent(err error) bool {
	return errors.Is(err, ErrContent)
}

// IsPattern checks if an error is a missing run identifier.
func IsPattern(err error) bool {
	return errors.Is(err, ErrPatternNotFound)
}

// IsArchive checks if an error is a corrupt or unsafe archive.
func IsArchive(err error) bool {
	return errors.Is(err, ErrArchive)
}

// IsSize checks if an error is an oversized response body.
func IsSize(err error) bool {
	return errors.Is(err, dphttp.ErrBodyTooLarge)
}

// IsStatus checks if an error is a non-200 response.
func IsStatus(err error) bool {
	var statusErr *dphttp.StatusError
	return errors.As(err, &statusErr)
}

// IsFilesystem checks if an error came from a filesystem operation.
// Socket failures surface as *os.SyscallError too, so transport errors are
// excluded.
func IsFilesystem(err error) bool {
	if err == nil || IsTransport(err) {
		return false
	}

	var pathErr *fs.PathError
	var linkErr *os.LinkError
	var syscallErr *os.SyscallError
	return errors.As(err, &pathErr) || errors.As(err, &linkErr) || errors.As(err, &syscallErr)
}

// IsTransport checks if an error is a connection-level failure.
// This includes DNS, TLS, timeouts and cancelled requests.
func IsTransport(err error) bool {
	if err == nil {
		return false
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}

// IsPayload checks if an error is a malformed response body.
func IsPayload(err error) bool {
	if err == nil {
		return false
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) ||
		errors.As(err, &typeErr) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		IsSize(err)
}
