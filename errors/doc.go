// Package errors defines the failure taxonomy of the preview pipeline.
//
// Core types:
//   - ContentError: well-formed JSON without the expected shape; carries the value
//   - PatternNotFoundError: no run id in a check run's details URL
//   - ArchiveError: corrupt zip or an entry that escapes the target
//   - Diagnostic: wraps any error with a summary and a suggestion
//
// Status and size errors live in the http package; KindOf classifies all of
// them together:
//
//	if _, err := publisher.Publish(ctx, req); err != nil {
//	    switch errors.KindOf(err) {
//	    case errors.KindContent, errors.KindPattern:
//	        // CI has not produced what we expect
//	    case errors.KindTransport, errors.KindStatus:
//	        // upstream trouble
//	    }
//	    fmt.Fprintln(w, errors.Diagnose(err))
//	}
package errors
