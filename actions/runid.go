package actions

import (
	"strconv"
	"strings"

	dperrors "github.com/randalmurphal/docpreviewer/errors"
)

// runsMarker precedes the run id in a check run's details URL, e.g.
// https://github.com/pandas-dev/pandas/actions/runs/{run_id}/job/{job_id}
const runsMarker = "/actions/runs/"

// ExtractRunID returns the workflow run id embedded in a details URL. The
// id must be terminated by a "/"; anything else is a PatternNotFoundError.
func ExtractRunID(detailsURL string) (uint64, error) {
	_, rest, ok := strings.Cut(detailsURL, runsMarker)
	if !ok {
		return 0, &dperrors.PatternNotFoundError{Input: detailsURL}
	}

	segment, _, ok := strings.Cut(rest, "/")
	if !ok {
		return 0, &dperrors.PatternNotFoundError{Input: detailsURL}
	}

	id, err := strconv.ParseUint(segment, 10, 64)
	if err != nil {
		return 0, &dperrors.PatternNotFoundError{Input: detailsURL}
	}
	return id, nil
}
