package http

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
)

// ReadLimited buffers resp.Body in memory, failing with a SizeLimitError
// as soon as more than limit bytes are seen. A Content-Length above the
// limit is rejected before reading anything. A limit <= 0 disables the cap.
func ReadLimited(resp *http.Response, limit int64) ([]byte, error) {
	url := ""
	if resp.Request != nil {
		url = resp.Request.URL.Redacted()
	}

	if limit <= 0 {
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read response body: %w", err)
		}
		return data, nil
	}

	if resp.ContentLength > limit {
		return nil, &SizeLimitError{URL: url, Limit: limit, Declared: resp.ContentLength}
	}

	var buf bytes.Buffer
	if resp.ContentLength > 0 {
		buf.Grow(int(resp.ContentLength))
	}
	n, err := buf.ReadFrom(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if n > limit {
		return nil, &SizeLimitError{URL: url, Limit: limit, Declared: -1}
	}
	return buf.Bytes(), nil
}
