package http

import (
	"net/http"
	"strings"
)

// HostScoped routes requests for a fixed set of hosts through Authorized
// and everything else through Anonymous. Artifact downloads redirect to
// blob storage that rejects the API token, so credentials must only be
// attached for the API host itself.
type HostScoped struct {
	Hosts      []string
	Authorized http.RoundTripper
	Anonymous  http.RoundTripper
}

// RoundTrip implements http.RoundTripper.
func (s *HostScoped) RoundTrip(req *http.Request) (*http.Response, error) {
	if s.matches(req.URL.Host) {
		return s.Authorized.RoundTrip(req)
	}
	anonymous := s.Anonymous
	if anonymous == nil {
		anonymous = http.DefaultTransport
	}
	return anonymous.RoundTrip(req)
}

func (s *HostScoped) matches(host string) bool {
	for _, h := range s.Hosts {
		if strings.EqualFold(h, host) {
			return true
		}
	}
	return false
}
