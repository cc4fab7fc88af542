package exploit

import (
	"crypto/tls"
	"net/http"
	"time"
)

// newRPCHTTPClient returns the client used for msfrpcd. msfrpcd serves a
// self-signed certificate by default, so verification is disabled.
func newRPCHTTPClient(timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // msfrpcd self-signed cert
	return &http.Client{Timeout: timeout, Transport: transport}
}
