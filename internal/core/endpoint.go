package core

import (
	"encoding/base64"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// processEndpoint normalizes a collector endpoint to host:port.
//
// A bare host:port keeps the configured insecure flag. An explicit scheme
// wins over the flag: http:// is insecure (default port 80) and https:// is
// secure (default port 443). Any other scheme is rejected.
func processEndpoint(endpoint string, insecure bool) (string, bool, error) {
	if endpoint == "" {
		return "", false, nil
	}
	if !strings.Contains(endpoint, "://") {
		return strings.TrimSuffix(endpoint, "/"), insecure, nil
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return "", false, fmt.Errorf("parse endpoint %q: %w", endpoint, err)
	}

	var defaultPort string
	switch u.Scheme {
	case "http":
		insecure, defaultPort = true, "80"
	case "https":
		insecure, defaultPort = false, "443"
	default:
		return "", false, fmt.Errorf("unsupported endpoint scheme %q", u.Scheme)
	}

	port := u.Port()
	if port == "" {
		port = defaultPort
	}
	return net.JoinHostPort(u.Hostname(), port), insecure, nil
}

// injectBasicAuth returns headers with an Authorization: Basic entry when both
// credentials are set. An explicit Authorization header is left untouched.
func injectBasicAuth(headers map[string]string, username, password string) map[string]string {
	out := make(map[string]string, len(headers)+1)
	for k, v := range headers {
		out[k] = v
	}
	if username == "" || password == "" {
		return out
	}
	for k := range out {
		if strings.EqualFold(k, "authorization") {
			return out
		}
	}
	out["Authorization"] = "Basic " + base64.StdEncoding.EncodeToString([]byte(username+":"+password))
	return out
}

// signalURL joins an OTLP/HTTP base endpoint with a signal path.
func signalURL(base, path string) string {
	return strings.TrimRight(base, "/") + path
}
