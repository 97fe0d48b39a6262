package trigger

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrInvalidURL is returned for payloads that are not http(s) URLs with a host.
var ErrInvalidURL = errors.New("invalid URL")

// NormalizeURL turns a decoded payload into an openable URL. A payload
// without a scheme is assumed to be http.
func NormalizeURL(payload string) (string, error) {
	candidate := payload
	u, err := url.Parse(candidate)
	if err == nil && u.Scheme == "" {
		candidate = "http://" + payload
		u, err = url.Parse(candidate)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrInvalidURL, payload, err)
	}
	scheme := strings.ToLower(u.Scheme)
	if (scheme != "http" && scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidURL, payload)
	}
	return candidate, nil
}
