package host

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

var ErrInvalidURL = errors.New("host: invalid url")

var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
	"ws":    "80",
	"wss":   "443",
}

// DomainFromURL returns the origin (scheme://host[:port]) of raw.
// Default ports are dropped and scheme/host are lowercased.
func DomainFromURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidURL)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrInvalidURL, raw, err)
	}
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	if scheme == "" || host == "" {
		return "", fmt.Errorf("%w: %q has no origin", ErrInvalidURL, raw)
	}
	port := u.Port()
	if port == "" || defaultPorts[scheme] == port {
		if strings.Contains(host, ":") {
			host = "[" + host + "]"
		}
		return scheme + "://" + host, nil
	}
	return scheme + "://" + net.JoinHostPort(host, port), nil
}

// UniqueID returns a random identifier suitable for instance and envelope ids.
func UniqueID() string {
	return uuid.NewString()
}
