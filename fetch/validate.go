package fetch

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ErrPrivateTarget is returned when a URL resolves to a private, loopback,
// or link-local address (SSRF prevention).
var ErrPrivateTarget = errors.New("fetch: URL targets a private or loopback address")

// ErrBadScheme is returned for non-HTTP(S) URLs.
var ErrBadScheme = errors.New("fetch: only http and https schemes are allowed")

// ValidateURL checks that rawURL uses http/https, has a hostname, and does
// not resolve to a private or loopback IP. DNS resolution is performed so an
// internal hostname cannot slip past a literal-IP check.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("fetch: invalid URL: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return ErrBadScheme
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("fetch: URL has no host")
	}

	if ip := net.ParseIP(host); ip != nil {
		if isRestricted(ip) {
			return ErrPrivateTarget
		}
		return nil
	}

	addrs, err := net.LookupHost(host)
	if err != nil {
		// Unresolvable now may be a transient DNS problem; the connection
		// attempt will surface the real error.
		return nil
	}
	for _, a := range addrs {
		if ip := net.ParseIP(a); ip != nil && isRestricted(ip) {
			return ErrPrivateTarget
		}
	}
	return nil
}

func isRestricted(ip net.IP) bool {
	return ip.IsLoopback() ||
		ip.IsPrivate() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsUnspecified()
}
