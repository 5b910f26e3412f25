package networking

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// IsURL reports whether raw parses as an absolute http or https URL with a host.
func IsURL(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return false
	}
	return parsed.Host != ""
}

// IsLocalhost reports whether host refers to the local machine.
// Accepts "localhost", loopback IPs, and host:port forms of either.
func IsLocalhost(host string) bool {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// ValidateEndpointURL validates that an OAuth endpoint URL is usable:
// absolute, with a host, and HTTPS unless it points at localhost.
func ValidateEndpointURL(endpoint string) error {
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	if parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("URL must be absolute with a host: %s", endpoint)
	}

	switch parsed.Scheme {
	case "https":
		return nil
	case "http":
		if IsLocalhost(parsed.Host) {
			return nil
		}
		return fmt.Errorf("http is only allowed for localhost endpoints: %s", endpoint)
	default:
		return fmt.Errorf("unsupported URL scheme %q: %s", parsed.Scheme, endpoint)
	}
}
