// Package validation normalizes and validates the identity fields shared by
// provider submissions and Entity Cards: domains, paths, coordinates,
// priorities, capabilities and MCP endpoints.
package validation

import (
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/idna"
)

// Bounds.
const (
	MinPriority   = 0
	MaxPriority   = 1000
	MaxNameLength = 255
	maxDomainLen  = 253
	maxLabelLen   = 63
)

var (
	labelPattern      = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?$`)
	capabilityToken   = `[a-z][a-z0-9_-]*`
	capabilityPattern = regexp.MustCompile(`^` + capabilityToken + `(:` + capabilityToken + `)?$`)
	countryPattern    = regexp.MustCompile(`^[A-Z]{2}$`)
)

// NormalizeDomain lowercases raw, strips a URL scheme, path and trailing dot,
// converts internationalized names to their ASCII form and validates the result.
func NormalizeDomain(raw string) (string, error) {
	d := strings.TrimSpace(strings.ToLower(raw))
	for _, scheme := range []string{"https://", "http://"} {
		d = strings.TrimPrefix(d, scheme)
	}
	if i := strings.IndexAny(d, "/?#"); i >= 0 {
		d = d[:i]
	}
	d = strings.TrimSuffix(d, ".")
	if d == "" {
		return "", fmt.Errorf("domain is empty")
	}

	ascii, err := idna.Lookup.ToASCII(d)
	if err != nil {
		return "", fmt.Errorf("invalid domain %q: %w", raw, err)
	}
	if err := ValidateDomain(ascii); err != nil {
		return "", err
	}
	return ascii, nil
}

// ValidateDomain checks that d is a lowercase ASCII hostname with at least two labels.
func ValidateDomain(d string) error {
	if len(d) == 0 || len(d) > maxDomainLen {
		return fmt.Errorf("invalid domain %q: length must be 1-%d", d, maxDomainLen)
	}
	if net.ParseIP(d) != nil {
		return fmt.Errorf("invalid domain %q: IP addresses are not domains", d)
	}
	labels := strings.Split(d, ".")
	if len(labels) < 2 {
		return fmt.Errorf("invalid domain %q: at least two labels required", d)
	}
	for _, label := range labels {
		if len(label) == 0 || len(label) > maxLabelLen || !labelPattern.MatchString(label) {
			return fmt.Errorf("invalid domain %q: bad label %q", d, label)
		}
	}
	return nil
}

// NormalizePath returns p with a leading slash and without a trailing one
// (except for the root). Empty input yields "/".
func NormalizePath(p string) (string, error) {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/", nil
	}
	if strings.ContainsAny(p, " \t\r\n?#") {
		return "", fmt.Errorf("invalid path %q: whitespace, query and fragment are not allowed", p)
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	for len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimSuffix(p, "/")
	}
	return p, nil
}

// ValidateCoordinates checks latitude and longitude ranges.
func ValidateCoordinates(lat, lng float64) error {
	if lat < -90 || lat > 90 {
		return fmt.Errorf("latitude %v out of range [-90, 90]", lat)
	}
	if lng < -180 || lng > 180 {
		return fmt.Errorf("longitude %v out of range [-180, 180]", lng)
	}
	return nil
}

// ValidatePriority checks the Entity Card priority bounds.
func ValidatePriority(p int) error {
	if p < MinPriority || p > MaxPriority {
		return fmt.Errorf("priority %d out of range [%d, %d]", p, MinPriority, MaxPriority)
	}
	return nil
}

// ValidateCapability accepts a bare lowercase token ("reservations") or a
// namespaced one ("sevenrooms:waitlist").
func ValidateCapability(c string) error {
	if !capabilityPattern.MatchString(c) {
		return fmt.Errorf("invalid capability %q", c)
	}
	return nil
}

// NormalizeCountry uppercases c and checks it is a two-letter code.
func NormalizeCountry(c string) (string, error) {
	c = strings.ToUpper(strings.TrimSpace(c))
	if c == "" {
		return "", nil
	}
	if !countryPattern.MatchString(c) {
		return "", fmt.Errorf("invalid country code %q", c)
	}
	return c, nil
}

// NormalizeEndpoint canonicalizes an MCP endpoint URL so that equal endpoints
// compare equal as strings: lowercase scheme and host, no default port, no
// fragment, no trailing slash. Unparseable input is returned trimmed.
func NormalizeEndpoint(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return strings.TrimSuffix(raw, "/")
	}

	u.Scheme = strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if (u.Scheme == "https" && port == "443") || (u.Scheme == "http" && port == "80") {
		port = ""
	}
	if port != "" {
		u.Host = net.JoinHostPort(host, port)
	} else if strings.Contains(host, ":") {
		u.Host = "[" + host + "]"
	} else {
		u.Host = host
	}
	u.Fragment = ""
	u.RawFragment = ""
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = ""
	return u.String()
}

// ValidateEndpoint checks that raw is an absolute http(s) URL.
func ValidateEndpoint(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid endpoint %q: %w", raw, err)
	}
	if (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return fmt.Errorf("invalid endpoint %q: absolute http(s) URL required", raw)
	}
	return nil
}
