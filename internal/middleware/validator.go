package middleware

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"regexp"
	"strings"
	"time"
)

var ownerIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_.@-]{1,128}$`)

// ValidateURL rejects non-http(s) URLs and hosts that resolve to loopback,
// private, link-local or unspecified addresses.
func ValidateURL(rawURL string) error {
	if strings.TrimSpace(rawURL) == "" {
		return fmt.Errorf("URL cannot be empty")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme: %s (allowed: http, https)", u.Scheme)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return fmt.Errorf("URL has no host")
	}
	if host == "localhost" || strings.HasSuffix(host, ".localhost") || strings.HasSuffix(host, ".internal") {
		return fmt.Errorf("localhost/internal hosts are not allowed")
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		return CheckIP(addr)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	addrs, err := net.DefaultResolver.LookupNetIP(ctx, "ip", host)
	if err != nil {
		// biarkan fetcher yang lapor DNS error
		return nil
	}
	for _, a := range addrs {
		if err := CheckIP(a); err != nil {
			return err
		}
	}
	return nil
}

// CheckIP rejects loopback, unspecified, private, link-local and multicast addresses.
func CheckIP(a netip.Addr) error {
	a = a.Unmap()
	if a.IsLoopback() || a.IsUnspecified() {
		return fmt.Errorf("localhost/internal IPs are not allowed")
	}
	if a.IsPrivate() || a.IsLinkLocalUnicast() || a.IsLinkLocalMulticast() || a.IsMulticast() {
		return fmt.Errorf("private IP ranges are not allowed")
	}
	return nil
}

// SanitizeString removes NUL and control characters other than tab and newline.
func SanitizeString(input string) string {
	var result strings.Builder
	for _, r := range input {
		if r >= 32 || r == '\t' || r == '\n' {
			result.WriteRune(r)
		}
	}
	return strings.TrimSpace(result.String())
}

// ValidateOwnerID checks the X-User-ID format.
func ValidateOwnerID(owner string) error {
	if owner == "" {
		return fmt.Errorf("user ID cannot be empty")
	}
	if !ownerIDPattern.MatchString(owner) {
		return fmt.Errorf("invalid user ID format (letters, digits, . _ @ - only, max 128 chars)")
	}
	return nil
}

// ValidateRecordID accepts remote ULIDs/UUIDs and local_ ids.
func ValidateRecordID(id string) error {
	if id == "" || len(id) > 64 {
		return fmt.Errorf("invalid record ID")
	}
	for _, r := range id {
		if !(r == '_' || r == '-' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
			return fmt.Errorf("invalid record ID")
		}
	}
	return nil
}

// ValidateLimit validates pagination limit
func ValidateLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	if limit > 100 {
		return 100
	}
	return limit
}
