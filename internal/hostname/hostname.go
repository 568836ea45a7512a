// Package hostname normalizes site domains and matches them against URLs.
package hostname

import (
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// Normalize reduces user input such as "https://www.Acme.io/pricing" to its
// bare lower-case host "acme.io".
func Normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}
	if !strings.Contains(s, "://") {
		s = "http://" + s
	}
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return ""
	}
	host := u.Host
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.TrimSuffix(host, ".")
	return strings.TrimPrefix(host, "www.")
}

// FromURL extracts the normalized host of a URL; "" when it has none.
func FromURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return ""
	}
	return Normalize(u.Host)
}

// Matches reports whether host is the domain itself or one of its subdomains.
func Matches(host, domain string) bool {
	host, domain = Normalize(host), Normalize(domain)
	if host == "" || domain == "" {
		return false
	}
	return host == domain || strings.HasSuffix(host, "."+domain)
}

// Label returns the registrable label of a domain with the public suffix
// removed: "app.acme.co.uk" -> "acme". Unknown suffixes fall back to the label
// before the last dot.
func Label(domain string) string {
	host := Normalize(domain)
	if host == "" {
		return ""
	}
	if etld1, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		suffix, _ := publicsuffix.PublicSuffix(etld1)
		return strings.TrimSuffix(strings.TrimSuffix(etld1, suffix), ".")
	}
	parts := strings.Split(host, ".")
	if len(parts) >= 2 {
		return parts[len(parts)-2]
	}
	return parts[0]
}

// FirstLabel returns the leftmost label of the normalized domain.
func FirstLabel(domain string) string {
	host := Normalize(domain)
	if i := strings.IndexByte(host, '.'); i >= 0 {
		return host[:i]
	}
	return host
}
