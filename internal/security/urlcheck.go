package security

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"browsermcp/internal/domain"
)

// privateRanges lists all private/reserved CIDR blocks blocked for navigation.
var privateRanges = []string{
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"127.0.0.0/8",
	"169.254.0.0/16",
	"0.0.0.0/8",
	"::1/128",
	"fc00::/7",
	"fe80::/10",
}

var parsedRanges []*net.IPNet

func init() {
	for _, cidr := range privateRanges {
		_, ipnet, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("invalid CIDR %q: %v", cidr, err))
		}
		parsedRanges = append(parsedRanges, ipnet)
	}
}

// Validator classifies URLs as safe or unsafe for browser navigation.
type Validator struct {
	// AllowPrivate permits private/reserved addresses (test deployments only).
	AllowPrivate bool
}

// Validate checks that a URL uses an allowed scheme and does not point at a
// private/reserved address. Hostnames are resolved so that names aliasing
// internal addresses are caught before any navigation occurs.
func (v *Validator) Validate(rawURL string) error {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return domain.NewDomainError("Validator.Validate", domain.ErrSecurityBlocked,
			fmt.Sprintf("invalid URL: %v", err))
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	case "":
		return domain.NewDomainError("Validator.Validate", domain.ErrSecurityBlocked,
			"missing URL scheme, only http/https allowed")
	default:
		return domain.NewDomainError("Validator.Validate", domain.ErrSecurityBlocked,
			fmt.Sprintf("scheme %q not allowed, only http/https", u.Scheme))
	}

	host := u.Hostname()
	if host == "" {
		return domain.NewDomainError("Validator.Validate", domain.ErrSecurityBlocked, "empty hostname")
	}

	if v.AllowPrivate {
		return nil
	}

	if ip := net.ParseIP(host); ip != nil {
		if IsPrivateIP(ip) {
			return domain.NewDomainError("Validator.Validate", domain.ErrSecurityBlocked,
				fmt.Sprintf("IP %s is private/reserved", ip))
		}
		return nil
	}

	ips, err := net.LookupIP(host)
	if err != nil {
		return domain.NewDomainError("Validator.Validate", domain.ErrSecurityBlocked,
			fmt.Sprintf("DNS lookup failed: %v", err))
	}
	for _, ip := range ips {
		if IsPrivateIP(ip) {
			return domain.NewDomainError("Validator.Validate", domain.ErrSecurityBlocked,
				fmt.Sprintf("host %s resolves to private IP %s", host, ip))
		}
	}

	return nil
}

// Normalize returns the canonical form of a URL: surrounding whitespace
// trimmed, fragment dropped, scheme and host lowercased. The query string
// and path are preserved as given since they are identity-relevant.
func Normalize(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", domain.WrapOp("normalize url", err)
	}
	u.Fragment = ""
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	return u.String(), nil
}

// IsPrivateIP checks if an IP falls within any private/reserved range.
func IsPrivateIP(ip net.IP) bool {
	// Normalize IPv4-mapped IPv6 to IPv4
	if v4 := ip.To4(); v4 != nil {
		ip = v4
	}

	for _, ipnet := range parsedRanges {
		if ipnet.Contains(ip) {
			return true
		}
	}
	return false
}

// NewSafeTransport creates an HTTP transport that prevents DNS rebinding
// by validating IPs at dial time and connecting directly to the validated IP.
// Used for out-of-browser downloads (document conversion).
func NewSafeTransport() *http.Transport {
	return &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			host, port, err := net.SplitHostPort(addr)
			if err != nil {
				return nil, fmt.Errorf("invalid address: %w", err)
			}

			ips, err := net.DefaultResolver.LookupIPAddr(ctx, host)
			if err != nil {
				return nil, domain.NewDomainError("SafeTransport.Dial", err,
					fmt.Sprintf("DNS lookup failed for %s", host))
			}
			if len(ips) == 0 {
				return nil, domain.NewDomainError("SafeTransport.Dial",
					fmt.Errorf("no IPs resolved"), host)
			}

			for _, ip := range ips {
				normalized := ip.IP
				if v4 := normalized.To4(); v4 != nil {
					normalized = v4
				}
				if IsPrivateIP(normalized) {
					return nil, domain.NewDomainError("SafeTransport.Dial",
						domain.ErrSecurityBlocked,
						fmt.Sprintf("%s resolves to private IP %s", host, ip.IP))
				}
			}

			dialer := &net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}
			return dialer.DialContext(ctx, network,
				net.JoinHostPort(ips[0].IP.String(), port))
		},
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
