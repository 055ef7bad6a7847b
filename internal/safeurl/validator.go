package safeurl

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"net/url"
	"strings"

	"github.com/prodlens/prodlens/internal/config"
	"github.com/prodlens/prodlens/internal/types"
)

// Target is a validated extraction target. Addrs holds the resolved
// addresses at validation time; the lightweight transport pins its
// dial to that set so a record changed after validation (DNS
// rebinding) cannot redirect the connection. Trusted domains skip
// resolution and carry an empty set.
type Target struct {
	URL   *url.URL
	Host  string
	Addrs []netip.Addr

	// Trusted is set when the host matched the trusted-domain list.
	Trusted bool
}

// String returns the target URL.
func (t *Target) String() string { return t.URL.String() }

// Resolver resolves a hostname to IP addresses. Injectable for tests.
type Resolver func(ctx context.Context, host string) ([]netip.Addr, error)

// Validator checks candidate URLs before any fetch touches them. It is
// the SSRF defense: every URL, including every redirect hop, goes
// through Validate before being dialed.
type Validator struct {
	trusted    []string
	denied     []string
	allowedIPs map[netip.Addr]bool
	maxLen     int
	resolve    Resolver
	logger     *slog.Logger
}

// Option configures the Validator.
type Option func(*Validator)

// WithResolver replaces the DNS resolver.
func WithResolver(r Resolver) Option {
	return func(v *Validator) { v.resolve = r }
}

// NewValidator creates a Validator from policy configuration.
func NewValidator(cfg *config.PolicyConfig, logger *slog.Logger, opts ...Option) *Validator {
	v := &Validator{
		trusted: normalizeDomains(cfg.TrustedDomains),
		denied:  normalizeDomains(cfg.DeniedDomains),
		maxLen:  cfg.MaxURLLength,
		resolve: systemResolver,
		logger:  logger.With("component", "url_validator"),
	}
	if len(cfg.AllowedIPs) > 0 {
		v.allowedIPs = make(map[netip.Addr]bool, len(cfg.AllowedIPs))
		for _, s := range cfg.AllowedIPs {
			if addr, err := netip.ParseAddr(s); err == nil {
				v.allowedIPs[addr.Unmap()] = true
			}
		}
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate checks a raw URL and returns a Target on success. Failures
// are ErrInvalidURL (malformed, wrong scheme, credentials, too long)
// or ErrForbiddenHost (policy or private-network violation). The only
// I/O performed is DNS resolution.
func (v *Validator) Validate(ctx context.Context, rawURL string) (*Target, error) {
	if v.maxLen > 0 && len(rawURL) > v.maxLen {
		return nil, invalid(rawURL, "URL too long")
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, &types.ValidationError{URL: rawURL, Reason: "malformed URL", Err: types.ErrInvalidURL}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, invalid(rawURL, fmt.Sprintf("unsupported scheme %q", u.Scheme))
	}
	if u.User != nil {
		return nil, invalid(rawURL, "embedded credentials not allowed")
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return nil, invalid(rawURL, "missing host")
	}

	if matchesDomain(host, v.denied) {
		return nil, forbidden(rawURL, "host is denylisted")
	}

	// Literal IP targets are rejected unless explicitly allowlisted.
	if addr, err := netip.ParseAddr(host); err == nil {
		addr = addr.Unmap()
		if !v.allowedIPs[addr] {
			return nil, forbidden(rawURL, "literal IP target not allowlisted")
		}
		return &Target{URL: u, Host: host, Addrs: []netip.Addr{addr}}, nil
	}

	if matchesDomain(host, v.trusted) {
		// Trusted marketplaces skip resolution. Their CDNs rotate
		// addresses too fast for the resolved set to mean anything.
		return &Target{URL: u, Host: host, Trusted: true}, nil
	}

	addrs, err := v.resolve(ctx, host)
	if err != nil {
		return nil, forbidden(rawURL, fmt.Sprintf("host did not resolve: %v", err))
	}
	for _, addr := range addrs {
		if isBlockedAddr(addr) {
			v.logger.Warn("blocked private address",
				"url", rawURL, "host", host, "addr", addr.String())
			return nil, forbidden(rawURL, fmt.Sprintf("host resolves to blocked address %s", addr))
		}
	}

	return &Target{URL: u, Host: host, Addrs: addrs}, nil
}

// isBlockedAddr reports whether an address may not be fetched from:
// loopback, RFC1918/ULA private, link-local, multicast, unspecified.
func isBlockedAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	return addr.IsLoopback() ||
		addr.IsPrivate() ||
		addr.IsLinkLocalUnicast() ||
		addr.IsLinkLocalMulticast() ||
		addr.IsMulticast() ||
		addr.IsUnspecified()
}

// matchesDomain checks an exact or dot-suffix domain match.
func matchesDomain(host string, domains []string) bool {
	for _, d := range domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

func normalizeDomains(in []string) []string {
	out := make([]string, 0, len(in))
	for _, d := range in {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			out = append(out, d)
		}
	}
	return out
}

func systemResolver(ctx context.Context, host string) ([]netip.Addr, error) {
	return net.DefaultResolver.LookupNetIP(ctx, "ip", host)
}

func invalid(url, reason string) error {
	return &types.ValidationError{URL: url, Reason: reason, Err: types.ErrInvalidURL}
}

func forbidden(url, reason string) error {
	return &types.ValidationError{URL: url, Reason: reason, Err: types.ErrForbiddenHost}
}
