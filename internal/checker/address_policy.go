package checker

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"strings"
	"syscall"
	"time"

	sharedErrors "github.com/khanhnv2901/secheckup/internal/shared/errors"
)

// AddressPolicy decides which resolved addresses live checks may connect to.
type AddressPolicy int

const (
	// AllowAnyAddress lets checks reach loopback and private networks.
	AllowAnyAddress AddressPolicy = iota
	// PublicAddressesOnly refuses non-routable destinations after DNS
	// resolution, so a remote caller cannot point the service at its own
	// network.
	PublicAddressesOnly
)

// nonPublicPrefixes are globally-unicast ranges that are still not
// reachable on the public internet.
var nonPublicPrefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("192.0.0.0/24"),
	netip.MustParsePrefix("198.18.0.0/15"),
	netip.MustParsePrefix("240.0.0.0/4"),
	netip.MustParsePrefix("64:ff9b::/96"),
}

// IsPublicAddress reports whether addr is routable on the public internet.
// Loopback, RFC 1918, unique-local, link-local (including the cloud
// metadata address), unspecified and reserved ranges are not.
func IsPublicAddress(addr netip.Addr) bool {
	addr = addr.Unmap().WithZone("")
	if !addr.IsValid() || !addr.IsGlobalUnicast() || addr.IsPrivate() {
		return false
	}
	for _, p := range nonPublicPrefixes {
		if p.Contains(addr) {
			return false
		}
	}
	return true
}

// Dialer returns a net.Dialer enforcing the policy on every connection.
func (p AddressPolicy) Dialer(timeout time.Duration) *net.Dialer {
	d := &net.Dialer{Timeout: timeout}
	if p == PublicAddressesOnly {
		d.Control = publicOnlyControl
	}
	return d
}

// publicOnlyControl runs after resolution with the literal ip:port about
// to be dialed.
func publicOnlyControl(network, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("%w: %s", sharedErrors.ErrPrivateTarget, address)
	}
	addr, err := netip.ParseAddr(host)
	if err != nil || !IsPublicAddress(addr) {
		return fmt.Errorf("%w: %s", sharedErrors.ErrPrivateTarget, host)
	}
	return nil
}

// CheckTarget rejects targets that name a non-public address without
// needing DNS: IP literals and localhost names. Hostnames are left to the
// dial-time check.
func (p AddressPolicy) CheckTarget(t *TargetInfo) error {
	if p != PublicAddressesOnly || t == nil {
		return nil
	}
	host := strings.TrimSuffix(t.Host, ".")
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return fmt.Errorf("%w: %s", sharedErrors.ErrPrivateTarget, t.Host)
	}
	if addr, err := netip.ParseAddr(host); err == nil && !IsPublicAddress(addr) {
		return fmt.Errorf("%w: %s", sharedErrors.ErrPrivateTarget, t.Host)
	}
	return nil
}

// CheckHost resolves host and fails when any of its addresses is not
// public. Used where the connection is made outside a Go dialer.
func (p AddressPolicy) CheckHost(ctx context.Context, resolver *net.Resolver, host string) error {
	if p != PublicAddressesOnly {
		return nil
	}
	if err := p.CheckTarget(&TargetInfo{Host: strings.ToLower(host)}); err != nil {
		return err
	}
	if _, err := netip.ParseAddr(host); err == nil {
		return nil
	}
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	addrs, err := resolver.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", host, err)
	}
	for _, addr := range addrs {
		if !IsPublicAddress(addr) {
			return fmt.Errorf("%w: %s resolves to %s", sharedErrors.ErrPrivateTarget, host, addr)
		}
	}
	return nil
}
