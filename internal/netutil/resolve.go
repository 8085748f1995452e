// Package netutil holds the chat client's network helpers: a resolver that
// falls back to public DNS and a relay heuristic for ICE.
package netutil

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// PublicDNS are servers queried when the system resolver fails.
var PublicDNS = []string{
	"1.1.1.1",         // Cloudflare
	"1.0.0.1",         // Cloudflare
	"8.8.8.8",         // Google
	"8.8.4.4",         // Google
	"9.9.9.9",         // Quad9
	"149.112.112.112", // Quad9
	"208.67.222.222",  // Cisco OpenDNS
}

var ErrNoAddress = errors.New("no addresses found")

// Resolver looks hosts up with the system resolver first and then races the
// public servers.
type Resolver struct {
	Servers      []string
	LocalTimeout time.Duration
	RaceTimeout  time.Duration

	// lookup is swapped in tests.
	lookup func(ctx context.Context, server, host string) ([]string, error)
}

// NewResolver returns a Resolver over PublicDNS.
func NewResolver() *Resolver {
	return &Resolver{
		Servers:      PublicDNS,
		LocalTimeout: time.Second,
		RaceTimeout:  2 * time.Second,
		lookup:       lookupVia,
	}
}

// LookupHost resolves host to a single address, preferring IPv4. IP
// literals are returned unchanged.
func (r *Resolver) LookupHost(ctx context.Context, host string) (string, error) {
	if ip := net.ParseIP(host); ip != nil {
		return host, nil
	}

	localCtx, cancel := context.WithTimeout(ctx, r.LocalTimeout)
	addrs, err := r.lookup(localCtx, "", host)
	cancel()
	if ip, ok := preferIPv4(addrs); err == nil && ok {
		return ip, nil
	}

	return r.race(ctx, host)
}

func (r *Resolver) race(ctx context.Context, host string) (string, error) {
	if len(r.Servers) == 0 {
		return "", fmt.Errorf("resolve %s: %w", host, ErrNoAddress)
	}

	ctx, cancel := context.WithTimeout(ctx, r.RaceTimeout)
	defer cancel()

	results := make(chan string, len(r.Servers))
	for _, server := range r.Servers {
		go func(server string) {
			addrs, err := r.lookup(ctx, server, host)
			ip, ok := preferIPv4(addrs)
			if err != nil || !ok {
				ip = ""
			}
			results <- ip
		}(server)
	}

	for range r.Servers {
		select {
		case ip := <-results:
			if ip != "" {
				return ip, nil
			}
		case <-ctx.Done():
			return "", fmt.Errorf("resolve %s: public DNS race: %w", host, ctx.Err())
		}
	}
	return "", fmt.Errorf("resolve %s: all %d public servers failed: %w", host, len(r.Servers), ErrNoAddress)
}

// DialContext resolves addr's host through r and dials the result. It fits
// websocket.Dialer.NetDialContext.
func (r *Resolver) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}
	ip, err := r.LookupHost(ctx, host)
	if err != nil {
		return nil, err
	}
	var d net.Dialer
	return d.DialContext(ctx, network, net.JoinHostPort(ip, port))
}

// lookupVia queries server directly, or the system resolver when server is
// empty.
func lookupVia(ctx context.Context, server, host string) ([]string, error) {
	r := &net.Resolver{}
	if server != "" {
		r.PreferGo = true
		r.Dial = func(ctx context.Context, network, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, network, net.JoinHostPort(server, "53"))
		}
	}
	return r.LookupHost(ctx, host)
}

func preferIPv4(addrs []string) (string, bool) {
	if len(addrs) == 0 {
		return "", false
	}
	for _, a := range addrs {
		if ip := net.ParseIP(a); ip != nil && ip.To4() != nil {
			return a, true
		}
	}
	return addrs[0], true
}
