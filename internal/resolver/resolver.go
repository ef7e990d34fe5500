package resolver

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/charmbracelet/log"
	"github.com/miekg/dns"
)

// Address is one resolved IP with the domain it came from. Duplicates across
// domains are allowed here; de-duplication happens at set level.
type Address struct {
	IP     string
	Domain string
}

// LookupFunc answers a single query type for one host. Swapped out in tests.
type LookupFunc func(ctx context.Context, host string, qtype uint16) ([]string, error)

// Resolver turns a ban list's domains into a flat address sequence.
type Resolver struct {
	lookup  LookupFunc
	timeout time.Duration
	ipv6    bool
	strict  bool
}

type Option func(*Resolver)

// WithLookup replaces the DNS client, used by tests.
func WithLookup(fn LookupFunc) Option {
	return func(r *Resolver) { r.lookup = fn }
}

func WithIPv6(on bool) Option {
	return func(r *Resolver) { r.ipv6 = on }
}

// WithStrict makes any per-domain failure abort the whole resolution.
func WithStrict(on bool) Option {
	return func(r *Resolver) { r.strict = on }
}

func New(timeout time.Duration, opts ...Option) *Resolver {
	r := &Resolver{
		lookup:  systemLookup,
		timeout: timeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve looks up every domain in order. In lenient mode a domain that fails
// or returns nothing is skipped with a warning; strict mode returns the first
// failure. An empty total result is always an error for the caller to surface.
func (r *Resolver) Resolve(ctx context.Context, domains []string) ([]Address, error) {
	var out []Address
	for _, d := range domains {
		addrs, err := r.resolveOne(ctx, d)
		if err != nil {
			if r.strict {
				return nil, fmt.Errorf("resolving %s: %w", d, err)
			}
			log.Warn("could not resolve domain, skipping", "domain", d, "err", err)
			continue
		}
		if len(addrs) == 0 {
			if r.strict {
				return nil, fmt.Errorf("resolving %s: no addresses", d)
			}
			log.Warn("domain has no addresses, skipping", "domain", d)
			continue
		}
		for _, ip := range addrs {
			out = append(out, Address{IP: ip, Domain: d})
		}
	}
	return out, nil
}

func (r *Resolver) resolveOne(ctx context.Context, domain string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	addrs, err := r.lookup(ctx, domain, dns.TypeA)
	if err != nil {
		return nil, err
	}
	if r.ipv6 {
		v6, err := r.lookup(ctx, domain, dns.TypeAAAA)
		if err != nil {
			if r.strict {
				return nil, err
			}
			log.Warn("AAAA lookup failed, keeping A results", "domain", domain, "err", err)
		} else {
			addrs = append(addrs, v6...)
		}
	}
	return addrs, nil
}

// systemLookup queries the first nameserver from /etc/resolv.conf, falling
// back to 1.1.1.1 when none is configured.
func systemLookup(ctx context.Context, host string, qtype uint16) ([]string, error) {
	cfg, _ := dns.ClientConfigFromFile("/etc/resolv.conf")
	if cfg == nil || len(cfg.Servers) == 0 {
		cfg = &dns.ClientConfig{Servers: []string{"1.1.1.1"}, Port: "53"}
	}
	server := net.JoinHostPort(cfg.Servers[0], cfg.Port)

	c := new(dns.Client)
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(host), qtype)
	resp, _, err := c.ExchangeContext(ctx, m, server)
	if err != nil {
		return nil, err
	}
	if resp.Rcode != dns.RcodeSuccess {
		return nil, fmt.Errorf("dns rcode %s", dns.RcodeToString[resp.Rcode])
	}

	var out []string
	for _, ans := range resp.Answer {
		switch rr := ans.(type) {
		case *dns.A:
			if qtype == dns.TypeA {
				out = append(out, rr.A.String())
			}
		case *dns.AAAA:
			if qtype == dns.TypeAAAA {
				out = append(out, rr.AAAA.String())
			}
		}
	}
	return out, nil
}
