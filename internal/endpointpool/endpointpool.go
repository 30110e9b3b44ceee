// Package endpointpool implements the thread-safe pool of discovered S3
// front-end IP addresses described by spec §3/§4.2 (C3). S3 front-ends are
// served behind DNS round robin; issuing many randomized-hostname A-record
// lookups concurrently, against many different (cache-busting) names,
// harvests a wider spread of front-end IPs than a single lookup would.
package endpointpool

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/netip"
	"sort"
	"sync"
	"time"

	"github.com/miekg/dns"
)

const (
	fqdnLabelLength    = 7
	initialDNSTimeout  = 50 * time.Millisecond
	alphanumericLowerCharset = "abcdefghijklmnopqrstuvwxyz0123456789"
)

// Pool is a thread-safe set of discovered IPs with a least-used selector.
// Insertion order is irrelevant; a single mutex guards the whole map.
type Pool struct {
	mu  sync.Mutex
	ips map[netip.Addr]uint32
}

// New returns an empty pool.
func New() *Pool {
	return &Pool{ips: make(map[netip.Addr]uint32)}
}

// IPCount returns the number of distinct IPs currently in the pool.
func (p *Pool) IPCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.ips)
}

// UseLeastUsed selects the IP with the smallest use-count, increments it in
// place, and returns the IP together with its pre-increment count. Ties are
// broken arbitrarily (in practice: map iteration order, which Go already
// randomizes).
//
// Invariant (spec §8, property 4): applied K times to a pool of P>=1 IPs,
// the resulting counts have max-min <= 1 at all times.
func (p *Pool) UseLeastUsed() (netip.Addr, uint32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.ips) == 0 {
		return netip.Addr{}, 0, fmt.Errorf("endpointpool: pool is empty")
	}

	var best netip.Addr
	bestCount := uint32(0)
	first := true
	for ip, count := range p.ips {
		if first || count < bestCount {
			best, bestCount = ip, count
			first = false
		}
	}

	p.ips[best] = bestCount + 1
	return best, bestCount, nil
}

// addAll deduplicates and inserts ips (all starting at use-count 0), and
// returns how many were genuinely new.
func (p *Pool) addAll(ips []netip.Addr) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	added := 0
	for _, ip := range ips {
		if _, exists := p.ips[ip]; !exists {
			p.ips[ip] = 0
			added++
		}
	}
	return added
}

// Resolver abstracts DNS A-record lookups so populate can be tested without
// a live network. The production implementation (dnsResolver below) talks
// UDP to dnsServer via github.com/miekg/dns.
type Resolver interface {
	LookupA(ctx context.Context, fqdn, dnsServer string, timeout time.Duration) ([]netip.Addr, error)
}

type dnsResolver struct{}

// DefaultResolver issues real DNS A-record queries via miekg/dns.
var DefaultResolver Resolver = dnsResolver{}

func (dnsResolver) LookupA(ctx context.Context, fqdn, dnsServer string, timeout time.Duration) ([]netip.Addr, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(fqdn), dns.TypeA)
	msg.RecursionDesired = true

	client := &dns.Client{Net: "udp", Timeout: timeout}

	in, _, err := client.ExchangeContext(ctx, msg, dnsServer)
	if err != nil {
		return nil, err
	}

	var ips []netip.Addr
	for _, ans := range in.Answer {
		a, ok := ans.(*dns.A)
		if !ok {
			continue
		}
		addr, ok := netip.AddrFromSlice(a.A.To4())
		if !ok {
			continue
		}
		ips = append(ips, addr)
	}
	return ips, nil
}

// PopulateOptions configures one discovery run (spec §4.2).
type PopulateOptions struct {
	Region      string
	DNSServer   string
	Desired     int // 0 means "accept whatever the first successful round found"
	MaxRounds   int
	Concurrency int
	RoundDelay  time.Duration
	Resolver    Resolver // nil means DefaultResolver
}

// Populate issues Concurrency randomized-hostname DNS A-record lookups per
// round, for up to MaxRounds rounds, stopping early once the pool reaches
// Desired IPs (or, when Desired is 0, as soon as at least one round added
// any IP). A round that yields zero answers across all of its concurrent
// lookups doubles the per-query timeout before the next round. Returns the
// final IP count.
func (p *Pool) Populate(ctx context.Context, opts PopulateOptions) int {
	resolver := opts.Resolver
	if resolver == nil {
		resolver = DefaultResolver
	}

	timeout := initialDNSTimeout

	for round := 0; round < opts.MaxRounds; round++ {
		var wg sync.WaitGroup
		var mu sync.Mutex
		var roundIPs []netip.Addr

		for c := 0; c < opts.Concurrency; c++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				fqdn := randomS3FQDN(opts.Region)
				ips, err := resolver.LookupA(ctx, fqdn, opts.DNSServer, timeout)
				if err != nil {
					// DNS errors are silently counted as "zero answers this
					// attempt" per spec §4.2 — never fatal here.
					return
				}
				mu.Lock()
				roundIPs = append(roundIPs, ips...)
				mu.Unlock()
			}()
		}
		wg.Wait()

		p.addAll(roundIPs)
		nowCount := p.IPCount()

		if len(roundIPs) == 0 {
			timeout *= 2
			continue
		}

		if opts.Desired <= 0 || nowCount >= opts.Desired {
			return nowCount
		}

		select {
		case <-ctx.Done():
			return p.IPCount()
		case <-time.After(opts.RoundDelay):
		}
	}

	return p.IPCount()
}

// randomS3FQDN builds a cache-busting hostname of the form
// "<7 lowercase alphanumerics>.s3.<region>.amazonaws.com." — random labels
// increase the chance of bypassing resolver and nameserver caches so each
// query has a chance of discovering a new front-end IP.
func randomS3FQDN(region string) string {
	label := make([]byte, fqdnLabelLength)
	for i := range label {
		label[i] = alphanumericLowerCharset[rand.IntN(len(alphanumericLowerCharset))]
	}
	return fmt.Sprintf("%s.s3.%s.amazonaws.com.", label, region)
}

// Snapshot returns a stable-sorted copy of the pool's current (ip, count)
// pairs, useful for diagnostics and tests.
func (p *Pool) Snapshot() []struct {
	IP    netip.Addr
	Count uint32
} {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]struct {
		IP    netip.Addr
		Count uint32
	}, 0, len(p.ips))
	for ip, count := range p.ips {
		out = append(out, struct {
			IP    netip.Addr
			Count uint32
		}{ip, count})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IP.String() < out[j].IP.String() })
	return out
}
