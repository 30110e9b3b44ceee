// Package scheduler implements the Slot Scheduler (spec §4.7, C7): it
// drives N blocks concurrently across a bounded set of slots, retrying a
// failed block a small, fixed number of times before giving up on the
// whole transfer. Each attempt picks its endpoint afresh with the pool's
// least-used selection, which can return the same IP as the attempt before.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"sync/atomic"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"s3bfg/internal/blockplanner"
	"s3bfg/internal/fetchworker"
	"s3bfg/internal/metrics"
	"s3bfg/internal/reqsign"
)

// maxAttemptsDefault matches spec §7: "up to 3 attempts per block".
const maxAttemptsDefault = 3

// EndpointSource is the subset of internal/endpointpool.Pool the scheduler
// needs: one IP, chosen to balance load, per fetch attempt.
type EndpointSource interface {
	UseLeastUsed() (netip.Addr, uint32, error)
}

// Options carries everything about the object and destination that stays
// constant across every block in one transfer.
type Options struct {
	MaxAttempts int // 0 means maxAttemptsDefault

	Port       int
	Host       string
	Region     string
	Bucket     string
	Key        string
	MemoryOnly bool
	Dest       fetchworker.Destination
}

// Scheduler bounds how many blocks are in flight at once and hands out a
// small, stable slot index to each concurrent attempt for metrics scoping.
type Scheduler struct {
	ips  EndpointSource
	sem  *semaphore.Weighted
	n    int64
	next atomic.Int64
}

// New returns a Scheduler that runs at most concurrency blocks at a time.
func New(concurrency int, ips EndpointSource) *Scheduler {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Scheduler{
		ips: ips,
		sem: semaphore.NewWeighted(int64(concurrency)),
		n:   int64(concurrency),
	}
}

// Run fetches every block in blocks, honoring the ≤N-in-flight invariant
// (spec §8, invariant 5), and returns the first block failure encountered
// (an unretryable error, or a retryable one whose attempts are used up).
// In-flight goroutines are canceled via errgroup's context and drained
// before Run returns.
func (s *Scheduler) Run(ctx context.Context, sink metrics.Sink, creds reqsign.Credentials, blocks []blockplanner.Block, opts Options) error {
	g, gctx := errgroup.WithContext(ctx)

	for _, block := range blocks {
		block := block

		if err := s.sem.Acquire(gctx, 1); err != nil {
			// gctx is canceled once a block has failed: report that
			// block's error rather than the cancellation.
			if werr := g.Wait(); werr != nil {
				return werr
			}
			return fmt.Errorf("scheduler: %w", err)
		}

		g.Go(func() error {
			defer s.sem.Release(1)
			return s.fetchBlockWithRetry(gctx, sink, creds, block, opts)
		})
	}

	return g.Wait()
}

// nextSlot hands out a small round-robin index in [0, N) so metrics and
// logs can talk about "slot 3" rather than a goroutine address. Indices are
// handed out in rotation and are not reclaimed when an attempt finishes, so
// two attempts in flight at the same time can carry the same index — the
// number is a display label, not a mutual-exclusion token.
func (s *Scheduler) nextSlot() int {
	return int(s.next.Add(1) % s.n)
}

func (s *Scheduler) fetchBlockWithRetry(ctx context.Context, sink metrics.Sink, creds reqsign.Credentials, block blockplanner.Block, opts Options) error {
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = maxAttemptsDefault
	}

	attempts := 0
	attempt := func() error {
		attempts++
		ip, _, err := s.ips.UseLeastUsed()
		if err != nil {
			return backoff.Permanent(fmt.Errorf("scheduler: selecting endpoint: %w", err))
		}

		req := fetchworker.Request{
			SlotIndex:  s.nextSlot(),
			IP:         ip,
			Port:       opts.Port,
			Host:       opts.Host,
			Region:     opts.Region,
			Bucket:     opts.Bucket,
			Key:        opts.Key,
			Block:      block,
			MemoryOnly: opts.MemoryOnly,
			Dest:       opts.Dest,
		}

		_, err = fetchworker.Fetch(ctx, sink, creds, req)
		if err == nil {
			return nil
		}

		var fe *fetchworker.FetchError
		if errors.As(err, &fe) && fe.Kind.Retryable() {
			sink.IncrCounter(metrics.BlocksRetried, 1)
			return err
		}
		return backoff.Permanent(err)
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(&backoff.ZeroBackOff{}, uint64(maxAttempts-1)), ctx)
	if err := backoff.Retry(attempt, policy); err != nil {
		sink.IncrCounter(metrics.BlocksFailed, 1)
		return fmt.Errorf("scheduler: block at offset %d (length %d) failed after %d attempt(s): %w",
			block.Offset, block.Length, attempts, err)
	}

	sink.IncrCounter(metrics.BlocksProcessed, 1)
	return nil
}
