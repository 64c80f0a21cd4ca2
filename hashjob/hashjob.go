// Package hashjob provides the external hash/allocation worker-pool
// contract PartData depends on (spec.md §5's "hash workers read the file
// path only" boundary) plus a reference in-process implementation so
// tests can exercise the full write -> hash -> verify loop without a real
// MD4 hasher.
//
// The real hydranode identifies files and chunks with the ed2k hash
// family (MD4-based); Go's standard crypto package set has no MD4, and
// golang.org/x/crypto/md4 is outside the corpus's dependency surface, so
// Pool computes a placeholder digest (crypto/md5, truncated to 16 bytes)
// rather than claim protocol-accurate hashes. Swapping in a real MD4
// implementation only touches the hashFunc field.
package hashjob

import (
	"context"
	"crypto/md5"

	"golang.org/x/sync/errgroup"

	"github.com/hydranode/hydranode/partdata"
)

// hashFunc computes a 16-byte digest over data. Exposed as a package
// variable so a future MD4 implementation is a one-line swap.
var hashFunc = func(data []byte) partdata.Hash {
	return partdata.Hash(md5.Sum(data))
}

// Pool is a bounded-concurrency, semaphore-based implementation of
// partdata.Hasher: each Submit spawns a worker (up to the configured
// limit) that reads the job's range and calls Done with the computed
// digest. Only HashAll uses errgroup.
type Pool struct {
	sem chan struct{}
}

// NewPool creates a Pool allowing at most concurrency hash jobs to run at
// once.
func NewPool(concurrency int) *Pool {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Pool{sem: make(chan struct{}, concurrency)}
}

// Submit implements partdata.Hasher.
func (p *Pool) Submit(job partdata.HashJob) {
	p.sem <- struct{}{}
	go func() {
		defer func() { <-p.sem }()
		data, err := job.Read(job.Range.Begin, int(job.Range.Len()))
		if err != nil {
			job.Done(partdata.Hash{}, err)
			return
		}
		job.Done(hashFunc(data), nil)
	}()
}

// HashAll runs jobs concurrently and waits for all of them, useful for a
// whole-file rehash pass that must complete before declaring verification
// finished. Grounded on the worker-pool shape the teacher never needs
// (single-piece-size BitTorrent verification is already one hash per
// piece at steady state) but golang.org/x/sync/errgroup is the pack's own
// idiom for bounded concurrent fan-out.
func HashAll(ctx context.Context, concurrency int, jobs []partdata.HashJob) error {
	g, ctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, concurrency)
	for _, j := range jobs {
		j := j
		sem <- struct{}{}
		g.Go(func() error {
			defer func() { <-sem }()
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			data, err := j.Read(j.Range.Begin, int(j.Range.Len()))
			if err != nil {
				j.Done(partdata.Hash{}, err)
				return err
			}
			j.Done(hashFunc(data), nil)
			return nil
		})
	}
	return g.Wait()
}
