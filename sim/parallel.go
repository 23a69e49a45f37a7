package sim

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

// parallelThreshold is the minimum walker count to walk concurrently.
// Below this, a single goroutine is faster.
const parallelThreshold = 4

// walkParallel walks every job on a bounded worker pool. Each walker draws
// from its own generator and writes only its own record slot, so results
// match the sequential path.
func (e *Engine) walkParallel(jobs []walkerJob, steps, run int, records []Record) error {
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range jobs {
		g.Go(func() error {
			records[i] = e.walk(jobs[i], steps, run)
			return nil
		})
	}
	return g.Wait()
}
