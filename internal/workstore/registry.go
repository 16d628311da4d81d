package workstore

import (
	"sync"

	"github.com/dispatchcore/bulk-dispatch-service/internal/domain"
)

// activeRegistry tracks the jobs currently held by lane workers so the
// queue status endpoint can show what is in flight.
type activeRegistry struct {
	mu   sync.RWMutex
	jobs map[string]map[uint64]domain.ActiveJob
}

func newActiveRegistry() *activeRegistry {
	return &activeRegistry{jobs: make(map[string]map[uint64]domain.ActiveJob)}
}

func (r *activeRegistry) Add(lane string, tag uint64, job domain.ActiveJob) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.jobs[lane] == nil {
		r.jobs[lane] = make(map[uint64]domain.ActiveJob)
	}
	r.jobs[lane][tag] = job
}

func (r *activeRegistry) Remove(lane string, tag uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.jobs[lane], tag)
}

func (r *activeRegistry) Count(lane string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.jobs[lane])
}

func (r *activeRegistry) Sample(lane string, limit int) []domain.ActiveJob {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sample := make([]domain.ActiveJob, 0, limit)
	for _, job := range r.jobs[lane] {
		if len(sample) >= limit {
			break
		}
		sample = append(sample, job)
	}
	return sample
}
