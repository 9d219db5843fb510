package job

import "sync"

// record pairs a tracked job with its notification state.
type record struct {
	job      Job
	notified bool // completion callback already fired
}

// tracker manages the tracked job set with thread-safe access.
// Registration order is preserved for stable display sorting. Records leave
// the set only through clearTerminal; reconciliation never evicts.
type tracker struct {
	mu    sync.Mutex
	jobs  map[string]*record
	order []string
}

func newTracker() *tracker {
	return &tracker{
		jobs: make(map[string]*record),
	}
}

// register inserts a placeholder record for a newly submitted job.
// Returns false if the id is already tracked.
func (t *tracker) register(j Job) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.jobs[j.ID]; exists {
		return false
	}
	t.jobs[j.ID] = &record{job: j}
	t.order = append(t.order, j.ID)
	return true
}

// adopt inserts a server-reported job from the listing recovery path.
// An id that is already tracked wins over the adopted copy, so a record
// registered concurrently with an in-flight listing is never clobbered.
// Jobs adopted in a terminal state are marked notified: the client never
// observed them active, so no completion callback is owed.
func (t *tracker) adopt(j Job) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.jobs[j.ID]; exists {
		return false
	}
	t.jobs[j.ID] = &record{job: j, notified: j.Status.Terminal()}
	t.order = append(t.order, j.ID)
	return true
}

// replace overwrites a tracked record with a freshly fetched one.
// It reports whether the job just transitioned into a terminal state and
// whether the completion callback should fire (exactly once per job).
// Fetches for ids no longer tracked are discarded.
func (t *tracker) replace(fetched Job) (finished bool, notify bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, exists := t.jobs[fetched.ID]
	if !exists {
		return false, false
	}

	prev := rec.job.Status
	rec.job = fetched

	finished = !prev.Terminal() && fetched.Status.Terminal()
	if fetched.Status == StatusCompleted && !rec.notified {
		rec.notified = true
		notify = true
	}
	return finished, notify
}

// get returns a copy of a tracked job.
func (t *tracker) get(id string) (Job, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, exists := t.jobs[id]
	if !exists {
		return Job{}, false
	}
	return rec.job, true
}

// snapshot returns copies of all tracked jobs in registration order.
func (t *tracker) snapshot() []Job {
	t.mu.Lock()
	defer t.mu.Unlock()

	jobs := make([]Job, 0, len(t.order))
	for _, id := range t.order {
		jobs = append(jobs, t.jobs[id].job)
	}
	return jobs
}

// activeIDs returns the ids of jobs still in an active state, in
// registration order.
func (t *tracker) activeIDs() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	ids := make([]string, 0, len(t.order))
	for _, id := range t.order {
		if t.jobs[id].job.Status.Active() {
			ids = append(ids, id)
		}
	}
	return ids
}

// empty reports whether no jobs are tracked.
func (t *tracker) empty() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.jobs) == 0
}

// hasActive reports whether any tracked job still needs polling.
func (t *tracker) hasActive() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, rec := range t.jobs {
		if rec.job.Status.Active() {
			return true
		}
	}
	return false
}

// clearTerminal removes all terminal jobs and returns how many were removed.
func (t *tracker) clearTerminal() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	kept := t.order[:0]
	removed := 0
	for _, id := range t.order {
		if t.jobs[id].job.Status.Terminal() {
			delete(t.jobs, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	t.order = kept
	return removed
}
