// Package registry holds the fixed-capacity, pid-indexed table of "live
// under supervision" process records, the intrusive active list used for
// O(active) iteration, and the post-sample staleness sweep.
package registry

import "sync"

// Record is one entry in the registry, keyed by pid. Tree links are rebuilt
// every sample by BuildTree (see tree.go); the intrusive list links
// (listNext/listPrev) are maintained independently by the registry itself.
type Record struct {
	Active bool
	PID    int
	PPID   int

	CPUTimeS         float64
	RSSMB            float64
	AccumulatedTimeS float64

	LastSampleSeq uint64

	// Tree links, rebuilt every sample; non-owning.
	Parent      *Record
	FirstChild  *Record
	NextSibling *Record

	// Per-traversal marks, compared against a traversal-local stamp rather
	// than reset between walks (see nextSampleStamp/nextKillStamp).
	visitingSample uint64
	visitingKill   uint64

	listNext *Record
	listPrev *Record
}

// Registry is a fixed-capacity table of Records indexed by pid, satisfying
// spec.md §3's invariant "for any active record, pid == index_in_registry".
//
// Registry owns the "registry lock" spec.md §5 describes: the one mutex
// shared by the sampler and the killer, held for the duration of a
// ProcTable read -> tree build -> subtree walk -> stale flush, in that
// fixed order relative to the killer lock (killer lock first, then this
// one) to preclude deadlock.
type Registry struct {
	mu sync.Mutex

	table []Record
	// activeHead/activeTail form the intrusive doubly-linked list of
	// currently active records, letting samplers and killers iterate only
	// over what's live instead of scanning the whole fixed table.
	activeHead *Record
	activeTail *Record
	activeLen  int

	observationSeq uint64
	sampleStamp    uint64
	killStamp      uint64
}

// Lock acquires the registry lock. Callers must pair every Lock with a
// deferred Unlock.
func (r *Registry) Lock() { r.mu.Lock() }

// Unlock releases the registry lock.
func (r *Registry) Unlock() { r.mu.Unlock() }

// NextSeq hands out the next value in the single monotonic observation
// sequence shared by every ProcTable read that mutates this registry,
// whether driven by the sampler's timer or the killer's escalation loop.
// Callers must hold the registry lock.
func (r *Registry) NextSeq() uint64 {
	r.observationSeq++
	return r.observationSeq
}

// CurrentSeq returns the most recently handed-out observation sequence
// number without advancing it.
func (r *Registry) CurrentSeq() uint64 { return r.observationSeq }

// New allocates a registry with capacity pidMax (indices [0, pidMax)).
func New(pidMax int) *Registry {
	return &Registry{table: make([]Record, pidMax)}
}

// Capacity returns the registry's pid index capacity.
func (r *Registry) Capacity() int { return len(r.table) }

// Get returns the record at pid, or nil if pid is out of range. The
// returned pointer is valid for the registry's lifetime; callers must hold
// whatever lock the registry's owner uses before mutating fields on it.
func (r *Registry) Get(pid int) *Record {
	if pid < 0 || pid >= len(r.table) {
		return nil
	}
	return &r.table[pid]
}

// RecordObservation creates a new active entry for pid (appending it to the
// active list) or updates an existing one. Updates take max over RSSMB and
// overwrite CPUTimeS, per spec.md §4.2.
func (r *Registry) RecordObservation(pid, ppid int, cpuTimeS float64, rssMB float64, seq uint64) {
	rec := r.Get(pid)
	if rec == nil {
		return
	}
	if !rec.Active {
		rec.Active = true
		rec.PID = pid
		rec.PPID = ppid
		rec.CPUTimeS = cpuTimeS
		rec.RSSMB = rssMB
		rec.AccumulatedTimeS = 0
		rec.LastSampleSeq = seq
		r.appendActive(rec)
		return
	}

	rec.PPID = ppid
	rec.CPUTimeS = cpuTimeS
	if rssMB > rec.RSSMB {
		rec.RSSMB = rssMB
	}
	rec.LastSampleSeq = seq
}

// FlushStale removes from the active list every record whose LastSampleSeq
// doesn't match seq, folding its last CPUTimeS into AccumulatedTimeS and
// deactivating it. Returns the number of records flushed.
func (r *Registry) FlushStale(seq uint64) int {
	flushed := 0
	rec := r.activeHead
	for rec != nil {
		next := rec.listNext
		if rec.LastSampleSeq != seq {
			rec.AccumulatedTimeS += rec.CPUTimeS
			r.removeActive(rec)
			rec.Active = false
			rec.Parent = nil
			rec.FirstChild = nil
			rec.NextSibling = nil
			flushed++
		}
		rec = next
	}
	return flushed
}

// ActiveLen returns the number of currently active records.
func (r *Registry) ActiveLen() int { return r.activeLen }

// ForEachActive calls fn for every active record, in list order. fn must
// not mutate the active list (use RecordObservation/FlushStale for that).
func (r *Registry) ForEachActive(fn func(*Record)) {
	for rec := r.activeHead; rec != nil; rec = rec.listNext {
		fn(rec)
	}
}

func (r *Registry) appendActive(rec *Record) {
	rec.listPrev = r.activeTail
	rec.listNext = nil
	if r.activeTail != nil {
		r.activeTail.listNext = rec
	} else {
		r.activeHead = rec
	}
	r.activeTail = rec
	r.activeLen++
}

func (r *Registry) removeActive(rec *Record) {
	if rec.listPrev != nil {
		rec.listPrev.listNext = rec.listNext
	} else {
		r.activeHead = rec.listNext
	}
	if rec.listNext != nil {
		rec.listNext.listPrev = rec.listPrev
	} else {
		r.activeTail = rec.listPrev
	}
	rec.listNext = nil
	rec.listPrev = nil
	r.activeLen--
}

// nextSampleStamp and nextKillStamp hand out traversal-local marks used by
// the cycle guards in tree.go: incrementing a monotonic counter instead of
// resetting a boolean on every record avoids an O(capacity) pass per walk.
func (r *Registry) nextSampleStamp() uint64 {
	r.sampleStamp++
	return r.sampleStamp
}

func (r *Registry) nextKillStamp() uint64 {
	r.killStamp++
	return r.killStamp
}
