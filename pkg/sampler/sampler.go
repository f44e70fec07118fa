//go:build linux

// Package sampler drives the periodic scan: read the process table, rebuild
// the tree, aggregate the launched child's subtree, update monotone peaks,
// and decide whether a limit has been breached.
package sampler

import (
	"sync/atomic"
	"time"

	"github.com/ja7ad/rlimsup/pkg/limits"
	"github.com/ja7ad/rlimsup/pkg/proctab"
	"github.com/ja7ad/rlimsup/pkg/registry"
	"github.com/ja7ad/rlimsup/pkg/types"
)

// Outcome reports whether a tick's limit check triggered a breach, and
// which one. At most one of the two latches is ever the first to fire (see
// caughtOutOfTime/caughtOutOfMemory below); a tick that finds an
// already-latched cause reports OutcomeNone even if the raw numbers are
// still over the ceiling, matching spec.md §8's "at most one... causes a
// teardown entrance".
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeOutOfTime
	OutcomeOutOfMemory
)

// Result is what Tick returns: the aggregates measured this tick plus
// whether they constitute a first-time breach the caller should act on.
type Result struct {
	Seq             uint64
	SampledTimeS    float64
	SampledMemoryMB float64
	ProcTableCount  int
	Flushed         int
	CycleDetected   bool
	Outcome         Outcome
}

// Sampler drives ticks against the shared registry, the launched child's
// pid, the limits to check against, and the monotone peaks/latches
// spec.md §4.4/§8 describe. The registry's own lock (see Registry.Lock)
// serializes this sampler against the killer's escalation loop; Sampler
// holds no lock of its own.
type Sampler struct {
	reg    *registry.Registry
	pid    int
	lim    limits.Limits
	pidMax int

	startTime time.Time

	maxTimeS    float64
	maxMemoryMB float64

	// seenChildren tracks every descendant pid (excluding pid itself) ever
	// observed in a subtree walk, for the "children:" summary log line.
	// Written only from the goroutine that calls Tick, like
	// maxTimeS/maxMemoryMB.
	seenChildren map[int]struct{}

	caughtOutOfTime   atomic.Bool
	caughtOutOfMemory atomic.Bool
}

// New creates a Sampler for the given launched child pid and registry,
// checked against lim, with elapsed wall-clock measured from startTime.
func New(reg *registry.Registry, pid int, pidMax int, lim limits.Limits, startTime time.Time) *Sampler {
	return &Sampler{
		reg:          reg,
		pid:          pid,
		lim:          lim,
		pidMax:       pidMax,
		startTime:    startTime,
		seenChildren: make(map[int]struct{}),
	}
}

// Tick performs one sample: increment the sequence counter, read the
// process table, rebuild the tree, aggregate the launched child's subtree,
// flush stale records, update the monotone peaks, and check limits — in
// that order, per spec.md §4.4.
func (s *Sampler) Tick() Result {
	s.reg.Lock()
	seq := s.reg.NextSeq()

	records, count, err := proctab.Read(s.pidMax)
	var sampledTimeS, sampledMemoryMB float64
	var cycleDetected bool

	if err == nil {
		for _, rec := range records {
			s.reg.RecordObservation(rec.PID, rec.PPID, rec.CPUTimeS, types.Bytes(rec.RSSBytes).MB(), seq)
		}

		s.reg.BuildTree()

		if count > 0 {
			cycleDetected = s.reg.WalkSubtree(s.pid, func(r *registry.Record) {
				if r.PID != s.pid {
					s.seenChildren[r.PID] = struct{}{}
				}
				if r.LastSampleSeq == seq {
					sampledTimeS += r.CPUTimeS
					sampledMemoryMB += r.RSSMB
				}
			})
		}
	}

	flushed := s.reg.FlushStale(seq)
	s.reg.Unlock()

	// Peaks and the limit check happen outside the registry lock: spec.md
	// §4.4 requires the sampler not block on anything but the lock and
	// file I/O, and the peaks/latches below are only ever written from
	// this single goroutine (the one calling Tick: pkg/supervisor's Run
	// loop), so no
	// additional synchronization is needed for them.
	if sampledTimeS > s.maxTimeS {
		s.maxTimeS = sampledTimeS
	}
	if sampledMemoryMB > s.maxMemoryMB {
		s.maxMemoryMB = sampledMemoryMB
	}

	outcome := s.checkLimits(sampledTimeS, sampledMemoryMB)

	return Result{
		Seq:             seq,
		SampledTimeS:    sampledTimeS,
		SampledMemoryMB: sampledMemoryMB,
		ProcTableCount:  count,
		Flushed:         flushed,
		CycleDetected:   cycleDetected,
		Outcome:         outcome,
	}
}

// checkLimits implements spec.md §4.4's ordered limit check: time/real-time
// before memory, each latched exactly once via compare-and-swap.
func (s *Sampler) checkLimits(sampledTimeS, sampledMemoryMB float64) Outcome {
	elapsed := types.Seconds(time.Since(s.startTime).Seconds())

	// A configured ceiling of zero is still a ceiling (spec.md §8's boundary
	// behavior: "time_limit = 0: any sample with sampled_time_s > 0 triggers
	// OUT_OF_TIME"), so these are plain strict-greater-than checks with no
	// "zero means unlimited" special case.
	timeBreach := types.Seconds(sampledTimeS).Exceeds(s.lim.TimeLimitS) ||
		elapsed.Exceeds(s.lim.RealTimeLimitS)
	if timeBreach {
		if s.caughtOutOfTime.CompareAndSwap(false, true) {
			return OutcomeOutOfTime
		}
		return OutcomeNone
	}

	if sampledMemoryMB > s.lim.SpaceLimitMB {
		if s.caughtOutOfMemory.CompareAndSwap(false, true) {
			return OutcomeOutOfMemory
		}
	}
	return OutcomeNone
}

// MaxTimeS returns the monotone peak subtree CPU time observed so far.
func (s *Sampler) MaxTimeS() float64 { return s.maxTimeS }

// MaxMemoryMB returns the monotone peak subtree resident memory observed so
// far.
func (s *Sampler) MaxMemoryMB() float64 { return s.maxMemoryMB }

// ChildrenSeen returns the number of distinct descendant pids (excluding the
// launched child itself) observed across every tick so far, for the
// "children:" summary log line.
func (s *Sampler) ChildrenSeen() int { return len(s.seenChildren) }

// Seq returns the most recent observation sequence number, shared with any
// killer operating on the same registry.
func (s *Sampler) Seq() uint64 {
	s.reg.Lock()
	defer s.reg.Unlock()
	return s.reg.CurrentSeq()
}

// CaughtOutOfTime reports whether an out-of-time breach has latched.
func (s *Sampler) CaughtOutOfTime() bool { return s.caughtOutOfTime.Load() }

// CaughtOutOfMemory reports whether an out-of-memory breach has latched.
func (s *Sampler) CaughtOutOfMemory() bool { return s.caughtOutOfMemory.Load() }
