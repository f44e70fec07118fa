//go:build linux

// Package killer implements the bounded, escalating subtree teardown
// (spec.md §4.5): soft termination first, unconditional kill once the
// sleep interval has collapsed, verified by re-reading the process table.
package killer

import (
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/ja7ad/rlimsup/pkg/proctab"
	"github.com/ja7ad/rlimsup/pkg/registry"
	"github.com/ja7ad/rlimsup/pkg/types"
)

// maxRounds bounds the escalation loop; initialSleep halves each round down
// to minSleep, per spec.md §4.5.
const (
	maxRounds    = 10
	initialSleep = 160 * time.Millisecond
	minSleep     = time.Millisecond
	reapPause    = 100 * time.Microsecond
	softSignalThreshold = 2 * time.Millisecond
)

// Killer owns the killer lock that serializes concurrent teardown attempts
// (timer-driven vs. signal-driven), acquired before the registry lock in a
// fixed order to preclude deadlock (spec.md §5).
type Killer struct {
	mu      sync.Mutex
	reg     *registry.Registry
	selfPID int
	pidMax  int
}

// New creates a Killer for the given registry (locked via Registry.Lock, the
// same lock the sampler uses) and self pid (never signaled, per spec.md
// §4.5's safety invariant).
func New(reg *registry.Registry, selfPID, pidMax int) *Killer {
	return &Killer{reg: reg, selfPID: selfPID, pidMax: pidMax}
}

// Report summarizes one KillSubtree invocation: how many rounds ran, how
// many signals were sent in the final round, and whether a cycle was ever
// observed.
type Report struct {
	Rounds        int
	LastSignaled  int
	CycleDetected bool
}

// KillSubtree ensures every descendant of rootPID, and rootPID itself, is
// sent a termination signal, escalating from a soft request to an
// unconditional kill as the sleep interval collapses, and verifies the
// subtree empties by re-reading the process table between rounds. Running
// it on an already-empty subtree is a no-op (the first round's walk
// signals zero and the loop exits immediately).
func (k *Killer) KillSubtree(rootPID int) Report {
	k.mu.Lock()
	defer k.mu.Unlock()

	var report Report
	sleep := initialSleep

	for round := 0; round < maxRounds; round++ {
		time.Sleep(sleep)

		sig := unix.SIGKILL
		if sleep > softSignalThreshold {
			sig = unix.SIGTERM
		}

		signaled, cycle := k.signalRound(rootPID, sig)
		report.Rounds++
		report.LastSignaled = signaled
		if cycle {
			report.CycleDetected = true
		}

		if signaled == 0 {
			break
		}

		sleep /= 2
		if sleep < minSleep {
			sleep = minSleep
		}
	}

	return report
}

// signalRound re-reads the process table, rebuilds the tree, and walks the
// subtree depth-first post-order signalling each descendant, pausing
// briefly between a node and its parent so a terminating parent can reap.
// It never signals the supervisor's own pid.
func (k *Killer) signalRound(rootPID int, sig unix.Signal) (signaled int, cycleDetected bool) {
	k.reg.Lock()
	defer k.reg.Unlock()

	records, count, err := proctab.Read(k.pidMax)
	if err != nil || count == 0 {
		return 0, false
	}

	seq := k.reg.NextSeq()
	for _, rec := range records {
		k.reg.RecordObservation(rec.PID, rec.PPID, rec.CPUTimeS, types.Bytes(rec.RSSBytes).MB(), seq)
	}
	k.reg.BuildTree()

	cycleDetected = k.reg.WalkSubtreePostOrder(rootPID, func(r *registry.Record) {
		if r.PID == k.selfPID {
			return
		}
		if unix.Kill(r.PID, sig) == nil {
			signaled++
		}
		time.Sleep(reapPause)
	})

	k.reg.FlushStale(seq)
	return signaled, cycleDetected
}
