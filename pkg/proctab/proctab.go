//go:build linux

// Package proctab reads the kernel's per-process statistics namespace
// (/proc on Linux) and parses each visible process into a
// (pid, ppid, cpu_time_s, rss_bytes) tuple. It has no notion of a process
// tree or a registry; callers combine its output with pkg/registry.
package proctab

import (
	"bufio"
	"os"
	"strconv"
	"strings"
)

// Record is one parsed /proc/<pid>/stat observation.
type Record struct {
	PID      int
	PPID     int
	CPUTimeS float64
	RSSBytes uint64
}

// fieldPID is the (0-indexed) position of the pid field within the
// whitespace-separated /proc/<pid>/stat record; ppid, stime, utime, and
// rss-in-pages follow at the positions spec.md §4.1 specifies.
const (
	fieldPID   = 0
	fieldPPID  = 3
	fieldSTime = 13
	fieldUTime = 14
	fieldRSS   = 23
)

// procDir is the kernel's per-process statistics directory Read scans.
const procDir = "/proc"

// Read enumerates every process currently visible under /proc, parses its
// stat record, and returns the resulting tuples plus a count of how many
// were successfully read. Pids outside [1, pidMax) are skipped. Parse
// failures and transient disappearances (the stat file vanishing between
// directory read and open) are silently skipped — the next sample re-reads.
func Read(pidMax int) ([]Record, int, error) {
	entries, err := os.ReadDir(procDir)
	if err != nil {
		return nil, 0, err
	}

	records := make([]Record, 0, len(entries))
	count := 0
	for _, e := range entries {
		name := e.Name()
		pid, ok := parsePositiveInt(name)
		if !ok || pid < 1 || pid >= pidMax {
			continue
		}

		rec, ok := readStat(pid, name)
		if !ok {
			continue
		}
		records = append(records, rec)
		count++
	}
	return records, count, nil
}

// readStat parses /proc/<pid>/stat. dirName is the directory entry the pid
// was discovered under; a record whose own pid field disagrees with it is
// discarded (spec.md §4.1's "a record whose first field disagrees with the
// directory name is discarded").
func readStat(pid int, dirName string) (Record, bool) {
	f, err := os.Open(procDir + "/" + dirName + "/stat")
	if err != nil {
		// Transient process death between directory read and open.
		return Record{}, false
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 4096), 1<<20)
	if !sc.Scan() {
		return Record{}, false
	}
	line := sc.Text()

	// comm (field 1) is parenthesized and may itself contain spaces or
	// parens; find the closing paren that starts the remaining numeric
	// fields rather than naively splitting on whitespace.
	open := strings.IndexByte(line, '(')
	close := strings.LastIndexByte(line, ')')
	if open < 0 || close < 0 || close < open {
		return Record{}, false
	}

	pidField := strings.TrimSpace(line[:open])
	parsedPID, err := strconv.Atoi(pidField)
	if err != nil || parsedPID != pid {
		return Record{}, false
	}

	rest := strings.Fields(line[close+1:])
	// rest[0] is state (field 2); the fixed positions in spec.md §4.1 are
	// given relative to the full record, so subtract the two fields
	// (pid, comm) already consumed; the state field stays in rest[0].
	get := func(fullIdx int) (string, bool) {
		idx := fullIdx - 2 // pid and comm are fields 0 and 1
		if idx < 0 || idx >= len(rest) {
			return "", false
		}
		return rest[idx], true
	}

	ppidStr, ok := get(fieldPPID)
	if !ok {
		return Record{}, false
	}
	ppid, err := strconv.Atoi(ppidStr)
	if err != nil {
		return Record{}, false
	}

	stimeStr, ok := get(fieldSTime)
	if !ok {
		return Record{}, false
	}
	stimeJiffies, err := strconv.ParseUint(stimeStr, 10, 64)
	if err != nil {
		return Record{}, false
	}

	utimeStr, ok := get(fieldUTime)
	if !ok {
		return Record{}, false
	}
	utimeJiffies, err := strconv.ParseUint(utimeStr, 10, 64)
	if err != nil {
		return Record{}, false
	}

	rssStr, ok := get(fieldRSS)
	if !ok {
		return Record{}, false
	}
	rssPages, err := strconv.ParseUint(rssStr, 10, 64)
	if err != nil {
		return Record{}, false
	}

	clockTicks := clockTicksFunc()
	pageSize := pageSizeFunc()

	return Record{
		PID:      pid,
		PPID:     ppid,
		CPUTimeS: float64(utimeJiffies+stimeJiffies) / float64(clockTicks),
		RSSBytes: rssPages * uint64(pageSize),
	}, true
}

func parsePositiveInt(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return v, true
}
