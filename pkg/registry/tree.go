package registry

// BuildTree rebuilds parent/first_child/next_sibling links across all
// active records, per spec.md §4.3's two-pass algorithm:
//  1. Clear the link fields of every active record.
//  2. For each active record, link it under its parent (which must exist as
//     an index in the registry but may itself be inactive — tolerated; the
//     subtree walk starting from the launched child's pid simply never
//     reaches an inactive branch).
func (r *Registry) BuildTree() {
	r.ForEachActive(func(rec *Record) {
		rec.Parent = nil
		rec.FirstChild = nil
		rec.NextSibling = nil
	})

	r.ForEachActive(func(rec *Record) {
		parent := r.Get(rec.PPID)
		if parent == nil || parent == rec {
			return
		}
		rec.Parent = parent
		rec.NextSibling = parent.FirstChild
		parent.FirstChild = rec
	})
}

// WalkSubtree walks the subtree rooted at rootPID depth-first, calling fn
// for every active descendant reached (including the root itself, if
// active). A per-traversal mark guards against cycles introduced by
// concurrent mutation between a ProcTable read and the walk: if a cycle is
// detected, the walk stops descending that branch and reports it via the
// cycleDetected return value.
func (r *Registry) WalkSubtree(rootPID int, fn func(*Record)) (cycleDetected bool) {
	root := r.Get(rootPID)
	if root == nil || !root.Active {
		return false
	}
	stamp := r.nextSampleStamp()
	return walk(root, stamp, fn)
}

func walk(rec *Record, stamp uint64, fn func(*Record)) (cycleDetected bool) {
	if rec.visitingSample == stamp {
		return true
	}
	rec.visitingSample = stamp
	fn(rec)
	for child := rec.FirstChild; child != nil; child = child.NextSibling {
		if walk(child, stamp, fn) {
			cycleDetected = true
		}
	}
	return cycleDetected
}

// WalkSubtreePostOrder walks the subtree rooted at rootPID in post-order
// (children before their parent — the order the killer needs so a
// terminating parent can be reaped before its own signal is sent). Uses the
// kill-traversal's stamp, independent of WalkSubtree's, so a sampler tick
// and a killer pass can run their own traversals without colliding marks.
func (r *Registry) WalkSubtreePostOrder(rootPID int, fn func(*Record)) (cycleDetected bool) {
	root := r.Get(rootPID)
	if root == nil || !root.Active {
		return false
	}
	stamp := r.nextKillStamp()
	return walkPost(root, stamp, fn)
}

func walkPost(rec *Record, stamp uint64, fn func(*Record)) (cycleDetected bool) {
	if rec.visitingKill == stamp {
		return true
	}
	rec.visitingKill = stamp
	for child := rec.FirstChild; child != nil; child = child.NextSibling {
		if walkPost(child, stamp, fn) {
			cycleDetected = true
		}
	}
	fn(rec)
	return cycleDetected
}
