package core

// progressState aggregates byte progress for one task.  It is owned by the
// task and only mutated under the task's emit lock.
type progressState struct {
	completed int64
	total     int64 // -1 while unknown
	emitted   bool
	terminal  bool
}

func newProgressState() progressState {
	return progressState{total: -1}
}

func (s *progressState) snapshot() Progress {
	return Progress{Completed: s.completed, Total: s.total}
}

// advance folds a source event into the state.  It reports whether the event
// moves progress forward and should be published.
func (s *progressState) advance(completed, total int64) (Progress, bool) {
	if s.terminal {
		return s.snapshot(), false
	}
	changed := false
	if s.total < 0 && total >= 0 {
		s.total = total
		changed = true
	}
	if s.total >= 0 && completed > s.total {
		completed = s.total
	}
	if completed > s.completed || (!s.emitted && completed >= 0) {
		s.completed = completed
		changed = true
	}
	if !changed {
		return s.snapshot(), false
	}
	s.emitted = true
	return s.snapshot(), true
}

// complete records that all n bytes are available, learning the total if it
// was never reported.  It never reports less than an earlier event did.  It
// reports false when (n, n) was already the last published event.
func (s *progressState) complete(n int64) (Progress, bool) {
	if s.terminal {
		return s.snapshot(), false
	}
	s.terminal = true
	if n < s.completed {
		n = s.completed
	}
	if s.emitted && s.completed == n && s.total == n {
		return s.snapshot(), false
	}
	s.completed, s.total = n, n
	s.emitted = true
	return s.snapshot(), true
}
