package completion

// Step is the outcome of one epilogue step.
type Step struct {
	Name string
	Err  error
}

// Report aggregates the per-step outcomes of one epilogue run. Steps are
// attempted independently, so a report can carry any mix of successes and
// failures.
type Report struct {
	JobID string
	Steps []Step
}

func (r *Report) add(name string, err error) {
	r.Steps = append(r.Steps, Step{Name: name, Err: err})
}

// Failed returns the steps that reported an error.
func (r *Report) Failed() []Step {
	var failed []Step
	for _, s := range r.Steps {
		if s.Err != nil {
			failed = append(failed, s)
		}
	}
	return failed
}

// OK reports whether every step succeeded.
func (r *Report) OK() bool {
	return len(r.Failed()) == 0
}
