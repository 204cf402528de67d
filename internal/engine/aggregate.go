package engine

import (
	"fmt"

	"github.com/dusk-indust/briefing/internal/collab"
)

// Aggregator reduces a fully terminal set of tasks into a Bundle according to
// its Policy.
type Aggregator struct {
	policy Policy
}

// NewAggregator creates an Aggregator. An unknown policy falls back to
// PolicyStrict.
func NewAggregator(policy Policy) *Aggregator {
	if !policy.Valid() {
		policy = PolicyStrict
	}
	return &Aggregator{policy: policy}
}

// Policy returns the aggregation policy in effect.
func (a *Aggregator) Policy() Policy {
	return a.policy
}

// Aggregate builds the bundle for query from tasks, which must be in
// discovery order. It refuses to read a task that is still pending.
//
// Under PolicyStrict any failed task fails the whole aggregation with an
// *AggregationError and no bundle. Under PolicyLenient every task appears in
// the bundle tagged with its outcome.
func (a *Aggregator) Aggregate(query string, tasks []Task) (*collab.Bundle, error) {
	var failures []TaskFailure
	for _, t := range tasks {
		if !t.State.IsTerminal() {
			return nil, fmt.Errorf("aggregate: %w: %q is %s", ErrNotTerminal, t.EntityID, t.State)
		}
		if t.State == TaskError {
			failures = append(failures, TaskFailure{EntityID: t.EntityID, Name: t.Name, Detail: t.ErrorDetail})
		}
	}

	if a.policy == PolicyStrict && len(failures) > 0 {
		return nil, &AggregationError{Total: len(tasks), Failures: failures}
	}

	bundle := &collab.Bundle{
		Query:   query,
		Policy:  string(a.policy),
		Entries: make([]collab.BundleEntry, 0, len(tasks)),
	}
	for _, t := range tasks {
		entry := collab.BundleEntry{EntityID: t.EntityID, Name: t.Name}
		if t.State == TaskSuccess {
			entry.Outcome = collab.OutcomeSuccess
			entry.Result = t.clone().Result
		} else {
			entry.Outcome = collab.OutcomeError
			entry.Error = t.ErrorDetail
		}
		bundle.Entries = append(bundle.Entries, entry)
	}
	return bundle, nil
}
