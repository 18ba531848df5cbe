package types

import "time"

// SubtreeMetrics summarizes how identifiable the subtree rooted at a
// node is. Computed deterministically from snapshot content, so repeated
// computations for the same (snapshot, path) are byte-identical and safe
// to cache.
type SubtreeMetrics struct {
	// Fields lists the field kinds that carry meaningful values
	// anywhere in the subtree, in FieldKind order.
	Fields []FieldKind `json:"fields"`

	// Uniqueness estimates how rarely the root node's meaningful field
	// values occur elsewhere in the snapshot. 1.0 means every present
	// field value is unique.
	Uniqueness float64 `json:"uniqueness"`

	// Stability estimates how likely the root node's identity survives
	// a re-render, discounting untrustworthy resource IDs.
	Stability float64 `json:"stability"`

	// Confidence is the mean of Uniqueness and Stability.
	Confidence float64 `json:"confidence"`

	// Suggested names the weakest strategy expected to re-find the
	// root node on its own.
	Suggested string `json:"suggested_strategy"`

	// Nodes counts the subtree, root included.
	Nodes int `json:"nodes"`
}

// FieldComparison records one field check a strategy performed against a
// candidate, in the exact terms the strategy saw.
type FieldComparison struct {
	Field    FieldKind `json:"field"`
	Expected string    `json:"expected"`
	Actual   string    `json:"actual"`
	Matched  bool      `json:"matched"`
	Weight   float64   `json:"weight,omitempty"`
	Note     string    `json:"note,omitempty"`
}

// Candidate is one scored node. Confidence is in [0,1]; a candidate
// qualifies when it reaches the strategy's threshold.
type Candidate struct {
	Index       int               `json:"index"`
	Path        Path              `json:"path"`
	Strategy    string            `json:"strategy"`
	Confidence  float64           `json:"confidence"`
	Bounds      Rect              `json:"bounds"`
	Class       string            `json:"class,omitempty"`
	Text        string            `json:"text,omitempty"`
	Comparisons []FieldComparison `json:"comparisons,omitempty"`
}

// TraceStep records one strategy attempt. Every resolution carries one
// step per strategy tried, in chain order, regardless of outcome; a
// result without a trace is a bug, not an optimization.
type TraceStep struct {
	Strategy   string  `json:"strategy"`
	Threshold  float64 `json:"threshold"`
	Candidates int     `json:"candidates"`
	Best       float64 `json:"best"`
	Qualified  bool    `json:"qualified"`
	Reason     string  `json:"reason"`
}

// MatchResult is the full outcome of one resolution. NoMatch and
// ambiguity are outcomes, not errors: the caller always receives the
// trace explaining what was tried and why it fell through.
//
// Elapsed is informational and excluded from the determinism contract;
// two runs over the same inputs agree on everything else.
type MatchResult struct {
	SnapshotID SnapshotID    `json:"snapshot_id"`
	Outcome    Outcome       `json:"outcome"`
	Winner     *Candidate    `json:"winner,omitempty"`
	Candidates []Candidate   `json:"candidates,omitempty"`
	Trace      []TraceStep   `json:"trace"`
	Elapsed    time.Duration `json:"elapsed_ns"`
}

// Matched reports whether resolution produced a winner.
func (r *MatchResult) Matched() bool {
	return r.Outcome == OutcomeMatched && r.Winner != nil
}
