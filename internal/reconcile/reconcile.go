// Package reconcile maps arbitrary uploaded headers onto the canonical
// field names the prediction model expects.
//
// Reconciliation runs in two phases. A case-insensitive synonym dictionary
// is applied first, literal matches only. Every target still missing then
// takes the most similar remaining header, provided the similarity reaches
// the threshold.
package reconcile

import (
	"errors"
	"strings"

	"github.com/aquilu/jacobo/internal/table"
)

// DefaultThreshold is the minimum similarity for a fuzzy rename.
const DefaultThreshold = 0.8

// ErrNoCanonicalColumns signals a table that lacks every canonical field
// after reconciliation.
var ErrNoCanonicalColumns = errors.New("the file does not contain any of the columns required by the model")

// Method tells which phase produced a rename.
type Method string

const (
	MethodSynonym Method = "synonym"
	MethodFuzzy   Method = "fuzzy"
)

// Rename is one entry of the column mapping.
type Rename struct {
	From       string  `json:"from"`
	To         string  `json:"to"`
	Method     Method  `json:"method"`
	Similarity float64 `json:"similarity,omitempty"`
}

// Result is the outcome of reconciling one table.
type Result struct {
	// Table is a renamed copy, the input is never modified.
	Table *table.Table
	// Renames lists applied renames in header order.
	Renames []Rename
	// Matched lists target names obtained through a rename, in target order.
	Matched []string
	// Present lists target names found among the final headers, in target order.
	Present []string
}

// OK reports whether at least one target column is present.
func (r Result) OK() bool {
	return len(r.Present) > 0
}

// Err returns ErrNoCanonicalColumns when no target column is present.
func (r Result) Err() error {
	if r.OK() {
		return nil
	}
	return ErrNoCanonicalColumns
}

// Mapping returns the raw header to target name mapping.
func (r Result) Mapping() map[string]string {
	out := make(map[string]string, len(r.Renames))
	for _, rn := range r.Renames {
		out[rn.From] = rn.To
	}
	return out
}

// Options configures a Reconciler. Zero values select the defaults.
type Options struct {
	Targets    []string
	Synonyms   map[string]string
	Threshold  float64
	Similarity SimilarityFunc
	// FoldCase lower-cases both strings before fuzzy scoring. Off by
	// default, which keeps the fuzzy phase case-sensitive.
	FoldCase bool
}

// Reconciler is immutable and safe for concurrent use.
type Reconciler struct {
	targets   []string
	synonyms  map[string]string
	threshold float64
	sim       SimilarityFunc
	foldCase  bool
}

// New builds a Reconciler. Options.Synonyms are merged over DefaultSynonyms.
func New(opts Options) *Reconciler {
	targets := opts.Targets
	if len(targets) == 0 {
		targets = table.CanonicalFields()
	}
	threshold := opts.Threshold
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	sim := opts.Similarity
	if sim == nil {
		sim = GestaltRatio
	}
	return &Reconciler{
		targets:   append([]string(nil), targets...),
		synonyms:  mergeSynonyms(opts.Synonyms, targets),
		threshold: threshold,
		sim:       sim,
		foldCase:  opts.FoldCase,
	}
}

// Targets returns the canonical names this reconciler looks for.
func (r *Reconciler) Targets() []string {
	return append([]string(nil), r.targets...)
}

// Threshold returns the fuzzy acceptance threshold.
func (r *Reconciler) Threshold() float64 {
	return r.threshold
}

// Synonyms returns a copy of the effective dictionary.
func (r *Reconciler) Synonyms() map[string]string {
	out := make(map[string]string, len(r.synonyms))
	for k, v := range r.synonyms {
		out[k] = v
	}
	return out
}

// score rates header against target in the order difflib's
// get_close_matches uses: candidate first, wanted name second.
func (r *Reconciler) score(header, target string) float64 {
	if r.foldCase {
		header, target = strings.ToLower(header), strings.ToLower(target)
	}
	return r.sim(header, target)
}

// Reconcile renames headers of a copy of t. It never fails; callers decide
// whether to accept the result through Result.OK.
func (r *Reconciler) Reconcile(t *table.Table) Result {
	out := t.Clone()
	if out == nil {
		out = table.New(nil, nil)
	}
	headers := out.Headers
	for i, h := range headers {
		headers[i] = cleanHeader(h)
	}

	isTarget := make(map[string]bool, len(r.targets))
	for _, name := range r.targets {
		isTarget[name] = true
	}

	// bound holds, per target, the header index currently providing it.
	bound := make(map[string]int, len(r.targets))
	method := make(map[int]Method)
	score := make(map[int]float64)
	synonymHit := make(map[int]bool)

	for i, h := range headers {
		if isTarget[h] {
			bound[h] = i
			continue
		}
		if name, ok := r.synonyms[HeaderKey(h)]; ok {
			synonymHit[i] = true
			bound[name] = i
			method[i] = MethodSynonym
		}
	}

	claimed := make(map[int]bool)
	for _, idx := range bound {
		claimed[idx] = true
	}
	for _, name := range r.targets {
		if _, ok := bound[name]; ok {
			continue
		}
		best, bestScore := -1, 0.0
		for i, h := range headers {
			if claimed[i] || synonymHit[i] || isTarget[h] {
				continue
			}
			s := r.score(h, name)
			if s >= r.threshold && s > bestScore {
				best, bestScore = i, s
			}
		}
		if best < 0 {
			continue
		}
		bound[name] = best
		claimed[best] = true
		method[best] = MethodFuzzy
		score[best] = bestScore
	}

	res := Result{Table: out}
	owner := make(map[int]string, len(bound))
	for name, idx := range bound {
		owner[idx] = name
	}
	for i := range headers {
		name, ok := owner[i]
		if !ok || headers[i] == name {
			continue
		}
		res.Renames = append(res.Renames, Rename{
			From:       headers[i],
			To:         name,
			Method:     method[i],
			Similarity: score[i],
		})
		headers[i] = name
	}
	renamed := make(map[string]bool, len(res.Renames))
	for _, rn := range res.Renames {
		renamed[rn.To] = true
	}
	for _, name := range r.targets {
		if renamed[name] {
			res.Matched = append(res.Matched, name)
		}
		if out.HasColumn(name) {
			res.Present = append(res.Present, name)
		}
	}
	return res
}
