// Stable content digest over normalised trace data and expectations
// The digest is a pure function of (trace content, expectation set)
package digest

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/andrewh/attest/pkg/expect"
	"github.com/andrewh/attest/pkg/trace"
)

// Domain is the versioned domain-separation prefix. Bumping the version
// invalidates every recorded baseline, so it changes only when the
// canonical form changes.
const Domain = "attest/report/v1"

// Compute returns the hex SHA-256 content digest for one validation run.
// Volatile fields (timestamps, span and trace ids) are stripped; span
// order is normalised by (start time, canonical content) so neither
// permuting the input nor re-rolling ids changes the digest. Parent links
// are recorded by parent name, since ids are random per execution.
func Compute(spans []trace.Span, set *expect.Set) (string, error) {
	canonical, err := canonicalTrace(spans)
	if err != nil {
		return "", fmt.Errorf("canonicalizing trace: %w", err)
	}
	traceBytes, err := MarshalCanonical(canonical)
	if err != nil {
		return "", fmt.Errorf("canonicalizing trace: %w", err)
	}
	expectBytes, err := MarshalCanonical(canonicalExpectations(set))
	if err != nil {
		return "", fmt.Errorf("canonicalizing expectations: %w", err)
	}

	// Null separators prevent boundary ambiguity between sections.
	h := sha256.New()
	h.Write([]byte(Domain))
	h.Write([]byte{0x00})
	h.Write(traceBytes)
	h.Write([]byte{0x00})
	h.Write(expectBytes)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// canonicalTrace normalises span order by (start time, canonical content).
// Ties on start time cannot break on span ids: ids are volatile and the
// same logical trace must hash identically across executions. Spans that
// tie on both start and content are interchangeable.
func canonicalTrace(spans []trace.Span) ([]any, error) {
	repo := trace.NewRepository(spans)

	type sortedEntry struct {
		start int64
		key   []byte
		entry map[string]any
	}

	all := repo.Spans()
	order := make([]sortedEntry, 0, len(all))
	for i := range all {
		s := &all[i]
		entry := map[string]any{
			"name":   s.Name,
			"kind":   string(s.Kind),
			"status": string(s.Status),
		}
		if p := repo.Parent(s); p != nil {
			entry["parent"] = p.Name
		}
		if len(s.Attributes) > 0 {
			entry["attributes"] = toAnyMap(s.Attributes)
		}
		if len(s.Resource) > 0 {
			entry["resource"] = toAnyMap(s.Resource)
		}
		if len(s.Events) > 0 {
			events := make([]any, 0, len(s.Events))
			for _, ev := range s.Events {
				evEntry := map[string]any{"name": ev.Name}
				if len(ev.Attributes) > 0 {
					evEntry["attributes"] = toAnyMap(ev.Attributes)
				}
				events = append(events, evEntry)
			}
			entry["events"] = events
		}
		key, err := MarshalCanonical(entry)
		if err != nil {
			return nil, fmt.Errorf("span %q: %w", s.Name, err)
		}
		order = append(order, sortedEntry{start: startOrZero(s), key: key, entry: entry})
	}

	sort.Slice(order, func(i, j int) bool {
		if order[i].start != order[j].start {
			return order[i].start < order[j].start
		}
		return bytes.Compare(order[i].key, order[j].key) < 0
	})

	out := make([]any, 0, len(order))
	for _, e := range order {
		out = append(out, e.entry)
	}
	return out, nil
}

func startOrZero(s *trace.Span) int64 {
	if s.Start == nil {
		return 0
	}
	return *s.Start
}

func toAnyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// canonicalExpectations flattens the expectation set into plain canonical
// JSON values, keeping authored order for ordered lists.
func canonicalExpectations(set *expect.Set) map[string]any {
	out := map[string]any{}
	if set == nil {
		return out
	}

	if len(set.Spans) > 0 {
		spans := make([]any, 0, len(set.Spans))
		for _, se := range set.Spans {
			entry := map[string]any{"name": se.Name}
			if se.Parent != "" {
				entry["parent"] = se.Parent
			}
			if se.Kind != trace.KindUnspecified {
				entry["kind"] = string(se.Kind)
			}
			if len(se.AttrsAll) > 0 {
				entry["attrs_all"] = stringMapToAny(se.AttrsAll)
			}
			if len(se.AttrsAny) > 0 {
				entry["attrs_any"] = stringsToAny(se.AttrsAny)
			}
			if len(se.EventsAny) > 0 {
				entry["events_any"] = stringsToAny(se.EventsAny)
			}
			if se.DurationMinMs != nil {
				entry["duration_min_ms"] = *se.DurationMinMs
			}
			if se.DurationMaxMs != nil {
				entry["duration_max_ms"] = *se.DurationMaxMs
			}
			spans = append(spans, entry)
		}
		out["spans"] = spans
	}

	if set.Graph != nil {
		out["graph"] = map[string]any{
			"must_include":   edgesToAny(set.Graph.MustInclude),
			"must_not_cross": edgesToAny(set.Graph.MustNotCross),
			"acyclic":        set.Graph.Acyclic,
		}
	}

	if set.Counts != nil {
		counts := map[string]any{}
		if set.Counts.SpansTotal != nil {
			counts["spans_total"] = boundToAny(*set.Counts.SpansTotal)
		}
		if set.Counts.EventsTotal != nil {
			counts["events_total"] = boundToAny(*set.Counts.EventsTotal)
		}
		if set.Counts.ErrorsTotal != nil {
			counts["errors_total"] = boundToAny(*set.Counts.ErrorsTotal)
		}
		if len(set.Counts.ByName) > 0 {
			byName := map[string]any{}
			for pattern, bound := range set.Counts.ByName {
				byName[pattern] = boundToAny(bound)
			}
			counts["by_name"] = byName
		}
		out["counts"] = counts
	}

	if len(set.Windows) > 0 {
		windows := make([]any, 0, len(set.Windows))
		for _, w := range set.Windows {
			windows = append(windows, map[string]any{
				"outer":    w.Outer,
				"contains": stringsToAny(w.Contains),
			})
		}
		out["windows"] = windows
	}

	if set.Order != nil {
		out["order"] = map[string]any{
			"must_precede": pairsToAny(set.Order.MustPrecede),
			"must_follow":  pairsToAny(set.Order.MustFollow),
		}
	}

	if set.Status != nil {
		status := map[string]any{}
		if set.Status.All != nil {
			status["all"] = string(*set.Status.All)
		}
		if len(set.Status.ByName) > 0 {
			byName := map[string]any{}
			for pattern, st := range set.Status.ByName {
				byName[pattern] = string(st)
			}
			status["by_name"] = byName
		}
		out["status"] = status
	}

	if set.Hermeticity != nil {
		out["hermeticity"] = map[string]any{
			"no_external_services": set.Hermeticity.NoExternalServices,
			"resource_attrs":       stringMapToAny(set.Hermeticity.ResourceAttrsMustMatch),
			"forbid_keys":          stringsToAny(set.Hermeticity.ForbidSpanAttrKeys),
		}
	}

	return out
}

func stringsToAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func stringMapToAny(m map[string]string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func edgesToAny(edges []expect.Edge) []any {
	out := make([]any, 0, len(edges))
	for _, e := range edges {
		out = append(out, []any{e.Parent, e.Child})
	}
	return out
}

func pairsToAny(pairs []expect.NamePair) []any {
	out := make([]any, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, []any{p.First, p.Second})
	}
	return out
}

func boundToAny(b expect.Bound) map[string]any {
	out := map[string]any{}
	if b.Gte != nil {
		out["gte"] = *b.Gte
	}
	if b.Lte != nil {
		out["lte"] = *b.Lte
	}
	if b.Eq != nil {
		out["eq"] = *b.Eq
	}
	return out
}
