// YAML document loading for expectation sets
// Parses the human-authored expectations file into typed entities
package expect

import (
	"fmt"
	"os"

	"github.com/andrewh/attest/pkg/trace"
	"gopkg.in/yaml.v3"
)

// rawDocument mirrors the YAML expectations file before normalisation.
type rawDocument struct {
	Expect rawExpect `yaml:"expect"`
}

type rawExpect struct {
	Spans       []rawSpanExpectation `yaml:"spans,omitempty"`
	Graph       *rawGraph            `yaml:"graph,omitempty"`
	Counts      *rawCounts           `yaml:"counts,omitempty"`
	Windows     []rawWindow          `yaml:"windows,omitempty"`
	Order       *rawOrder            `yaml:"order,omitempty"`
	Status      *rawStatus           `yaml:"status,omitempty"`
	Hermeticity *rawHermeticity      `yaml:"hermeticity,omitempty"`
}

type rawSpanExpectation struct {
	Name     string       `yaml:"name"`
	Parent   string       `yaml:"parent,omitempty"`
	Kind     string       `yaml:"kind,omitempty"`
	Attrs    rawAttrs     `yaml:"attrs,omitempty"`
	Events   rawEventsAny `yaml:"events,omitempty"`
	Duration *rawDuration `yaml:"duration_ms,omitempty"`
}

type rawAttrs struct {
	All map[string]string `yaml:"all,omitempty"`
	Any []string          `yaml:"any,omitempty"`
}

type rawEventsAny struct {
	Any []string `yaml:"any,omitempty"`
}

type rawDuration struct {
	Min *float64 `yaml:"min,omitempty"`
	Max *float64 `yaml:"max,omitempty"`
}

type rawGraph struct {
	MustInclude  [][]string `yaml:"must_include,omitempty"`
	MustNotCross [][]string `yaml:"must_not_cross,omitempty"`
	Acyclic      bool       `yaml:"acyclic,omitempty"`
}

type rawCounts struct {
	SpansTotal  *rawBound           `yaml:"spans_total,omitempty"`
	EventsTotal *rawBound           `yaml:"events_total,omitempty"`
	ErrorsTotal *rawBound           `yaml:"errors_total,omitempty"`
	ByName      map[string]rawBound `yaml:"by_name,omitempty"`
}

type rawBound struct {
	Gte *int `yaml:"gte,omitempty"`
	Lte *int `yaml:"lte,omitempty"`
	Eq  *int `yaml:"eq,omitempty"`
}

type rawWindow struct {
	Outer    string   `yaml:"outer"`
	Contains []string `yaml:"contains"`
}

type rawOrder struct {
	MustPrecede [][]string `yaml:"must_precede,omitempty"`
	MustFollow  [][]string `yaml:"must_follow,omitempty"`
}

type rawStatus struct {
	All    string            `yaml:"all,omitempty"`
	ByName map[string]string `yaml:"by_name,omitempty"`
}

type rawHermeticity struct {
	NoExternalServices bool              `yaml:"no_external_services,omitempty"`
	ResourceAttrs      map[string]string `yaml:"resource_attrs_must_match,omitempty"`
	ForbidSpanAttrs    []string          `yaml:"span_attrs_forbid_keys,omitempty"`
}

// LoadFile reads and parses a YAML expectations document, returning a
// validated Set. Malformed documents and glob patterns are rejected here,
// before any validation runs.
func LoadFile(path string) (*Set, error) {
	data, err := os.ReadFile(path) //nolint:gosec // user-supplied config path is expected
	if err != nil {
		return nil, fmt.Errorf("reading expectations: %w", err)
	}
	return Load(data)
}

// Load parses a YAML expectations document from bytes.
func Load(data []byte) (*Set, error) {
	var raw rawDocument
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing expectations: %w", err)
	}

	set := &Set{}

	for i, rs := range raw.Expect.Spans {
		se := SpanExpectation{
			Name:      rs.Name,
			Parent:    rs.Parent,
			AttrsAll:  rs.Attrs.All,
			AttrsAny:  rs.Attrs.Any,
			EventsAny: rs.Events.Any,
		}
		if rs.Kind != "" {
			kind, err := trace.ParseKind(rs.Kind)
			if err != nil {
				return nil, fmt.Errorf("span expectation %d: %w", i, err)
			}
			se.Kind = kind
		}
		if rs.Duration != nil {
			se.DurationMinMs = rs.Duration.Min
			se.DurationMaxMs = rs.Duration.Max
		}
		set.Spans = append(set.Spans, se)
	}

	if raw.Expect.Graph != nil {
		g := &GraphExpectation{Acyclic: raw.Expect.Graph.Acyclic}
		var err error
		if g.MustInclude, err = toEdges(raw.Expect.Graph.MustInclude, "graph.must_include"); err != nil {
			return nil, err
		}
		if g.MustNotCross, err = toEdges(raw.Expect.Graph.MustNotCross, "graph.must_not_cross"); err != nil {
			return nil, err
		}
		set.Graph = g
	}

	if raw.Expect.Counts != nil {
		c := &CountExpectation{
			SpansTotal:  toBound(raw.Expect.Counts.SpansTotal),
			EventsTotal: toBound(raw.Expect.Counts.EventsTotal),
			ErrorsTotal: toBound(raw.Expect.Counts.ErrorsTotal),
		}
		if len(raw.Expect.Counts.ByName) > 0 {
			c.ByName = make(map[string]Bound, len(raw.Expect.Counts.ByName))
			for pattern, rb := range raw.Expect.Counts.ByName {
				c.ByName[pattern] = Bound{Gte: rb.Gte, Lte: rb.Lte, Eq: rb.Eq}
			}
		}
		set.Counts = c
	}

	for _, rw := range raw.Expect.Windows {
		set.Windows = append(set.Windows, WindowExpectation{
			Outer:    rw.Outer,
			Contains: rw.Contains,
		})
	}

	if raw.Expect.Order != nil {
		o := &OrderExpectation{}
		var err error
		if o.MustPrecede, err = toPairs(raw.Expect.Order.MustPrecede, "order.must_precede"); err != nil {
			return nil, err
		}
		if o.MustFollow, err = toPairs(raw.Expect.Order.MustFollow, "order.must_follow"); err != nil {
			return nil, err
		}
		set.Order = o
	}

	if raw.Expect.Status != nil {
		st := &StatusExpectation{}
		if raw.Expect.Status.All != "" {
			status, err := trace.ParseStatus(raw.Expect.Status.All)
			if err != nil {
				return nil, fmt.Errorf("status.all: %w", err)
			}
			st.All = &status
		}
		if len(raw.Expect.Status.ByName) > 0 {
			st.ByName = make(map[string]trace.Status, len(raw.Expect.Status.ByName))
			for pattern, s := range raw.Expect.Status.ByName {
				status, err := trace.ParseStatus(s)
				if err != nil {
					return nil, fmt.Errorf("status.by_name %q: %w", pattern, err)
				}
				st.ByName[pattern] = status
			}
		}
		set.Status = st
	}

	if raw.Expect.Hermeticity != nil {
		set.Hermeticity = &HermeticityExpectation{
			NoExternalServices:     raw.Expect.Hermeticity.NoExternalServices,
			ResourceAttrsMustMatch: raw.Expect.Hermeticity.ResourceAttrs,
			ForbidSpanAttrKeys:     raw.Expect.Hermeticity.ForbidSpanAttrs,
		}
	}

	if err := set.Validate(); err != nil {
		return nil, err
	}
	return set, nil
}

func toEdges(pairs [][]string, field string) ([]Edge, error) {
	edges := make([]Edge, 0, len(pairs))
	for i, p := range pairs {
		if len(p) != 2 {
			return nil, fmt.Errorf("%s[%d]: expected [parent, child] pair, got %d elements", field, i, len(p))
		}
		edges = append(edges, Edge{Parent: p[0], Child: p[1]})
	}
	if len(edges) == 0 {
		return nil, nil
	}
	return edges, nil
}

func toPairs(pairs [][]string, field string) ([]NamePair, error) {
	out := make([]NamePair, 0, len(pairs))
	for i, p := range pairs {
		if len(p) != 2 {
			return nil, fmt.Errorf("%s[%d]: expected [first, second] pair, got %d elements", field, i, len(p))
		}
		out = append(out, NamePair{First: p[0], Second: p[1]})
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

func toBound(rb *rawBound) *Bound {
	if rb == nil {
		return nil
	}
	return &Bound{Gte: rb.Gte, Lte: rb.Lte, Eq: rb.Eq}
}
