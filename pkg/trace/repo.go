// Indexed read-only view over a collected span set
// Built once per validation run; names are not unique, ids are
package trace

// Repository indexes one immutable span set by id and by name.
type Repository struct {
	spans  []Span
	byID   map[string]*Span
	byName map[string][]*Span
}

// NewRepository builds the indexes in one O(n) pass. An empty span set is
// valid; validators decide what that means.
func NewRepository(spans []Span) *Repository {
	r := &Repository{
		spans:  spans,
		byID:   make(map[string]*Span, len(spans)),
		byName: make(map[string][]*Span, len(spans)),
	}
	for i := range spans {
		s := &r.spans[i]
		r.byID[s.SpanID] = s
		r.byName[s.Name] = append(r.byName[s.Name], s)
	}
	return r
}

// Len returns the number of spans in the set.
func (r *Repository) Len() int { return len(r.spans) }

// Spans returns all spans in input order.
func (r *Repository) Spans() []Span { return r.spans }

// ByID returns the span with the given id, or nil.
func (r *Repository) ByID(id string) *Span { return r.byID[id] }

// ByName returns all spans with the given name, in input order.
func (r *Repository) ByName(name string) []*Span { return r.byName[name] }

// Parent resolves a span's parent via its ParentSpanID. Returns nil for
// roots and for dangling references.
func (r *Repository) Parent(s *Span) *Span {
	if s.ParentSpanID == "" {
		return nil
	}
	return r.byID[s.ParentSpanID]
}

// Children returns all spans whose ParentSpanID points at the given span.
func (r *Repository) Children(s *Span) []*Span {
	var out []*Span
	for i := range r.spans {
		c := &r.spans[i]
		if c.ParentSpanID == s.SpanID {
			out = append(out, c)
		}
	}
	return out
}
