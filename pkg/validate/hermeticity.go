// Hermeticity validation: no external services, required resource
// attributes, forbidden span attribute keys
package validate

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/andrewh/attest/pkg/expect"
	"github.com/andrewh/attest/pkg/trace"
)

// externalIndicators are attribute keys whose presence points at outbound
// communication with another service.
var externalIndicators = [...]string{
	"net.peer.name",
	"net.peer.ip",
	"server.address",
	"http.url",
	"db.connection_string",
	"rpc.service",
}

type hermeticityValidator struct{}

func (hermeticityValidator) Family() string { return "hermeticity" }

func (hermeticityValidator) Enabled(set *expect.Set) bool { return set.Hermeticity != nil }

func (hermeticityValidator) Check(repo *trace.Repository, set *expect.Set) Result {
	h := set.Hermeticity
	spans := repo.Spans()
	var errs []string

	if h.NoExternalServices {
		for i := range spans {
			s := &spans[i]
			for _, key := range externalIndicators {
				v, ok := s.Attributes[key]
				if !ok {
					continue
				}
				value := trace.ValueString(v)
				if !isInternalAddress(value) {
					errs = append(errs, fmt.Sprintf("span %q (id %s) has external service indicator %s=%q",
						s.Name, s.SpanID, key, value))
				}
			}
		}
	}

	// Each required resource attribute may be satisfied by any span's
	// resource; process-level attributes are shared but tolerant of
	// multi-resource traces.
	for _, key := range slices.Sorted(maps.Keys(h.ResourceAttrsMustMatch)) {
		want := h.ResourceAttrsMustMatch[key]
		if msg := checkResourceAttr(spans, key, want); msg != "" {
			errs = append(errs, msg)
		}
	}

	for _, key := range h.ForbidSpanAttrKeys {
		for i := range spans {
			if _, ok := spans[i].Attributes[key]; ok {
				errs = append(errs, fmt.Sprintf("span %q (id %s) carries forbidden attribute %q",
					spans[i].Name, spans[i].SpanID, key))
			}
		}
	}

	if len(errs) > 0 {
		return fail("hermeticity", errs)
	}
	return pass("hermeticity", "no hermeticity violations")
}

func checkResourceAttr(spans []trace.Span, key, want string) string {
	found := false
	for i := range spans {
		v, ok := spans[i].Resource[key]
		if !ok {
			continue
		}
		found = true
		if trace.ValueString(v) == want {
			return ""
		}
	}
	if !found {
		return fmt.Sprintf("resource attribute %q not present on any span", key)
	}
	return fmt.Sprintf("resource attribute %q never has expected value %q", key, want)
}

// isInternalAddress reports whether an address points inside the sandbox.
func isInternalAddress(addr string) bool {
	lower := strings.ToLower(addr)
	return strings.Contains(lower, "localhost") ||
		strings.Contains(lower, "127.0.0.1") ||
		strings.Contains(lower, "0.0.0.0") ||
		strings.Contains(lower, "::1") ||
		strings.HasPrefix(lower, "internal") ||
		strings.HasPrefix(lower, "local")
}
