package harness

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/chronicle/internal/ir"
)

// renderVersion formats a version as one trace line with every nid
// replaced by its scenario name.
func (h *Harness) renderVersion(v ir.Version) string {
	var b strings.Builder
	s := v.Stamp
	fmt.Fprintf(&b, "%s t=%d a=%s m=%s p=%s", s.Status, s.Time,
		h.fixture.Name(s.Author), h.fixture.Name(s.Module), h.fixture.Name(s.Path))
	switch v.Payload.(type) {
	case nil:
	case ir.MemberPayload:
		fmt.Fprintf(&b, " %s", v.Payload.SemanticType())
	default:
		fmt.Fprintf(&b, " %s=%s", v.Payload.SemanticType(), h.renderPayload(v.Payload))
	}
	return b.String()
}

func (h *Harness) renderPayload(p ir.Payload) string {
	switch p := p.(type) {
	case ir.StringPayload:
		return strconv.Quote(p.Value)
	case ir.RelationshipPayload:
		return fmt.Sprintf("%s %s (%s)", h.fixture.Name(p.Type), h.fixture.Name(p.Destination), p.Premise)
	default:
		return h.valueOf(p)
	}
}

// valueOf is the payload value that expectations compare against.
func (h *Harness) valueOf(p ir.Payload) string {
	switch p := p.(type) {
	case nil, ir.MemberPayload:
		return ""
	case ir.StringPayload:
		return p.Value
	case ir.LongPayload:
		return strconv.FormatInt(p.Value, 10)
	case ir.ComponentNidPayload:
		return h.fixture.Name(p.Component)
	case ir.RelationshipPayload:
		return h.fixture.Name(p.Destination)
	default:
		return fmt.Sprintf("%v", p)
	}
}
