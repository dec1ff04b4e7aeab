package infer

import (
	"strconv"

	"github.com/yourorg/apiscout/pkg/types"
)

// Synthesize builds the published description of one group.
func Synthesize(g *Group, cfg *Config) types.RouteSummary {
	first := g.Records[0]
	summary := types.RouteSummary{
		Method:        g.Method,
		URL:           exampleURL(first, g.Template),
		Template:      g.Template,
		Params:        paramDomains(g, cfg),
		Body:          representativeBody(g.Records),
		Response:      describeResponse(representativeResponse(g.Records), cfg.ResponseSampleSize),
		Stats:         g.Stats,
		AmbiguousWith: g.AmbiguousWith,
	}
	if q := representativeQuery(g.Records); q != nil {
		summary.Query = q
	}
	return summary
}

func exampleURL(rec types.TrafficRecord, template string) string {
	if rec.Scheme == "" || rec.Host == "" {
		return template
	}
	return rec.Scheme + "://" + rec.Host + template
}

// paramDomains characterizes every placeholder of the template from the
// segments of the records assigned to it.
func paramDomains(g *Group, cfg *Config) []types.ParameterDomain {
	var params []types.ParameterDomain
	seen := make(map[SegmentClass]int)
	for pos, tok := range g.Tokens {
		if tok.Class == Literal {
			continue
		}
		seen[tok.Class]++
		name := tok.Class.String()
		if n := seen[tok.Class]; n > 1 {
			name += strconv.Itoa(n)
		}

		distinct := shapeSet{}
		var ints []int64
		for _, rec := range g.Records {
			if pos >= len(rec.Segments) {
				continue
			}
			seg := rec.Segments[pos]
			distinct.add(seg)
			if tok.Class == Int {
				if n, err := strconv.ParseInt(seg, 10, 64); err == nil {
					ints = append(ints, n)
				}
			}
		}

		d := types.ParameterDomain{
			Name:     name,
			Position: pos,
			Type:     tok.Class.String(),
			Kind:     types.DomainUnconstrained,
			Distinct: len(distinct),
		}
		if tok.Class == Int && len(ints) > 0 {
			p := DetectPattern(ints, cfg.MultiplesThreshold, cfg.ArithmeticThreshold)
			d.Kind, d.Step = p.Kind, p.Step
			d.Min, d.Max = &p.Min, &p.Max
		}
		params = append(params, d)
	}
	return params
}

// representativeQuery is the longest non-empty query by encoded length;
// the first observed wins ties. Longer is a proxy for more complete, not a
// guarantee.
func representativeQuery(records []types.TrafficRecord) map[string][]string {
	var best map[string][]string
	bestLen := 0
	for _, rec := range records {
		if sig := querySignature(rec.Query); len(sig) > bestLen {
			best, bestLen = rec.Query, len(sig)
		}
	}
	if best == nil {
		return nil
	}
	out := make(map[string][]string, len(best))
	for k, vs := range best {
		out[k] = append([]string(nil), vs...)
	}
	return out
}

func representativeBody(records []types.TrafficRecord) types.Value {
	best := types.Null()
	bestLen := 0
	for _, rec := range records {
		if sig, ok := bodySignature(rec.RequestBody); ok && len(sig) > bestLen {
			best, bestLen = rec.RequestBody, len(sig)
		}
	}
	return best
}

func representativeResponse(records []types.TrafficRecord) types.Value {
	best := records[0].ResponseBody
	bestLen := len(best.Canonical())
	for _, rec := range records[1:] {
		if n := len(rec.ResponseBody.Canonical()); n > bestLen {
			best, bestLen = rec.ResponseBody, n
		}
	}
	return best
}

// describeResponse renders an object as its field types and an array as
// its first sampleSize elements.
func describeResponse(v types.Value, sampleSize int) types.ResponseShape {
	switch v.Kind() {
	case types.KindObject:
		fields := make([]types.FieldType, 0, v.Len())
		for _, m := range v.Members() {
			fields = append(fields, types.FieldType{Name: m.Key, Type: m.Value.TypeName()})
		}
		return types.ResponseShape{Kind: "object", Fields: fields}
	case types.KindArray:
		items := v.Items()
		if sampleSize >= 0 && len(items) > sampleSize {
			items = items[:sampleSize]
		}
		return types.ResponseShape{Kind: "array", Sample: append([]types.Value{}, items...)}
	}
	scalar := v
	return types.ResponseShape{Kind: v.TypeName(), Scalar: &scalar}
}
