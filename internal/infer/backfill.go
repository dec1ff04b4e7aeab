package infer

import (
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/yourorg/apiscout/pkg/types"
)

// Group is the set of records assigned to one final route, in capture
// order.
type Group struct {
	Method        string
	Template      string
	Tokens        []Token
	Records       []types.TrafficRecord
	Stats         types.RouteStats
	AmbiguousWith []string
}

func (g *Group) key() string { return g.Method + " " + g.Template }

type candidate struct {
	method       string
	template     string
	tokens       []Token
	placeholders int
	count        int
	rank         int
}

// Resolve assigns every record to exactly one final template. Candidate
// templates come from grouping records by (method, candidate path); each
// record is then matched against every candidate of its method. When more
// than one matches, the template with the fewest placeholders wins, then
// the one with more records, then the lexicographically smaller. A record
// matching nothing becomes a route on its own literal path.
func Resolve(records []types.TrafficRecord, candidatePaths []string, log logrus.FieldLogger) []*Group {
	byMethod := rankCandidates(records, candidatePaths)

	groups := make(map[string]*Group)
	var order []*Group
	warned := make(map[string]bool)
	for _, rec := range records {
		var matched []*candidate
		for _, c := range byMethod[rec.Method] {
			if matchTokens(rec.Segments, c.tokens) {
				matched = append(matched, c)
			}
		}

		template := rec.Path
		var tokens []Token
		var others []string
		if len(matched) > 0 {
			best := pickCandidate(matched)
			template, tokens = best.template, best.tokens
			for _, c := range matched {
				if c != best {
					others = append(others, c.template)
				}
			}
		} else {
			tokens = literalTokens(rec.Segments)
		}

		k := rec.Method + " " + template
		g, ok := groups[k]
		if !ok {
			g = &Group{Method: rec.Method, Template: template, Tokens: tokens}
			groups[k] = g
			order = append(order, g)
		}
		g.Records = append(g.Records, rec)

		if len(others) > 0 {
			g.AmbiguousWith = mergeSorted(g.AmbiguousWith, others)
			wk := k + " " + rec.Path
			if !warned[wk] {
				warned[wk] = true
				log.WithFields(logrus.Fields{
					"method":     rec.Method,
					"path":       rec.Path,
					"chosen":     template,
					"candidates": others,
				}).Warn("record matches several templates")
			}
		}
	}

	for _, g := range order {
		g.Stats = computeStats(g.Records)
	}
	sortGroups(order)
	return order
}

func rankCandidates(records []types.TrafficRecord, candidatePaths []string) map[string][]*candidate {
	index := make(map[string]*candidate)
	var all []*candidate
	for i, rec := range records {
		k := rec.Method + " " + candidatePaths[i]
		c, ok := index[k]
		if !ok {
			tokens := ParseTemplate(candidatePaths[i])
			c = &candidate{
				method:       rec.Method,
				template:     candidatePaths[i],
				tokens:       tokens,
				placeholders: Placeholders(tokens),
			}
			index[k] = c
			all = append(all, c)
		}
		c.count++
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].method+" "+all[i].template < all[j].method+" "+all[j].template
	})
	sort.SliceStable(all, func(i, j int) bool { return all[i].count > all[j].count })

	byMethod := make(map[string][]*candidate)
	for i, c := range all {
		c.rank = i
		byMethod[c.method] = append(byMethod[c.method], c)
	}
	return byMethod
}

func pickCandidate(matched []*candidate) *candidate {
	best := matched[0]
	for _, c := range matched[1:] {
		if c.placeholders < best.placeholders ||
			(c.placeholders == best.placeholders && c.rank < best.rank) {
			best = c
		}
	}
	return best
}

func literalTokens(segments []string) []Token {
	tokens := make([]Token, len(segments))
	for i, seg := range segments {
		tokens[i] = Token{Literal: seg}
	}
	return tokens
}

func mergeSorted(have, add []string) []string {
	seen := make(map[string]bool, len(have)+len(add))
	out := make([]string, 0, len(have)+len(add))
	for _, s := range append(append([]string{}, have...), add...) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

// computeStats derives the final counters of one group. PathVariants is
// only reported when neither query nor body varies.
func computeStats(records []types.TrafficRecord) types.RouteStats {
	queries, bodies, responses, paths := shapeSet{}, shapeSet{}, shapeSet{}, shapeSet{}
	for _, rec := range records {
		if sig := querySignature(rec.Query); sig != "" && sig != "{}" {
			queries.add(sig)
		}
		if sig, ok := bodySignature(rec.RequestBody); ok {
			bodies.add(sig)
		}
		responses.add(rec.ResponseBody.Canonical())
		paths.add(rec.Path)
	}
	stats := types.RouteStats{
		Count:           len(records),
		ResponsesUnique: len(responses),
		QueryVariants:   len(queries),
		BodyVariants:    len(bodies),
	}
	if stats.QueryVariants == 0 && stats.BodyVariants == 0 {
		stats.PathVariants = len(paths)
	}
	return stats
}

// sortGroups orders by "METHOD template", then stably by count descending.
func sortGroups(groups []*Group) {
	sort.SliceStable(groups, func(i, j int) bool { return groups[i].key() < groups[j].key() })
	sort.SliceStable(groups, func(i, j int) bool { return groups[i].Stats.Count > groups[j].Stats.Count })
}
