package infer

import (
	"net/url"

	"github.com/yourorg/apiscout/pkg/types"
)

// RouteKey is the literal grouping unit before generalization.
type RouteKey struct {
	Method string
	Path   string
}

func (k RouteKey) String() string {
	return k.Method + " " + k.Path
}

// VariantProfile counts the distinct shapes seen under one RouteKey.
type VariantProfile struct {
	Key              RouteKey
	QueryVariants    int
	BodyVariants     int
	ResponseVariants int
	Count            int
}

// Generalizes reports whether the path of this key may be turned into a
// template. Keys that vary through query or body keep their literal path.
func (p VariantProfile) Generalizes() bool {
	return p.QueryVariants <= 1 && p.BodyVariants <= 1
}

// querySignature is the key-ordered encoding of a query; empty for none.
func querySignature(q map[string][]string) string {
	if len(q) == 0 {
		return ""
	}
	return url.Values(q).Encode()
}

// bodySignature is the canonical body; ok is false when there is no body.
func bodySignature(v types.Value) (string, bool) {
	if v.IsNull() {
		return "", false
	}
	return v.Canonical(), true
}

type shapeSet map[string]struct{}

func (s shapeSet) add(sig string) { s[sig] = struct{}{} }

type profileBuilder struct {
	profile   VariantProfile
	queries   shapeSet
	bodies    shapeSet
	responses shapeSet
}

// BuildProfiles aggregates variant counts per RouteKey, in first-seen
// order.
func BuildProfiles(records []types.TrafficRecord) []VariantProfile {
	var order []RouteKey
	builders := make(map[RouteKey]*profileBuilder)
	for _, rec := range records {
		key := RouteKey{Method: rec.Method, Path: rec.Path}
		b, ok := builders[key]
		if !ok {
			b = &profileBuilder{
				profile:   VariantProfile{Key: key},
				queries:   shapeSet{},
				bodies:    shapeSet{},
				responses: shapeSet{},
			}
			builders[key] = b
			order = append(order, key)
		}
		b.profile.Count++
		if sig := querySignature(rec.Query); sig != "" {
			b.queries.add(sig)
		}
		if sig, ok := bodySignature(rec.RequestBody); ok {
			b.bodies.add(sig)
		}
		b.responses.add(rec.ResponseBody.Canonical())
	}

	profiles := make([]VariantProfile, 0, len(order))
	for _, key := range order {
		b := builders[key]
		b.profile.QueryVariants = len(b.queries)
		b.profile.BodyVariants = len(b.bodies)
		b.profile.ResponseVariants = len(b.responses)
		profiles = append(profiles, b.profile)
	}
	return profiles
}

// CandidatePaths returns, for each record, the path its route is grouped
// under: the generalized template when its key allows it, the literal path
// otherwise.
func CandidatePaths(records []types.TrafficRecord, profiles []VariantProfile) []string {
	allowed := make(map[RouteKey]bool, len(profiles))
	for _, p := range profiles {
		allowed[p.Key] = p.Generalizes()
	}
	out := make([]string, len(records))
	for i, rec := range records {
		if allowed[RouteKey{Method: rec.Method, Path: rec.Path}] {
			out[i] = Generalize(rec.Segments)
		} else {
			out[i] = rec.Path
		}
	}
	return out
}
