package render

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/yourorg/apiscout/pkg/types"
)

// Markdown renders the catalog as api-docs.md content.
func Markdown(c *types.Catalog) string {
	b := &strings.Builder{}
	fmt.Fprintf(b, "# API Docs: %s\n\n", c.Host())
	fmt.Fprintf(b, "%d routes inferred from %d records.\n", len(c.Routes), c.Records)

	for _, r := range c.Routes {
		fmt.Fprintf(b, "\n## %s %s\n", r.Method, r.Template)
		fmt.Fprintf(b, "**Example:** `%s`\n\n", r.URL)
		if len(r.Params) > 0 {
			fmt.Fprintln(b, "### Path Parameters")
			for _, p := range r.Params {
				fmt.Fprintf(b, "- %s (%s, position %d, %d distinct): %s\n", p.Name, p.Type, p.Position, p.Distinct, domainText(p))
			}
			b.WriteString("\n")
		}
		if len(r.Query) > 0 {
			fmt.Fprintln(b, "### Query")
			fmt.Fprintf(b, "`%s`\n\n", url.Values(r.Query).Encode())
		}
		if !r.Body.IsNull() {
			fmt.Fprintln(b, "### Request Body")
			fmt.Fprintf(b, "```json\n%s\n```\n\n", r.Body.String())
		}
		fmt.Fprintln(b, "### Typical Response")
		switch r.Response.Kind {
		case "object":
			for _, f := range r.Response.Fields {
				fmt.Fprintf(b, "- %s: %s\n", f.Name, f.Type)
			}
		default:
			fmt.Fprintf(b, "```json\n%s\n```\n", r.Response.Description())
		}
		fmt.Fprintf(b, "\n_%d records, %d distinct responses, %d query variants, %d body variants, %d path variants._\n",
			r.Stats.Count, r.Stats.ResponsesUnique, r.Stats.QueryVariants, r.Stats.BodyVariants, r.Stats.PathVariants)
		if len(r.AmbiguousWith) > 0 {
			fmt.Fprintf(b, "\n> Also matches: %s\n", strings.Join(r.AmbiguousWith, ", "))
		}
	}
	return b.String()
}

func domainText(p types.ParameterDomain) string {
	var rng string
	if p.Min != nil && p.Max != nil {
		rng = fmt.Sprintf(", range %d..%d", *p.Min, *p.Max)
	}
	switch p.Kind {
	case types.DomainMultipleOf:
		return fmt.Sprintf("multiple of %d%s", p.Step, rng)
	case types.DomainArithmetic:
		return fmt.Sprintf("arithmetic, step %d%s", p.Step, rng)
	case types.DomainConstant:
		return "constant" + rng
	}
	return "unconstrained" + rng
}
