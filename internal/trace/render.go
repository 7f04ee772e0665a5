package trace

import (
	"encoding/json"
	"fmt"
	"strings"

	"manglint/internal/syntax"
)

// RenderText draws the proofs as an ASCII tree, one block per derived
// instantiation, followed by the required EDB facts.
func (r *Result) RenderText() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "goal: %s\n", r.Goal.String())
	if len(r.Goals) == 0 {
		sb.WriteString("no derivation found\n")
	}
	for i, g := range r.Goals {
		fmt.Fprintf(&sb, "\nresult %d: %s\n", i+1, g.String())
		if i < len(r.Trees) && r.Trees[i] != nil {
			renderNode(&sb, r.Trees[i], "", true, true)
		}
	}
	if len(r.RequiredFacts) > 0 {
		sb.WriteString("\nrequired facts:\n")
		for _, f := range r.RequiredFacts {
			fmt.Fprintf(&sb, "  %s.\n", f.String())
		}
	}
	if r.LimitReached {
		fmt.Fprintf(&sb, "\nresolution limit reached after %d steps; search was cut short\n", r.Steps)
	}
	return sb.String()
}

func renderNode(sb *strings.Builder, n *DerivationNode, prefix string, last, root bool) {
	label := nodeLabel(n)
	if root {
		fmt.Fprintf(sb, "%s\n", label)
	} else {
		branch := "├─ "
		if last {
			branch = "└─ "
		}
		fmt.Fprintf(sb, "%s%s%s\n", prefix, branch, label)
		if last {
			prefix += "   "
		} else {
			prefix += "│  "
		}
	}
	for i, c := range n.Children {
		renderNode(sb, c, prefix, i == len(n.Children)-1, false)
	}
}

func nodeLabel(n *DerivationNode) string {
	var sb strings.Builder
	if n.Negated {
		sb.WriteByte('!')
	}
	if n.Pred.Name != "" {
		sb.WriteString(n.Pred.String())
	} else if n.Note != "" {
		sb.WriteString(n.Note)
	}
	fmt.Fprintf(&sb, " [%s]", n.Type)
	if n.Pred.Name != "" && n.Note != "" {
		fmt.Fprintf(&sb, " (%s)", n.Note)
	}
	return sb.String()
}

// jsonNode is the wire shape of a proof node; predicates render as
// source text rather than nested term structs.
type jsonNode struct {
	Predicate string      `json:"predicate,omitempty"`
	FactType  string      `json:"fact_type"`
	Negated   bool        `json:"negated,omitempty"`
	Note      string      `json:"note,omitempty"`
	Children  []*jsonNode `json:"children,omitempty"`
}

type jsonResult struct {
	Goal          string      `json:"goal"`
	Results       []string    `json:"results"`
	Proofs        []*jsonNode `json:"proofs,omitempty"`
	RequiredFacts []string    `json:"required_facts,omitempty"`
	LimitReached  bool        `json:"limit_reached,omitempty"`
	Steps         int         `json:"steps"`
}

// RenderJSON emits the result as an indented JSON document.
func (r *Result) RenderJSON() ([]byte, error) {
	out := jsonResult{
		Goal:          r.Goal.String(),
		Results:       predStrings(r.Goals),
		RequiredFacts: predStrings(r.RequiredFacts),
		LimitReached:  r.LimitReached,
		Steps:         r.Steps,
	}
	for _, tree := range r.Trees {
		out.Proofs = append(out.Proofs, toJSONNode(tree))
	}
	return json.MarshalIndent(out, "", "  ")
}

func toJSONNode(n *DerivationNode) *jsonNode {
	if n == nil {
		return nil
	}
	j := &jsonNode{
		FactType: n.Type.String(),
		Negated:  n.Negated,
		Note:     n.Note,
	}
	if n.Pred.Name != "" {
		j.Predicate = n.Pred.String()
	}
	for _, c := range n.Children {
		j.Children = append(j.Children, toJSONNode(c))
	}
	return j
}

func predStrings(preds []syntax.Predicate) []string {
	if len(preds) == 0 {
		return nil
	}
	out := make([]string, len(preds))
	for i, p := range preds {
		out[i] = p.String()
	}
	return out
}
