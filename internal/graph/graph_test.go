package graph

import (
	"strings"
	"testing"

	"manglint/internal/model"
)

func buildFrom(t *testing.T, src string) *Graph {
	t.Helper()
	p := model.NewProgram()
	p.LoadSource("g.mg", src)
	p.Finalize()
	return Build(p)
}

func TestBuildEdgeKinds(t *testing.T) {
	g := buildFrom(t, `
safe(X) :- candidate(X), !banned(X).
candidate(/a).
banned(/b).
`)
	out := g.Out("safe")
	if len(out) != 2 {
		t.Fatalf("safe out-edges = %d, want 2", len(out))
	}
	kinds := map[string]EdgeKind{}
	for _, e := range out {
		kinds[e.Target] = e.Kind
	}
	if kinds["candidate"] != EdgePositive {
		t.Errorf("edge to candidate = %v, want positive", kinds["candidate"])
	}
	if kinds["banned"] != EdgeNegative {
		t.Errorf("edge to banned = %v, want negative", kinds["banned"])
	}
}

func TestBuildSkipsComparisonsAndBuiltins(t *testing.T) {
	g := buildFrom(t, `
old(X) :- person(X, Age), Age > 65, fn:ignore(X).
person(/a, 70).
`)
	out := g.Out("old")
	if len(out) != 1 || out[0].Target != "person" {
		t.Fatalf("old out-edges = %v, want single edge to person", out)
	}
}

func TestAggregationTag(t *testing.T) {
	g := buildFrom(t, `count_items(N) :- item(X) |> do fn:group_by(), let N = fn:count().
item(/a).`)
	out := g.Out("count_items")
	if len(out) != 1 || !out[0].Aggregation {
		t.Fatalf("aggregation edge not tagged: %v", out)
	}
}

func TestPositiveClosure(t *testing.T) {
	g := buildFrom(t, `
a(X) :- b(X).
b(X) :- c(X).
c(/1).
d(X) :- a(X), !c(X).
`)
	reach := g.PositiveClosure("a")
	if !reach["b"] || !reach["c"] {
		t.Fatalf("closure of a = %v, want b and c", reach)
	}
	if reach["d"] {
		t.Error("closure walked an incoming edge")
	}
	// d reaches c only through the positive chain via a, not the negation.
	dReach := g.PositiveClosure("d")
	if !dReach["a"] || !dReach["c"] {
		t.Fatalf("closure of d = %v, want a and c", dReach)
	}
}

func TestWriteDOT(t *testing.T) {
	g := buildFrom(t, `
good(X) :- base(X), !bad(X).
base(/a).
bad(/b).
`)
	dot := g.WriteDOT(map[string]int{"base": 0, "bad": 0, "good": 1})
	for _, want := range []string{"digraph predicates", "cluster_stratum_0", "cluster_stratum_1", "style=dashed"} {
		if !strings.Contains(dot, want) {
			t.Errorf("DOT output missing %q:\n%s", want, dot)
		}
	}
}
