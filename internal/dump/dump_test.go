package dump

import "testing"

func TestWriteDOTIsDeterministicAndOrdered(t *testing.T) {
	g := New()
	g.AddNode("b", "B pipe")
	g.AddNode("a", "A pipe")
	g.AddEdge("b", "a", "block.mpegts.")
	g.AddEdge("a", "a", "")

	out1 := g.String()
	out2 := g.String()
	if out1 != out2 {
		t.Fatal("WriteDOT is not deterministic across calls")
	}

	aIdx := indexOf(out1, `"a" [label="A pipe"]`)
	bIdx := indexOf(out1, `"b" [label="B pipe"]`)
	if aIdx < 0 || bIdx < 0 {
		t.Fatalf("missing expected node lines in:\n%s", out1)
	}
	if bIdx < aIdx {
		t.Fatalf("nodes not emitted in sorted order:\n%s", out1)
	}
	if indexOf(out1, `"b" -> "a" [label="block.mpegts."]`) < 0 {
		t.Fatalf("missing labeled edge in:\n%s", out1)
	}
	if indexOf(out1, `"a" -> "a";`) < 0 {
		t.Fatalf("missing unlabeled edge in:\n%s", out1)
	}
}

func TestAddNodeReplacesExistingLabel(t *testing.T) {
	g := New()
	g.AddNode("x", "old")
	g.AddNode("x", "new")
	out := g.String()
	if indexOf(out, `label="old"`) >= 0 {
		t.Fatalf("stale label survived:\n%s", out)
	}
	if indexOf(out, `label="new"`) < 0 {
		t.Fatalf("missing updated label:\n%s", out)
	}
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}
