package containers

import "testing"

func TestSceneResourceSetLookup(t *testing.T) {
	set := NewSceneResourceSet[string, int]()

	tests := []struct {
		id    string
		value int
		want  uint32
	}{
		{"a", 10, 0},
		{"b", 20, 1},
		{"c", 30, 2},
	}
	for _, tt := range tests {
		index, _, updated := set.AddOrUpdateResource(tt.id, tt.value)
		if updated {
			t.Fatalf("%s: unexpected update on first insert", tt.id)
		}
		if index != tt.want {
			t.Fatalf("%s: got index %d, want %d", tt.id, index, tt.want)
		}
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			if got := set.LookupIndex(tt.id); got != tt.want {
				t.Fatalf("lookup got %d, want %d", got, tt.want)
			}
			value, index := set.LookupResource(tt.id)
			if value != tt.value || index != tt.want {
				t.Fatalf("lookup resource got (%d,%d), want (%d,%d)", value, index, tt.value, tt.want)
			}
		})
	}
	if got := set.LookupIndex("missing"); got != NotFound {
		t.Fatalf("unknown identity returned %d", got)
	}
}

func TestSceneResourceSetUpdateKeepsIndex(t *testing.T) {
	set := NewSceneResourceSet[int, string]()
	set.AddOrUpdateResource(7, "first")
	set.AddOrUpdateResource(8, "other")

	index, previous, updated := set.AddOrUpdateResource(7, "second")
	if !updated || previous != "first" || index != 0 {
		t.Fatalf("got (%d,%q,%v)", index, previous, updated)
	}
	if set.Size() != 2 {
		t.Fatalf("update grew the set to %d", set.Size())
	}
	if set.Resource(0) != "second" {
		t.Fatalf("resource not replaced: %q", set.Resource(0))
	}
}

func TestSceneResourceSetTakeResources(t *testing.T) {
	set := NewSceneResourceSet[int, int]()
	set.AddResource(1, 100)
	set.AddResource(2, 200)

	taken := set.TakeResources()
	if len(taken) != 2 || taken[0] != 100 || taken[1] != 200 {
		t.Fatalf("unexpected taken resources %v", taken)
	}
	if set.Size() != 0 || set.LookupIndex(1) != NotFound {
		t.Fatal("set not drained")
	}

	// Indices restart after a drain.
	if index := set.AddResource(2, 300); index != 0 {
		t.Fatalf("expected index 0 after drain, got %d", index)
	}
}
