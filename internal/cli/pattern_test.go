package cli

import (
	"reflect"
	"testing"
)

var names = []string{"web-1", "web-2", "db-primary", "db-replica", "cache"}

func TestExpandPatternExact(t *testing.T) {
	got, err := ExpandPattern("cache", names)
	if err != nil {
		t.Fatalf("ExpandPattern failed: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"cache"}) {
		t.Errorf("got %v", got)
	}

	if _, err := ExpandPattern("missing", names); err == nil {
		t.Error("unknown exact name should error")
	}
}

func TestExpandPatternGlob(t *testing.T) {
	got, err := ExpandPattern("web-*", names)
	if err != nil {
		t.Fatalf("ExpandPattern failed: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"web-1", "web-2"}) {
		t.Errorf("got %v", got)
	}

	got, err = ExpandPattern("db-?rimary", names)
	if err != nil {
		t.Fatalf("ExpandPattern failed: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"db-primary"}) {
		t.Errorf("got %v", got)
	}

	if _, err := ExpandPattern("nothing-*", names); err == nil {
		t.Error("glob with no matches should error")
	}
	if _, err := ExpandPattern("[invalid", names); err == nil {
		t.Error("malformed pattern should error")
	}
}

func TestExpandPatternsDeduplicates(t *testing.T) {
	got, err := ExpandPatterns([]string{"web-*", "web-1", "cache"}, names)
	if err != nil {
		t.Fatalf("ExpandPatterns failed: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"web-1", "web-2", "cache"}) {
		t.Errorf("got %v", got)
	}
}

func TestSortNames(t *testing.T) {
	original := []string{"b", "a", "c"}
	sorted := SortNames(original)
	if !reflect.DeepEqual(sorted, []string{"a", "b", "c"}) {
		t.Errorf("got %v", sorted)
	}
	if !reflect.DeepEqual(original, []string{"b", "a", "c"}) {
		t.Error("SortNames mutated its input")
	}
}
