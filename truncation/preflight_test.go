package truncation

import "testing"

func TestEstimatePreflight_SingleFileLowComplexity(t *testing.T) {
	p := EstimatePreflight([]string{"a.go"}, "fix a bug in a.go", 50)
	if p.Complexity != ComplexityLow {
		t.Fatalf("expected low complexity, got %s", p.Complexity)
	}
	if p.ShouldSplit {
		t.Fatal("single low-complexity file should not require split")
	}
}

func TestEstimatePreflight_MultipleFilesForceSplit(t *testing.T) {
	p := EstimatePreflight([]string{"a.go", "b.go"}, "", 10)
	if !p.ShouldSplit {
		t.Fatal("expected multi-file target set to force split")
	}
}

func TestEstimatePreflight_DescriptionPathsAreDeduped(t *testing.T) {
	p := EstimatePreflight([]string{"a.go"}, "also touch a.go and b.go", 10)
	if len(p.TargetFiles) != 2 {
		t.Fatalf("expected a.go deduped against description mention, got %v", p.TargetFiles)
	}
}

func TestEstimatePreflight_HighComplexityFromLineCount(t *testing.T) {
	p := EstimatePreflight([]string{"a.go"}, "", 5000)
	if p.Complexity != ComplexityHigh {
		t.Fatalf("expected high complexity from line count, got %s", p.Complexity)
	}
	if !p.ShouldSplit {
		t.Fatal("high complexity should force split even for one file")
	}
}
