package vehicle

import (
	"os"
	"path/filepath"
	"testing"
)

func writeSpecFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "oil_specs.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write spec file: %v", err)
	}
	return path
}

const sampleSpecs = `{
  "specs": [
    {"year": "2015", "make": "Honda", "model": "Civic", "engine_contains": ["1.8"], "oil_type": "synthetic", "oil_weight": "0W-20", "capacity_quarts": 3.9},
    {"year": "2015", "make": "Honda", "model": "Civic", "oil_type": "blend", "oil_weight": "5W-20", "capacity_quarts": 4.4},
    {"year": "2010", "make": "Ford", "model": "F 150", "oil_type": "conventional", "oil_weight": "5W-20", "capacity_quarts": 6}
  ]
}`

func TestSpecMatchRequiresYearMakeModel(t *testing.T) {
	table, err := LoadSpecTable(writeSpecFile(t, sampleSpecs))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if m := table.Match("", "Honda", "Civic", ""); m != nil {
		t.Fatalf("expected no match without year, got %+v", m)
	}
	if m := table.Match("2015", "", "Civic", ""); m != nil {
		t.Fatalf("expected no match without make, got %+v", m)
	}
	if m := table.Match("2015", "Honda", "", ""); m != nil {
		t.Fatalf("expected no match without model, got %+v", m)
	}
}

func TestSpecMatchEngineFragmentPicksRow(t *testing.T) {
	table, err := LoadSpecTable(writeSpecFile(t, sampleSpecs))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	m := table.Match("2015", "honda", "civic", "Displacement (L): 1.8 | Cylinders: 4")
	if m == nil {
		t.Fatal("expected a match")
	}
	if m.OilType != "synthetic" || m.OilWeight != "0W-20" || m.OilQuarts != "3.9" {
		t.Fatalf("wrong row matched: %+v", m)
	}

	// 发动机描述对不上第一行时落到无 engine_contains 的兜底行
	m = table.Match("2015", "HONDA", "Civic", "Displacement (L): 2.4")
	if m == nil {
		t.Fatal("expected fallback match")
	}
	if m.OilType != "blend" {
		t.Fatalf("expected fallback row, got %+v", m)
	}
}

func TestSpecMatchModelIgnoresSpaces(t *testing.T) {
	table, err := LoadSpecTable(writeSpecFile(t, sampleSpecs))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	m := table.Match("2010", "Ford", "F150", "")
	if m == nil {
		t.Fatal("expected match for F150 vs F 150")
	}
	if m.OilQuarts != "6" {
		t.Fatalf("capacity mismatch: %+v", m)
	}
}

func TestLoadSpecTableMissingFile(t *testing.T) {
	table, err := LoadSpecTable(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if m := table.Match("2015", "Honda", "Civic", ""); m != nil {
		t.Fatalf("empty table matched: %+v", m)
	}
}
