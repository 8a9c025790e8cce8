package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestYAMLFormulaSourceLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hardening.yaml")
	content := `
max_proposals: 5
categories:
  - security
  - fix
dedup:
  similarity_threshold: 0.8
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := YAMLFormulaSource{}.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MaxProposals != 5 {
		t.Errorf("MaxProposals = %d, want 5", cfg.MaxProposals)
	}
	if len(cfg.Categories) != 2 || cfg.Categories[0] != "security" {
		t.Errorf("Categories = %v", cfg.Categories)
	}
	if cfg.Dedup.SimilarityThreshold != 0.8 {
		t.Errorf("Dedup.SimilarityThreshold = %v, want 0.8", cfg.Dedup.SimilarityThreshold)
	}
}

func TestTOMLFormulaSourceLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hardening.toml")
	content := `
max_proposals = 5
categories = ["security", "fix"]

[dedup]
similarity_threshold = 0.8
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := TOMLFormulaSource{}.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MaxProposals != 5 {
		t.Errorf("MaxProposals = %d, want 5", cfg.MaxProposals)
	}
	if len(cfg.Categories) != 2 || cfg.Categories[0] != "security" {
		t.Errorf("Categories = %v", cfg.Categories)
	}
	if cfg.Dedup.SimilarityThreshold != 0.8 {
		t.Errorf("Dedup.SimilarityThreshold = %v, want 0.8", cfg.Dedup.SimilarityThreshold)
	}
}

func TestYAMLFormulaSourceLoadMissingFile(t *testing.T) {
	_, err := YAMLFormulaSource{}.Load("/nonexistent/formula.yaml")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestSourceForFormat(t *testing.T) {
	tests := []struct {
		format  string
		wantErr bool
		wantTyp FormulaSource
	}{
		{"", false, YAMLFormulaSource{}},
		{"yaml", false, YAMLFormulaSource{}},
		{"yml", false, YAMLFormulaSource{}},
		{"toml", false, TOMLFormulaSource{}},
		{"ini", true, nil},
	}

	for _, tt := range tests {
		got, err := SourceForFormat(tt.format, "x")
		if tt.wantErr {
			if err == nil {
				t.Errorf("format %q: expected error", tt.format)
			}
			continue
		}
		if err != nil {
			t.Errorf("format %q: unexpected error %v", tt.format, err)
		}
		if got != tt.wantTyp {
			t.Errorf("format %q: got %T, want %T", tt.format, got, tt.wantTyp)
		}
	}
}
