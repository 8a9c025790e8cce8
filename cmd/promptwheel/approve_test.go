package main

import "testing"

func TestParseScores(t *testing.T) {
	tests := []struct {
		name    string
		pairs   []string
		want    map[string]float64
		wantErr bool
	}{
		{"empty", nil, map[string]float64{}, false},
		{"single pair", []string{"Extract helper=8.5"}, map[string]float64{"Extract helper": 8.5}, false},
		{"multiple pairs", []string{"a=1", "b=2.25"}, map[string]float64{"a": 1, "b": 2.25}, false},
		{"missing equals", []string{"no-equals-here"}, nil, true},
		{"non-numeric value", []string{"a=notanumber"}, nil, true},
		{"value itself contains equals", []string{"a=b=2"}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseScores(tt.pairs)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseScores(%v) = %v, want error", tt.pairs, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseScores(%v) returned error: %v", tt.pairs, err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("parseScores(%v) = %v, want %v", tt.pairs, got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("parseScores(%v)[%q] = %v, want %v", tt.pairs, k, got[k], v)
				}
			}
		})
	}
}
