package orders

import "testing"

func TestInferCoast(t *testing.T) {
	tests := []struct {
		origin string
		dest   string
		want   string
		ok     bool
	}{
		// Exactly one reachable coast: inferred.
		{"GAS", "SPA", "SPA/NC", true},
		{"MAR", "SPA", "SPA/SC", true},
		{"BAR", "STP", "STP/NC", true},
		{"BOT", "STP", "STP/SC", true},
		{"BLA", "BUL", "BUL/EC", true},
		{"GRE", "BUL", "BUL/SC", true},
		// Two reachable coasts: ambiguous, left bare.
		{"MAO", "SPA", "SPA", false},
		{"POR", "SPA", "SPA", false},
		{"CON", "BUL", "BUL", false},
		// Zero reachable coasts: ambiguous.
		{"NTH", "STP", "STP", false},
		// Non-split destination passes through.
		{"BRE", "MAO", "MAO", false},
		// Origin coast is irrelevant to the adjacency lookup.
		{"STP/SC", "STP", "STP", false},
	}
	for _, tt := range tests {
		got, ok := InferCoast(tt.origin, tt.dest)
		if got != tt.want || ok != tt.ok {
			t.Errorf("InferCoast(%q, %q) = (%q, %v), want (%q, %v)",
				tt.origin, tt.dest, got, ok, tt.want, tt.ok)
		}
	}
}

func TestParseAppliesCoastInference(t *testing.T) {
	o, err := Parse("F GAS - SPA")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if o.Target != "SPA/NC" {
		t.Errorf("expected inferred SPA/NC, got %q", o.Target)
	}
	if o.AmbiguousCoast {
		t.Error("inferred coast should not be flagged ambiguous")
	}

	o, err = Parse("F MAO - SPA")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if o.Target != "SPA" {
		t.Errorf("ambiguous target should stay bare, got %q", o.Target)
	}
	if !o.AmbiguousCoast {
		t.Error("two reachable coasts should be flagged ambiguous")
	}

	// Armies never need a coast.
	o, err = Parse("A GAS - SPA")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if o.Target != "SPA" || o.AmbiguousCoast {
		t.Errorf("army move should pass through: %+v", o)
	}

	// Explicit coast is respected.
	o, err = Parse("F MAO - SPA/SC")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if o.Target != "SPA/SC" || o.AmbiguousCoast {
		t.Errorf("explicit coast should pass through: %+v", o)
	}
}
