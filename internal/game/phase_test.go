package game

import "testing"

func TestParsePhase(t *testing.T) {
	tests := []struct {
		token  string
		season string
		year   int
		ptype  PhaseType
	}{
		{"S1901M", "spring", 1901, Movement},
		{"F1901M", "fall", 1901, Movement},
		{"F1902R", "fall", 1902, RetreatPhase},
		{"W1901A", "winter", 1901, Adjustment},
	}
	for _, tt := range tests {
		p, err := ParsePhase(tt.token)
		if err != nil {
			t.Errorf("ParsePhase(%q): %v", tt.token, err)
			continue
		}
		if p.Season != tt.season || p.Year != tt.year || p.Type != tt.ptype {
			t.Errorf("ParsePhase(%q) = %+v", tt.token, p)
		}
	}
}

func TestParsePhaseRejectsMalformed(t *testing.T) {
	for _, token := range []string{"", "S1901", "X1901M", "S19O1M", "S1901Z", "COMPLETED"} {
		if _, err := ParsePhase(token); err == nil {
			t.Errorf("ParsePhase(%q): expected error", token)
		}
	}
}

func TestIsRetreat(t *testing.T) {
	if !IsRetreat("F1901R") {
		t.Error("F1901R is a retreat phase")
	}
	if IsRetreat("S1901M") || IsRetreat("junk") {
		t.Error("non-retreat tokens should report false")
	}
}
