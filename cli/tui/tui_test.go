package tui

import (
	"testing"
)

func TestIsTUISupported(t *testing.T) {
	tests := []struct {
		viewType string
		want     bool
	}{
		{"stats", true},
		{"version", false},
		{"run", false},
		{"unknown", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.viewType, func(t *testing.T) {
			got := IsTUISupported(tt.viewType)
			if got != tt.want {
				t.Errorf("IsTUISupported(%q) = %v, want %v", tt.viewType, got, tt.want)
			}
		})
	}
}

func TestSupportedTUIViews(t *testing.T) {
	views := SupportedTUIViews()
	if len(views) != 1 || views[0] != "stats" {
		t.Errorf("SupportedTUIViews() = %v, want [\"stats\"]", views)
	}
}

func TestRun_UnsupportedViewType(t *testing.T) {
	err := Run("run", nil)
	if err == nil {
		t.Error("Expected error for unsupported view type")
	}
}
