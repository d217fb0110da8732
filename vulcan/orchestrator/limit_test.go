package orchestrator

import (
	"testing"
)

func TestParseLimit(t *testing.T) {
	tests := []struct {
		name        string
		parallelism string
		totalSlots  int
		want        int
		wantErr     bool
	}{
		{
			name:        "empty defaults to all slots",
			parallelism: "",
			totalSlots:  10,
			want:        10,
			wantErr:     false,
		},
		{
			name:        "serial execution",
			parallelism: "1",
			totalSlots:  10,
			want:        1,
			wantErr:     false,
		},
		{
			name:        "fixed number",
			parallelism: "5",
			totalSlots:  10,
			want:        5,
			wantErr:     false,
		},
		{
			name:        "percentage 40%",
			parallelism: "40%",
			totalSlots:  10,
			want:        4,
			wantErr:     false,
		},
		{
			name:        "percentage rounds down but min 1",
			parallelism: "10%",
			totalSlots:  5,
			want:        1,
			wantErr:     false,
		},
		{
			name:        "invalid percentage",
			parallelism: "abc%",
			totalSlots:  10,
			wantErr:     true,
		},
		{
			name:        "percentage over 100",
			parallelism: "150%",
			totalSlots:  10,
			wantErr:     true,
		},
		{
			name:        "zero percentage",
			parallelism: "0%",
			totalSlots:  10,
			wantErr:     true,
		},
		{
			name:        "invalid number",
			parallelism: "abc",
			totalSlots:  10,
			wantErr:     true,
		},
		{
			name:        "zero parallelism",
			parallelism: "0",
			totalSlots:  10,
			wantErr:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLimit(tt.parallelism, tt.totalSlots)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got limit %d", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected limit %d, got %d", tt.want, got)
			}
		})
	}
}
