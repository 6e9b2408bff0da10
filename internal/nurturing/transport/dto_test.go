package transport

import (
	"testing"

	"closing_backend/internal/nurturing/repository"
)

func TestToReportRowConversionRate(t *testing.T) {
	tests := []struct {
		name      string
		enrolled  int
		converted int
		want      int
	}{
		{"no enrollments", 0, 0, 0},
		{"none converted", 10, 0, 0},
		{"all converted", 4, 4, 100},
		{"one third rounds down", 3, 1, 33},
		{"two thirds rounds up", 3, 2, 67},
		{"half", 8, 4, 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := ToReportRow(repository.SequenceReport{
				Enrolled:  tt.enrolled,
				Converted: tt.converted,
			})
			if row.ConversionRate != tt.want {
				t.Errorf("ConversionRate = %d, want %d", row.ConversionRate, tt.want)
			}
		})
	}
}
