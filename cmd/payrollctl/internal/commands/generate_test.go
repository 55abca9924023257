package commands

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/nikhilbhutani/payrollflow/internal/models"
)

func TestGeneratePeriodDefaults(t *testing.T) {
	now := time.Date(2026, time.July, 15, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		cmd  GenerateCmd
		want models.Period
	}{
		{"current month", GenerateCmd{}, models.Period{Month: 7, Year: 2026}},
		{"explicit", GenerateCmd{Month: 2, Year: 2025}, models.Period{Month: 2, Year: 2025}},
		{"month only", GenerateCmd{Month: 12}, models.Period{Month: 12, Year: 2026}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cmd.period(now))
		})
	}
}

func TestParseAmount(t *testing.T) {
	d, err := parseAmount("1250.50")
	assert.NoError(t, err)
	assert.Equal(t, "1250.50", d.StringFixed(2))

	_, err = parseAmount("ten")
	assert.Error(t, err)
}
