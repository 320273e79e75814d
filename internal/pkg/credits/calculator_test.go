package credits

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPhoneCallCost(t *testing.T) {
	tests := []struct {
		name     string
		seconds  int
		expected int
	}{
		{"Short call floor", 60, 8},
		{"Exactly two minutes", 120, 8},
		{"Mid-range call", 360, 11},
		{"Exactly ten minutes", 600, 15},
		{"Very long call caps", 10000, 15},
		{"Zero falls back to minimum", 0, 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, PhoneCallCost(tt.seconds))
		})
	}
}

func TestAutomationCost(t *testing.T) {
	tests := []struct {
		name     string
		steps    int
		expected int
	}{
		{"Single step", 1, 5},
		{"Three steps", 3, 5},
		{"Ten steps", 10, 10},
		{"Huge workflow caps", 50, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, AutomationCost(tt.steps))
		})
	}
}

func TestCostFor(t *testing.T) {
	assert.Equal(t, 1, CostFor(TaskChat, 0))
	assert.Equal(t, 1, CostFor(TaskSMS, 0))
	assert.Equal(t, 2, CostFor(TaskEmail, 0))
	assert.Equal(t, 3, CostFor(TaskDataAnalysis, 0))
	assert.Equal(t, 8, CostFor(TaskPhoneCall, 120))
	assert.Equal(t, 5, CostFor(TaskAutomation, 3))

	// Unknown task types still cost something.
	assert.Equal(t, 1, CostFor(TaskType("telepathy"), 0))
}
