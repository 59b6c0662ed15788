// Package navigation computes which transitions a linear stepper allows.
package navigation

import "math"

// State is the derived navigation state of a wizard.
type State struct {
	CurrentStep   int  `json:"currentStep"`
	TotalSteps    int  `json:"totalSteps"`
	CanGoNext     bool `json:"canGoNext"`
	CanGoPrevious bool `json:"canGoPrevious"`
	IsFirstStep   bool `json:"isFirstStep"`
	IsLastStep    bool `json:"isLastStep"`
	Progress      int  `json:"progress"` // percent, 0..100
}

// Compute returns the navigation state for current out of total steps.
// A non-positive total yields a state that allows no movement.
func Compute(current, total int) State {
	if total < 1 {
		return State{CurrentStep: current, TotalSteps: total}
	}
	return State{
		CurrentStep:   current,
		TotalSteps:    total,
		CanGoNext:     current < total,
		CanGoPrevious: current > 1,
		IsFirstStep:   current == 1,
		IsLastStep:    current == total,
		Progress:      Progress(current, total),
	}
}

// Progress returns round(current/total*100), clamped to 0..100.
func Progress(current, total int) int {
	if total < 1 || current < 1 {
		return 0
	}
	if current >= total {
		return 100
	}
	return int(math.Round(float64(current) / float64(total) * 100))
}

// InRange reports whether step is a valid step number.
func InRange(step, total int) bool {
	return step >= 1 && step <= total
}

// Next returns the step after current and whether moving forward is allowed.
func Next(current, total int) (int, bool) {
	if current < total {
		return current + 1, true
	}
	return current, false
}

// Previous returns the step before current and whether moving back is allowed.
func Previous(current int) (int, bool) {
	if current > 1 {
		return current - 1, true
	}
	return current, false
}
