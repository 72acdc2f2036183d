package domain

import "math"

// Billing holds both sides of the metered amount. Both fields are derived
// from elapsed time and rate, never accumulated independently.
type Billing struct {
	CustomerAmount   float64 `json:"customer_amount"`
	ConsultantAmount float64 `json:"consultant_amount"`
}

// Round2 rounds to two-decimal display precision.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
