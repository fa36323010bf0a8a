package vision

import "fmt"

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE DTOs
// ══════════════════════════════════════════════════════════════════════════════

// Result is the body of a successful analysis response:
// {"scores": {...}, "feedback": {...}, "tips": [...]}.
type Result struct {
	Scores   ScoresDTO   `json:"scores"`
	Feedback FeedbackDTO `json:"feedback"`
	Tips     []string    `json:"tips"`
}

// ScoresDTO is the score tree as sent by the service. Overall is a pointer
// so a missing value can be told apart from a zero.
type ScoresDTO struct {
	Overall    *float64           `json:"overall"`
	Skin       map[string]float64 `json:"skin,omitempty"`
	Makeup     map[string]float64 `json:"makeup,omitempty"`
	Eyes       map[string]float64 `json:"eyes,omitempty"`
	Lips       map[string]float64 `json:"lips,omitempty"`
	Impression map[string]float64 `json:"impression,omitempty"`
}

// FeedbackDTO holds the per-domain notes.
type FeedbackDTO struct {
	Overall    string `json:"overall,omitempty"`
	Skin       string `json:"skin,omitempty"`
	Makeup     string `json:"makeup,omitempty"`
	Eyes       string `json:"eyes,omitempty"`
	Lips       string `json:"lips,omitempty"`
	Impression string `json:"impression,omitempty"`
}

// ErrorDTO is the body of a failed response.
type ErrorDTO struct {
	Error string `json:"error"`
}

// APIError is returned for a non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("vision api: status %d", e.StatusCode)
	}
	return fmt.Sprintf("vision api: status %d: %s", e.StatusCode, e.Message)
}

// ServerSide reports whether the service itself failed.
func (e *APIError) ServerSide() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}
