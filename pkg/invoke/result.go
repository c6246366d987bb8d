package invoke

import "github.com/morezero/endpoint-console/pkg/auth"

// Outcome classifies an invocation.
type Outcome string

const (
	OutcomeSuccess        Outcome = "success"
	OutcomeClientError    Outcome = "client_error"
	OutcomeServerError    Outcome = "server_error"
	OutcomeTransportError Outcome = "transport_error"
)

// Badge is how an outcome is shown.
type Badge string

const (
	BadgeSuccess Badge = "success"
	BadgeWarning Badge = "warning"
	BadgeError   Badge = "error"
)

// Classify maps an HTTP status onto an outcome. Anything outside 2xx and 4xx,
// including 1xx and unfollowed 3xx, counts as a server error.
func Classify(status int) Outcome {
	switch {
	case status >= 200 && status < 300:
		return OutcomeSuccess
	case status >= 400 && status < 500:
		return OutcomeClientError
	default:
		return OutcomeServerError
	}
}

// Badge returns the display badge for o.
func (o Outcome) Badge() Badge {
	switch o {
	case OutcomeSuccess:
		return BadgeSuccess
	case OutcomeClientError:
		return BadgeWarning
	default:
		return BadgeError
	}
}

// Result is the displayable outcome of one invocation.
// StatusCode is nil when no response was received.
type Result struct {
	StatusCode   *int        `json:"statusCode"`
	Success      bool        `json:"success"`
	Payload      interface{} `json:"payload,omitempty"`
	ErrorMessage string      `json:"errorMessage,omitempty"`

	Outcome     Outcome        `json:"outcome"`
	Badge       Badge          `json:"badge"`
	ContentType string         `json:"contentType,omitempty"`
	DurationMs  int64          `json:"durationMs"`
	Auth        auth.TokenInfo `json:"auth"`

	// Truncated is set when the body was larger than the engine keeps.
	Truncated bool `json:"truncated,omitempty"`
}
