// Package events defines console event types and publishers.
package events

// InvocationEvent is emitted after every endpoint invocation, successful or not.
type InvocationEvent struct {
	ID         string `json:"id"`
	Module     string `json:"module,omitempty"`
	Service    string `json:"service,omitempty"`
	Method     string `json:"method"`
	Path       string `json:"path,omitempty"`
	URL        string `json:"url"`
	StatusCode *int   `json:"statusCode,omitempty"`
	Outcome    string `json:"outcome"`
	Success    bool   `json:"success"`
	DurationMs int64  `json:"durationMs"`
	Error      string `json:"error,omitempty"`
	Timestamp  string `json:"timestamp"`
}

// SnapshotLoadedEvent is emitted when a registry snapshot load is attempted.
type SnapshotLoadedEvent struct {
	Source    string `json:"source"`
	Ok        bool   `json:"ok"`
	Modules   int    `json:"modules"`
	Services  int    `json:"services"`
	Routes    int    `json:"routes"`
	Error     string `json:"error,omitempty"`
	Timestamp string `json:"timestamp"`
}
