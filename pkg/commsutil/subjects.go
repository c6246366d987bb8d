package commsutil

import (
	"fmt"
	"strings"
)

// Default COMMS subjects.
const (
	// SubjectConsole receives console API requests (modules, resolve, invoke, ...).
	SubjectConsole = "console.api"
	// SubjectSnapshot is where a deployment answers snapshot requests.
	SubjectSnapshot = "console.snapshot"
	// SubjectInvocationEvent is the global subject for invocation events.
	SubjectInvocationEvent = "console.invocations"
)

// SafeToken makes a name usable as a single subject token.
func SafeToken(s string) string {
	if s == "" {
		return "_"
	}
	r := strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_")
	return r.Replace(s)
}

// BuildInvocationSubject builds the per-service invocation event subject.
func BuildInvocationSubject(prefix, module, service string) string {
	if prefix == "" {
		prefix = SubjectInvocationEvent
	}
	return fmt.Sprintf("%s.%s.%s", prefix, SafeToken(module), SafeToken(service))
}
