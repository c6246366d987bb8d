package commsutil

import "testing"

func TestSafeToken(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"billing", "billing"},
		{"doc.ingest", "doc_ingest"},
		{"a b", "a_b"},
		{"wild*card>", "wild_card_"},
		{"", "_"},
	}
	for _, tt := range tests {
		if got := SafeToken(tt.in); got != tt.want {
			t.Errorf("commsutil:subjects_test - SafeToken(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestBuildInvocationSubject(t *testing.T) {
	tests := []struct {
		name    string
		prefix  string
		module  string
		service string
		want    string
	}{
		{"default prefix", "", "billing", "invoices", "console.invocations.billing.invoices"},
		{"custom prefix", "dev.calls", "billing", "invoices", "dev.calls.billing.invoices"},
		{"dotted service", "", "billing", "invoices.v2", "console.invocations.billing.invoices_v2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildInvocationSubject(tt.prefix, tt.module, tt.service)
			if got != tt.want {
				t.Errorf("commsutil:subjects_test - BuildInvocationSubject(%q, %q, %q) = %q, want %q",
					tt.prefix, tt.module, tt.service, got, tt.want)
			}
		})
	}
}
