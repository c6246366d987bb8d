package endpoints

import "testing"

const typesTestPrefix = "endpoints:types_test"

func TestParseMethod(t *testing.T) {
	tests := []struct {
		in      string
		want    Method
		wantErr bool
	}{
		{"GET", MethodGet, false},
		{"get", MethodGet, false},
		{" post ", MethodPost, false},
		{"Put", MethodPut, false},
		{"PATCH", MethodPatch, false},
		{"delete", MethodDelete, false},
		{"HEAD", "", true},
		{"OPTIONS", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMethod(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("%s - ParseMethod(%q) expected error", typesTestPrefix, tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("%s - ParseMethod(%q) unexpected error: %v", typesTestPrefix, tt.in, err)
			}
			if got != tt.want {
				t.Errorf("%s - ParseMethod(%q) = %q, want %q", typesTestPrefix, tt.in, got, tt.want)
			}
		})
	}
}

func TestMethod_AllowsBody(t *testing.T) {
	for _, m := range Methods {
		want := m != MethodGet
		if got := m.AllowsBody(); got != want {
			t.Errorf("%s - %s.AllowsBody() = %v, want %v", typesTestPrefix, m, got, want)
		}
	}
}

func TestParseVisibility(t *testing.T) {
	tests := []struct {
		in      string
		want    Visibility
		wantErr bool
	}{
		{"", VisibilityPublic, false},
		{"public", VisibilityPublic, false},
		{"PRIVATE", VisibilityPrivate, false},
		{"internal", "", true},
	}
	for _, tt := range tests {
		got, err := ParseVisibility(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("%s - ParseVisibility(%q) err = %v, wantErr %v", typesTestPrefix, tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("%s - ParseVisibility(%q) = %q, want %q", typesTestPrefix, tt.in, got, tt.want)
		}
	}
}

func TestModule_CloneIsDeep(t *testing.T) {
	orig := Module{
		Name: "billing",
		Services: []Service{{
			Name:    "invoices",
			Address: "localhost:8081",
			Routes:  []Route{{Path: "/v1/invoices", Method: MethodGet}},
		}},
	}

	c := orig.Clone()
	c.Services[0].Routes[0].Path = "/changed"
	c.Services[0].Name = "changed"

	if orig.Services[0].Routes[0].Path != "/v1/invoices" {
		t.Errorf("%s - clone shares route storage with original", typesTestPrefix)
	}
	if orig.Services[0].Name != "invoices" {
		t.Errorf("%s - clone shares service storage with original", typesTestPrefix)
	}
}
