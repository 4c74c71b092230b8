package bidiproto

import "testing"

func TestValidateHeaderValue(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{"empty", "", false},
		{"plain", "text/html", false},
		{"leading space", " text/html", true},
		{"trailing tab", "text/html\t", true},
		{"embedded newline", "text/html\nX-Injected: 1", true},
		{"embedded nul", "text/html\x00", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateHeaderValue(tc.value)
			if (err != nil) != tc.wantErr {
				t.Errorf("ValidateHeaderValue(%q) error = %v, wantErr %v", tc.value, err, tc.wantErr)
			}
			if err != nil {
				bidiErr, ok := err.(*Error)
				if !ok || bidiErr.Kind != ErrInvalidArgument {
					t.Errorf("expected invalid argument error, got %v", err)
				}
			}
		})
	}
}

func TestValidateHTTPMethod(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		method  string
		wantErr bool
	}{
		{"GET", "GET", false},
		{"custom token", "X-Custom+Method", false},
		{"empty", "", true},
		{"space", "GE T", true},
		{"colon", "GET:", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateHTTPMethod(tc.method)
			if (err != nil) != tc.wantErr {
				t.Errorf("ValidateHTTPMethod(%q) error = %v, wantErr %v", tc.method, err, tc.wantErr)
			}
		})
	}
}
