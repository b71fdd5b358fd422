package errors

import (
	"strings"
	"testing"
)

func TestValidateViewName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"simple", "table", false},
		{"camel", "Mermaid", false},
		{"with dash", "my-view", false},
		{"with digit", "chart2", false},

		{"empty", "", true},
		{"too long", strings.Repeat("a", 65), true},
		{"leading digit", "2chart", true},
		{"space", "my view", true},
		{"reserved register", "register", true},
		{"reserved case-insensitive", "Render", true},
		{"reserved useState", "useState", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateViewName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateViewName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err != nil && !Is(err, ErrCodeInvalidRegistration) {
				t.Errorf("ValidateViewName(%q) code = %v", tt.input, GetCode(err))
			}
		})
	}
}

func TestValidateInstanceID(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"block id", "20240101120000-abcdefg", false},
		{"empty", "", true},
		{"colon", "a:b", true},
		{"slash", "a/b", true},
		{"space", "a b", true},
		{"control", "a\x01", true},
		{"too long", strings.Repeat("x", 129), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateInstanceID(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateInstanceID(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}
