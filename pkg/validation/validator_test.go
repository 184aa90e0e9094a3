package validation

import (
	"strings"
	"testing"
)

func TestValidateLabel(t *testing.T) {
	tests := []struct {
		label   string
		wantErr bool
	}{
		{"Person", false},
		{"HAS_MEMBER", false},
		{"v2", false},
		{"", true},
		{"_hidden", true},
		{"has space", true},
		{"9lives", true},
		{strings.Repeat("a", MaxLabelLength+1), true},
	}

	for _, tt := range tests {
		err := ValidateLabel(tt.label)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateLabel(%q) error = %v, wantErr %v", tt.label, err, tt.wantErr)
		}
	}
}

func TestValidatePropertyKey(t *testing.T) {
	tests := []struct {
		key     string
		wantErr bool
	}{
		{"name", false},
		{"_internal", false},
		{"created_at2", false},
		{"", true},
		{"@out", true},
		{"1st", true},
		{"a-b", true},
	}

	for _, tt := range tests {
		err := ValidatePropertyKey(tt.key)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidatePropertyKey(%q) error = %v, wantErr %v", tt.key, err, tt.wantErr)
		}
	}
}

type sample struct {
	Label string   `validate:"required,graphlabel"`
	Props []string `validate:"required,min=1,dive,propkey"`
	Kind  string   `validate:"oneof=vertex edge"`
}

func TestStruct(t *testing.T) {
	if err := Struct(sample{Label: "Person", Props: []string{"name"}, Kind: "vertex"}); err != nil {
		t.Fatalf("valid struct rejected: %v", err)
	}

	tests := []struct {
		name  string
		input sample
		want  string
	}{
		{"missing label", sample{Props: []string{"x"}, Kind: "edge"}, "field is required"},
		{"bad label", sample{Label: "a b", Props: []string{"x"}, Kind: "edge"}, "invalid characters"},
		{"bad property", sample{Label: "A", Props: []string{"ok", "no-dash"}, Kind: "edge"}, "is invalid"},
		{"bad kind", sample{Label: "A", Props: []string{"x"}, Kind: "node"}, "must be one of"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Struct(tt.input)
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}

	if err := Struct(nil); err == nil {
		t.Error("Struct(nil) should fail")
	}
}
