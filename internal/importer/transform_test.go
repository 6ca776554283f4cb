package importer

import "testing"

func TestTransformsApply(t *testing.T) {
	r := NewTransformRegistry()

	cases := []struct {
		name  string
		in    any
		want  any
		fails bool
	}{
		{"trim", "  hello  ", "hello", false},
		{"uppercase", "abc", "ABC", false},
		{"lowercase", "ABC", "abc", false},
		{"parse_number", "1,5", 1.5, false},
		{"parse_number", "2.25", 2.25, false},
		{"parse_number", "abc", nil, true},
		{"parse_int", "42", 42, false},
		{"parse_int", "3.9", 3, false},
		{"parse_int", "abc", nil, true},
	}
	for _, tc := range cases {
		got, err := r.Apply(tc.name, tc.in)
		if tc.fails {
			if err == nil {
				t.Fatalf("%s(%v): expected error, got %v", tc.name, tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s(%v): %v", tc.name, tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("%s(%v) = %v, want %v", tc.name, tc.in, got, tc.want)
		}
	}
}

func TestTransformsPassThroughNonStrings(t *testing.T) {
	r := NewTransformRegistry()
	got, err := r.Apply("trim", 12)
	if err != nil {
		t.Fatalf("trim(12): %v", err)
	}
	if got != 12 {
		t.Fatalf("trim(12) = %v, want 12", got)
	}
}

func TestTransformRegisterRules(t *testing.T) {
	r := NewTransformRegistry()
	if err := r.Register("trim", func(v any) (any, error) { return v, nil }); err == nil {
		t.Fatalf("registering over a built-in should fail")
	}
	if err := r.Register("reverse", func(v any) (any, error) { return v, nil }); err != nil {
		t.Fatalf("registering a new transform: %v", err)
	}
	if _, err := r.Apply("reverse", "x"); err != nil {
		t.Fatalf("applying registered transform: %v", err)
	}
	if _, err := r.Apply("bogus", "x"); err == nil {
		t.Fatalf("unknown transform should error")
	}
}

func TestTransformEmptyNameIsIdentity(t *testing.T) {
	r := NewTransformRegistry()
	got, err := r.Apply("", "same")
	if err != nil || got != "same" {
		t.Fatalf("empty transform = (%v, %v), want identity", got, err)
	}
}
