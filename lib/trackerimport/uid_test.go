package trackerimport

import "testing"

func TestGenerateShape(t *testing.T) {
	gen := NewUIDGenerator()
	for i := 0; i < 100; i++ {
		uid := gen.Generate()
		if !IsValidUID(uid) {
			t.Fatalf("generated invalid uid %q", uid)
		}
	}
}

func TestGenerateDeterministicSource(t *testing.T) {
	gen := NewUIDGeneratorWithSource(func(n int) int { return 0 })
	if got := gen.Generate(); got != "aaaaaaaaaaa" {
		t.Errorf("Generate with zero source = %q", got)
	}
}

func TestIsValidUID(t *testing.T) {
	testcases := []struct {
		uid  string
		want bool
	}{
		{"a1234567890", true},
		{"Abcdefghijk", true},
		{"1bcdefghijk", false}, // must start with a letter
		{"abc", false},
		{"abcdefghijkl", false}, // too long
		{"abcdefghij!", false},
		{"", false},
	}
	for _, tc := range testcases {
		if got := IsValidUID(tc.uid); got != tc.want {
			t.Errorf("IsValidUID(%q) = %v, expected %v", tc.uid, got, tc.want)
		}
	}
}
