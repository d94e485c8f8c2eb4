package compiledb

import "testing"

func TestParseFeatureFlag(t *testing.T) {
	cases := []struct {
		value string
		def   bool
		want  bool
	}{
		{"", true, true},
		{"", false, false},
		{"1", false, true},
		{"0", true, false},
		{"true", false, true},
		{"Yes", false, true},
		{"no", true, false},
	}
	for _, c := range cases {
		if got := parseFeatureFlag(c.value, c.def); got != c.want {
			t.Errorf("parseFeatureFlag(%q, %v) = %v, want %v", c.value, c.def, got, c.want)
		}
	}
}
