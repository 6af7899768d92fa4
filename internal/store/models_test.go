package store

import (
	"reflect"
	"testing"
)

func TestFreshnessBand(t *testing.T) {
	cases := []struct {
		score float64
		want  string
	}{
		{100, "Fresh"},
		{80, "Fresh"},
		{79.9, "Moderate"},
		{50, "Moderate"},
		{49.9, "Stale"},
		{0, "Stale"},
	}
	for _, tc := range cases {
		if got := FreshnessBand(tc.score); got != tc.want {
			t.Errorf("FreshnessBand(%v) = %q, want %q", tc.score, got, tc.want)
		}
	}
}

func TestDecodeStringListAcceptsArrayAndScalar(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want []string
	}{
		{"array", `["go","sql"]`, []string{"go", "sql"}},
		{"scalar", `"solo"`, []string{"solo"}},
		{"blank scalar", `"  "`, []string{}},
		{"empty array", `[]`, []string{}},
		{"garbage", `{broken`, []string{}},
		{"empty input", ``, []string{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := decodeStringList([]byte(tc.raw))
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("decodeStringList(%q) = %v, want %v", tc.raw, got, tc.want)
			}
		})
	}
}

func TestEncodeStringListNilBecomesEmptyArray(t *testing.T) {
	encoded, err := encodeStringList(nil)
	if err != nil {
		t.Fatalf("encodeStringList: %v", err)
	}
	if string(encoded) != "[]" {
		t.Fatalf("encoded = %s, want []", encoded)
	}
}
