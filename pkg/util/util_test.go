package util

import (
	"testing"
)

func TestMakeSafeAscii(t *testing.T) {
	got := MakeSafeAscii("a b\"c\\d\te")
	want := "a_b_c_d_e"
	if got != want {
		t.Errorf("MakeSafeAscii got %q want %q", got, want)
	}

	// High bit cleared
	got = MakeSafeAscii(string([]byte{0xC1, 'x'}))
	if got != "Ax" {
		t.Errorf("MakeSafeAscii high bit got %q", got)
	}
}

func TestReduceSpaces(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"abc def", "abcdef"},
		{"a 1 2 b", "a1_2b"},
		{"ab", "ab"},
		{"Intel(R) Core(TM) i3", "Intel(R)Core(TM)i3"},
	}
	for _, tc := range tests {
		if got := ReduceSpaces(tc.in); got != tc.want {
			t.Errorf("ReduceSpaces(%q) got %q want %q", tc.in, got, tc.want)
		}
	}
}

func TestAppendNum(t *testing.T) {
	if got := AppendNum("worker", 7); got != "worker.7" {
		t.Errorf("AppendNum got %q", got)
	}
	// Already present: unchanged
	if got := AppendNum("worker.7", 7); got != "worker.7" {
		t.Errorf("AppendNum dedup got %q", got)
	}
}

func TestAppendHexNum(t *testing.T) {
	if got := AppendHexNum("rx_pkt", 0xBEEF); got != "rx_pkt.BEEF" {
		t.Errorf("AppendHexNum got %q", got)
	}
	if got := AppendHexNum("rx_pkt.BEEF", 0xBEEF); got != "rx_pkt.BEEF" {
		t.Errorf("AppendHexNum dedup got %q", got)
	}
}
