package vfs

import "testing"

func TestParsePathDropsEmptySegments(t *testing.T) {
	got := ParsePath("//one/two///three/")
	want := Path{"one", "two", "three"}
	if len(got) != len(want) {
		t.Fatalf("ParsePath = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ParsePath = %v, want %v", got, want)
		}
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	segs := []string{"plain", "has/slash", "has#hash", "has?question", "weird\x01ctrl"}
	for _, s := range segs {
		encoded := EncodeSegment(s)
		decoded := decodeSegment(encoded)
		if decoded != s {
			t.Fatalf("round trip %q -> %q -> %q", s, encoded, decoded)
		}
	}
}

func TestPathStringRoundTrip(t *testing.T) {
	p := Path{"a/b", "c"}
	text := p.String()
	got := ParsePath(text)
	if len(got) != len(p) {
		t.Fatalf("got %v, want %v", got, p)
	}
	for i := range p {
		if got[i] != p[i] {
			t.Fatalf("got %v, want %v", got, p)
		}
	}
}
