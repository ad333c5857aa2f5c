package protocol_test

import (
	"testing"

	"github.com/momentics/hioload-wire/protocol"
)

func TestGetVariable(t *testing.T) {
	src := []byte("a=1&Name=J%C3%B6rg+M&empty=&bad=%zz%4&flag&dup=first&dup=second")
	cases := []struct {
		name string
		want string
		n    int
	}{
		{"a", "1", 1},
		{"name", "Jörg M", len("Jörg M")},
		{"empty", "", 0},
		{"bad", "%zz%4", 5},
		{"dup", "first", 5},
		{"flag", "", protocol.VarNotFound},
		{"missing", "", protocol.VarNotFound},
	}
	for _, tc := range cases {
		dst := make([]byte, 32)
		n := protocol.GetVariable(src, tc.name, dst)
		if n != tc.n {
			t.Errorf("%s: n = %d, want %d", tc.name, n, tc.n)
			continue
		}
		if n >= 0 && string(dst[:n]) != tc.want {
			t.Errorf("%s: value %q, want %q", tc.name, dst[:n], tc.want)
		}
	}
}

func TestGetVariableNoSpace(t *testing.T) {
	src := []byte("k=abcdef")
	if n := protocol.GetVariable(src, "k", make([]byte, 3)); n != protocol.VarNoSpace {
		t.Fatalf("n = %d", n)
	}
	if n := protocol.GetVariable(src, "k", make([]byte, 6)); n != 6 {
		t.Fatalf("exact fit: n = %d", n)
	}
}

func TestLookupVariable(t *testing.T) {
	v, ok := protocol.LookupVariable([]byte("q=hello%20world"), "Q")
	if !ok || v != "hello world" {
		t.Fatalf("LookupVariable = %q, %v", v, ok)
	}
	if _, ok := protocol.LookupVariable(nil, "q"); ok {
		t.Fatal("found variable in empty source")
	}
}
