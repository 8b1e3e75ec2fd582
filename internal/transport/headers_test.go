package transport

import (
	"reflect"
	"testing"
)

func TestParseHeaders(t *testing.T) {
	in := []string{"user-agent: Bot", "Accept: text/html", "BadHeader", ": empty", "X-Token: a:b"}
	out := ParseHeaders(in)
	expected := map[string]string{"User-Agent": "Bot", "Accept": "text/html", "X-Token": "a:b"}
	if !reflect.DeepEqual(out, expected) {
		t.Fatalf("unexpected parse result: %#v", out)
	}
}

func TestMergeHeaders(t *testing.T) {
	base := map[string]string{"accept": "text/html", "X-A": "1"}
	out := MergeHeaders(base, map[string]string{"Accept": "application/json"})
	if out["Accept"] != "application/json" || out["X-A"] != "1" || len(out) != 2 {
		t.Fatalf("unexpected merge result: %#v", out)
	}
	if base["accept"] != "text/html" {
		t.Fatal("base map was modified")
	}
}
