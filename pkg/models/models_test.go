package models

import (
	"encoding/json"
	"testing"
)

func TestParseSourceKind(t *testing.T) {
	cases := map[string]SourceKind{
		"static":       KindStaticForm,
		"STATIC_FORM":  KindStaticForm,
		"api":          KindPagedAPI,
		"paged-api":    KindPagedAPI,
		" dynamic ":    KindDynamicList,
		"job_listings": KindDynamicList,
	}
	for in, want := range cases {
		got, err := ParseSourceKind(in)
		if err != nil {
			t.Fatalf("ParseSourceKind(%q) failed: %v", in, err)
		}
		if got != want {
			t.Errorf("ParseSourceKind(%q) = %s, want %s", in, got, want)
		}
	}

	if _, err := ParseSourceKind("ftp"); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestSourceKindCollections(t *testing.T) {
	for _, k := range AllKinds() {
		if k.Collection() == "" || k.IdentifierField() == "" {
			t.Errorf("kind %s missing collection or identifier field", k)
		}
	}
	if KindStaticForm.IdentifierField() != "cin" {
		t.Errorf("expected cin, got %s", KindStaticForm.IdentifierField())
	}
}

func TestNormalizeKey(t *testing.T) {
	tests := []struct {
		kind SourceKind
		in   string
		want string
	}{
		{KindStaticForm, " u72200ka2009ptc049889 ", "U72200KA2009PTC049889"},
		{KindPagedAPI, " Octocat ", "Octocat"},
		{KindDynamicList, "https://jobs.example/a ", "https://jobs.example/a"},
	}
	for _, tt := range tests {
		if got := tt.kind.NormalizeKey(tt.in); got != tt.want {
			t.Errorf("%s.NormalizeKey(%q) = %q, want %q", tt.kind, tt.in, got, tt.want)
		}
	}
}

func TestAttributesKeepInsertionOrder(t *testing.T) {
	a := NewAttributes()
	a.Set("zeta", "1")
	a.Set("alpha", "2")
	a.Set("mid", []any{"x"})
	a.Set("zeta", "3")

	data, err := json.Marshal(a)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	want := `{"zeta":"3","alpha":"2","mid":["x"]}`
	if string(data) != want {
		t.Errorf("got %s, want %s", data, want)
	}

	var back Attributes
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	keys := back.Keys()
	if len(keys) != 3 || keys[0] != "zeta" || keys[1] != "alpha" || keys[2] != "mid" {
		t.Errorf("unexpected key order: %v", keys)
	}
}

func TestAttributesDoNotEscapeHTML(t *testing.T) {
	a := NewAttributes()
	a.Set("description", "<b>R&D</b>")
	data, _ := json.Marshal(a)
	if string(data) != `{"description":"<b>R&D</b>"}` {
		t.Errorf("unexpected encoding: %s", data)
	}
}

func TestAttributesDelete(t *testing.T) {
	a := NewAttributes()
	a.Set("a", 1)
	a.Set("b", 2)
	a.Delete("a")
	if a.Len() != 1 || a.Keys()[0] != "b" {
		t.Errorf("unexpected keys after delete: %v", a.Keys())
	}
	if _, ok := a.Get("a"); ok {
		t.Error("deleted key still present")
	}
}

func TestRecordDocumentPutsIdentifierFirst(t *testing.T) {
	attrs := NewAttributes()
	attrs.Set("company_name", "Acme Pvt Ltd")
	attrs.Set("cin", "stale")

	rec := &CanonicalRecord{SourceKind: KindStaticForm, Identifier: "ABC123", Attributes: attrs}
	data, _ := json.Marshal(rec.Document())
	if string(data) != `{"cin":"ABC123","company_name":"Acme Pvt Ltd"}` {
		t.Errorf("unexpected document: %s", data)
	}
}

func TestParseTargets(t *testing.T) {
	targets := ParseTargets(KindPagedAPI, "octocat, torvalds\n\n# comment\noctocat")
	if len(targets) != 3 {
		t.Fatalf("expected 3 targets, got %d: %v", len(targets), targets)
	}
	if targets[2].Key != "octocat" || targets[2].SourceKind != KindPagedAPI {
		t.Errorf("unexpected target: %v", targets[2])
	}
}

func TestBatchReportCounts(t *testing.T) {
	r := &BatchReport{Outcomes: []TargetOutcome{
		{State: StateDone, Records: 2},
		{State: StateFailed, FailureKind: "NOT_FOUND"},
		{State: StateFailed, FailureKind: "TIMEOUT"},
		{State: StateFailed, FailureKind: "NOT_FOUND"},
	}}
	if r.Done() != 1 || r.Failed() != 3 || r.Records() != 2 {
		t.Errorf("unexpected counts: done=%d failed=%d records=%d", r.Done(), r.Failed(), r.Records())
	}
	if r.FailuresByKind()["NOT_FOUND"] != 2 {
		t.Errorf("expected 2 NOT_FOUND, got %v", r.FailuresByKind())
	}
	kinds := r.FailureKinds()
	if len(kinds) != 2 || kinds[0] != "NOT_FOUND" {
		t.Errorf("unexpected kinds: %v", kinds)
	}
}
