package urlutil

import "testing"

func TestValidate(t *testing.T) {
	valid := []string{
		"http://example.com",
		"https://example.com/path",
	}
	for _, u := range valid {
		if err := ValidateURL(u); err != nil {
			t.Fatalf("expected valid, got error: %v", err)
		}
	}

	invalid := []string{"ftp://example.com", "//example.com", "http:///"}
	for _, u := range invalid {
		if err := ValidateURL(u); err == nil {
			t.Fatalf("expected invalid for %s", u)
		}
	}
}

func TestResolveURL(t *testing.T) {
	cases := []struct {
		base, href, want string
	}{
		{"https://careers.example.com/jobs", "/jobs/42", "https://careers.example.com/jobs/42"},
		{"https://careers.example.com/jobs/", "42?ref=list", "https://careers.example.com/jobs/42?ref=list"},
		{"https://careers.example.com/jobs", "https://other.example.com/x#apply", "https://other.example.com/x"},
		{"https://careers.example.com/jobs", "  ", ""},
	}
	for _, c := range cases {
		if got := ResolveURL(c.base, c.href); got != c.want {
			t.Errorf("ResolveURL(%q, %q) = %q, want %q", c.base, c.href, got, c.want)
		}
	}
}
