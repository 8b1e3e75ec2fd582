package render

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/law-makers/harvest/internal/fault"
)

const jobsPage = `<!DOCTYPE html>
<html><body>
<div id="root"></div>
<script>
setTimeout(function () {
  document.getElementById('root').innerHTML =
    '<ul class="job-list">' +
    '<li class="job-list-item"><h3><a href="/jobs/1">Go Engineer</a></h3><span class="job-location">Remote</span></li>' +
    '<li class="job-list-item"><h3><a href="/jobs/2">SRE</a></h3></li>' +
    '</ul>';
}, 100);
</script>
</body></html>`

func newTestDriver(t *testing.T) *ChromeDriver {
	t.Helper()
	path := FindChrome()
	if path == "" {
		t.Skip("Chrome not available")
	}
	return NewChromeDriver(Options{Headless: true, ChromePath: path, MaxSessions: 1})
}

func newJobsServer() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(jobsPage))
	}))
}

func TestChromeDriver_QueriesRenderedList(t *testing.T) {
	driver := newTestDriver(t)
	server := newJobsServer()
	defer server.Close()

	var titles, hrefs []string
	var missingLocation bool
	err := driver.WithSession(context.Background(), func(s Session) error {
		if err := s.Navigate(server.URL); err != nil {
			return err
		}
		if err := s.WaitVisible("ul.job-list", 10*time.Second); err != nil {
			return err
		}
		items, err := s.QueryAll("li.job-list-item")
		if err != nil {
			return err
		}
		for _, item := range items {
			link, ok, err := s.QueryWithin(item, "h3 a")
			if err != nil || !ok {
				t.Fatalf("link lookup failed: ok=%v err=%v", ok, err)
			}
			text, err := s.Text(link)
			if err != nil {
				return err
			}
			href, _, err := s.Attribute(link, "href")
			if err != nil {
				return err
			}
			titles = append(titles, strings.TrimSpace(text))
			hrefs = append(hrefs, href)

			if _, ok, _ := s.QueryWithin(item, "span.job-location"); !ok {
				missingLocation = true
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithSession failed: %v", err)
	}

	if len(titles) != 2 || titles[0] != "Go Engineer" || titles[1] != "SRE" {
		t.Errorf("unexpected titles: %v", titles)
	}
	if hrefs[0] != "/jobs/1" {
		t.Errorf("unexpected href: %v", hrefs)
	}
	if !missingLocation {
		t.Error("expected the second item to have no location")
	}
	if driver.Active() != 0 {
		t.Errorf("expected no active sessions, got %d", driver.Active())
	}
}

func TestChromeDriver_WaitVisibleTimeout(t *testing.T) {
	driver := newTestDriver(t)
	server := newJobsServer()
	defer server.Close()

	err := driver.WithSession(context.Background(), func(s Session) error {
		if err := s.Navigate(server.URL); err != nil {
			return err
		}
		return s.WaitVisible("ul.never-there", 300*time.Millisecond)
	})
	if fault.KindOf(err) != fault.KindTimeout || fault.DomainOf(err) != fault.DomainRender {
		t.Fatalf("expected render TIMEOUT, got %v", err)
	}
	if driver.Active() != 0 {
		t.Errorf("session leaked after timeout")
	}
}

func TestChromeDriver_TearsDownOnErrorAndPanic(t *testing.T) {
	driver := newTestDriver(t)

	boom := errors.New("boom")
	if err := driver.WithSession(context.Background(), func(Session) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected callback error, got %v", err)
	}
	if driver.Active() != 0 {
		t.Fatalf("session leaked after error")
	}

	err := driver.WithSession(context.Background(), func(Session) error { panic("unexpected") })
	if fault.KindOf(err) != fault.KindSessionFailure {
		t.Fatalf("expected SESSION_FAILURE, got %v", err)
	}
	if driver.Active() != 0 {
		t.Fatalf("session leaked after panic")
	}
}

func TestChromeDriver_SlotAcquireHonorsContext(t *testing.T) {
	driver := NewChromeDriver(Options{MaxSessions: 1, ChromePath: "/nonexistent"})
	driver.slots <- struct{}{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := driver.WithSession(ctx, func(Session) error {
		t.Fatal("callback must not run without a slot")
		return nil
	})
	if fault.KindOf(err) != fault.KindCanceled {
		t.Fatalf("expected CANCELED, got %v", err)
	}
}

func TestChromeDriver_HiddenNodeTextDoesNotBlock(t *testing.T) {
	driver := newTestDriver(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<ul class="job-list"><li class="job-list-item"><span class="job-location" style="display:none">Hidden</span></li></ul>`))
	}))
	defer server.Close()

	start := time.Now()
	var text string
	err := driver.WithSession(context.Background(), func(s Session) error {
		if err := s.Navigate(server.URL); err != nil {
			return err
		}
		items, err := s.QueryAll("li.job-list-item")
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return errors.New("no list items")
		}
		el, ok, err := s.QueryWithin(items[0], "span.job-location")
		if err != nil || !ok {
			return errors.New("location node not found")
		}
		text, err = s.Text(el)
		return err
	})
	if err != nil {
		t.Fatalf("WithSession: %v", err)
	}
	if strings.TrimSpace(text) != "Hidden" {
		t.Errorf("text = %q, want Hidden", text)
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Errorf("reading a hidden node took %s", elapsed)
	}
}
