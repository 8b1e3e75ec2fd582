// Package render drives a headless browser for pages that build their content with JavaScript.
package render

import (
	"context"
	"time"

	"github.com/chromedp/cdproto/cdp"
)

// Element is a handle to a node inside a live session. It is only valid
// while the session that produced it is open.
type Element struct {
	NodeID cdp.NodeID
	Node   *cdp.Node
}

// Session is one browser tab scoped to a single target
type Session interface {
	Navigate(url string) error
	// WaitVisible returns a render TIMEOUT error when selector does not
	// become visible within timeout
	WaitVisible(selector string, timeout time.Duration) error
	QueryAll(selector string) ([]Element, error)
	// QueryWithin returns the first match below el, and false when none exists
	QueryWithin(el Element, selector string) (Element, bool, error)
	Text(el Element) (string, error)
	Attribute(el Element, name string) (string, bool, error)
	InnerHTML(el Element) (string, error)
	// Location is the URL currently loaded
	Location() (string, error)
}

// Driver hands out sessions. The session passed to fn is torn down when fn
// returns, fails, panics, or ctx is canceled.
type Driver interface {
	WithSession(ctx context.Context, fn func(Session) error) error
}
