package render

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
	"github.com/law-makers/harvest/internal/fault"
)

// chromeSession runs every element read under readTimeout. Reads use
// TextContent and NodeReady so a hidden node is read, not waited on.
type chromeSession struct {
	ctx         context.Context
	readTimeout time.Duration
}

func (s *chromeSession) Navigate(url string) error {
	if err := chromedp.Run(s.ctx, chromedp.Navigate(url)); err != nil {
		return s.classify("navigate to "+url, err)
	}
	return nil
}

func (s *chromeSession) WaitVisible(selector string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()

	err := chromedp.Run(ctx, chromedp.WaitVisible(selector, chromedp.ByQuery))
	if err == nil {
		return nil
	}
	if s.ctx.Err() == nil && ctx.Err() != nil {
		return fault.Render(fault.KindTimeout,
			fmt.Sprintf("%q not visible within %s", selector, timeout), err).
			WithDetail("selector", selector)
	}
	return s.classify("wait for "+selector, err)
}

func (s *chromeSession) QueryAll(selector string) ([]Element, error) {
	var nodes []*cdp.Node
	err := s.read("query "+selector, chromedp.Nodes(selector, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0)))
	if err != nil {
		return nil, err
	}
	return toElements(nodes), nil
}

func (s *chromeSession) QueryWithin(el Element, selector string) (Element, bool, error) {
	if el.Node == nil {
		return Element{}, false, fault.Render(fault.KindSessionFailure, "element has no node", nil)
	}
	var nodes []*cdp.Node
	err := s.read("query "+selector, chromedp.Nodes(selector, &nodes,
		chromedp.ByQueryAll, chromedp.FromNode(el.Node), chromedp.AtLeast(0)))
	if err != nil {
		return Element{}, false, err
	}
	if len(nodes) == 0 {
		return Element{}, false, nil
	}
	return Element{NodeID: nodes[0].NodeID, Node: nodes[0]}, true, nil
}

func (s *chromeSession) Text(el Element) (string, error) {
	var text string
	err := s.read("read text", chromedp.TextContent([]cdp.NodeID{el.NodeID}, &text, chromedp.ByNodeID, chromedp.NodeReady))
	if err != nil {
		return "", err
	}
	return text, nil
}

func (s *chromeSession) Attribute(el Element, name string) (string, bool, error) {
	if el.Node != nil {
		if v, ok := el.Node.Attribute(name); ok {
			return v, true, nil
		}
	}
	var (
		value string
		ok    bool
	)
	err := s.read("read attribute "+name,
		chromedp.AttributeValue([]cdp.NodeID{el.NodeID}, name, &value, &ok, chromedp.ByNodeID, chromedp.NodeReady))
	if err != nil {
		return "", false, err
	}
	return value, ok, nil
}

func (s *chromeSession) InnerHTML(el Element) (string, error) {
	var html string
	err := s.read("read html", chromedp.InnerHTML([]cdp.NodeID{el.NodeID}, &html, chromedp.ByNodeID, chromedp.NodeReady))
	if err != nil {
		return "", err
	}
	return html, nil
}

func (s *chromeSession) Location() (string, error) {
	var loc string
	if err := s.read("read location", chromedp.Location(&loc)); err != nil {
		return "", err
	}
	return loc, nil
}

// read runs one query or read under its own deadline
func (s *chromeSession) read(op string, actions ...chromedp.Action) error {
	ctx, cancel := context.WithTimeout(s.ctx, s.readTimeout)
	defer cancel()

	err := chromedp.Run(ctx, actions...)
	if err == nil {
		return nil
	}
	if s.ctx.Err() == nil && ctx.Err() != nil {
		return fault.Render(fault.KindTimeout, fmt.Sprintf("%s took longer than %s", op, s.readTimeout), err)
	}
	return s.classify(op, err)
}

func (s *chromeSession) classify(op string, err error) error {
	if s.ctx.Err() != nil {
		return fault.FromContext(fault.DomainRender, s.ctx.Err())
	}
	return fault.Render(fault.KindSessionFailure, op, err)
}

func toElements(nodes []*cdp.Node) []Element {
	out := make([]Element, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, Element{NodeID: n.NodeID, Node: n})
	}
	return out
}
