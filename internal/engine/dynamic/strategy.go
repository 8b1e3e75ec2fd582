// Package dynamic extracts list items from pages rendered in a headless browser.
package dynamic

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/law-makers/harvest/internal/engine"
	"github.com/law-makers/harvest/internal/fault"
	"github.com/law-makers/harvest/internal/ratelimit"
	"github.com/law-makers/harvest/internal/render"
	urlutil "github.com/law-makers/harvest/internal/utils/url"
	"github.com/law-makers/harvest/pkg/models"
	"github.com/rs/zerolog/log"
)

// FieldSelector reads one field from inside a list item
type FieldSelector struct {
	Label    string
	Selector string
	// Attr reads an attribute instead of the text content
	Attr string
	// HTML reads the inner HTML instead of the text content
	HTML     bool
	Required bool
}

// DefaultFields describe a job posting card
var DefaultFields = []FieldSelector{
	{Label: "title", Selector: "h3 a", Required: true},
	{Label: "url", Selector: "h3 a", Attr: "href", Required: true},
	{Label: "location", Selector: "span.job-location", Required: true},
	{Label: "team", Selector: "span.job-team"},
	{Label: "employment_type", Selector: "span.job-type"},
	{Label: "posted", Selector: "time.job-posted"},
	{Label: "description", Selector: "div.job-description", HTML: true},
}

// Options configures the strategy
type Options struct {
	// URL is used when a target carries no key
	URL         string
	Container   string
	Item        string
	Fields      []FieldSelector
	WaitTimeout time.Duration
}

// Strategy renders a listing page and turns every item into a record
type Strategy struct {
	driver   render.Driver
	governor ratelimit.Admitter
	dict     *engine.FieldDictionary
	opts     Options
}

// New creates a dynamic list strategy with dependency injection
func New(driver render.Driver, governor ratelimit.Admitter, opts Options) *Strategy {
	if opts.Container == "" {
		opts.Container = "ul.job-list"
	}
	if opts.Item == "" {
		opts.Item = "li.job-list-item"
	}
	if len(opts.Fields) == 0 {
		opts.Fields = DefaultFields
	}
	if opts.WaitTimeout <= 0 {
		opts.WaitTimeout = 30 * time.Second
	}
	return &Strategy{
		driver:   driver,
		governor: governor,
		dict:     engine.JobFields,
		opts:     opts,
	}
}

// Name returns the name of this strategy
func (s *Strategy) Name() string {
	return "DynamicListStrategy"
}

// Kind returns the served source kind
func (s *Strategy) Kind() models.SourceKind {
	return models.KindDynamicList
}

// Extract renders the listing page named by the target key. An empty list
// is a valid result; items missing a required field are skipped.
func (s *Strategy) Extract(ctx context.Context, target models.ExtractionTarget) ([]*models.CanonicalRecord, error) {
	pageURL := strings.TrimSpace(target.Key)
	if pageURL == "" {
		pageURL = s.opts.URL
	}
	if err := urlutil.ValidateURL(pageURL); err != nil {
		return nil, fault.Extraction(fault.KindMissingIdentifier, "invalid listing URL", err)
	}

	engine.Stage(ctx, models.StateRateGated)
	if s.governor != nil {
		if err := s.governor.Admit(engine.Interruptible(ctx), s.Kind()); err != nil {
			return nil, err
		}
	}
	if err := engine.Checkpoint(ctx); err != nil {
		return nil, err
	}

	var items [][]engine.RawField
	skipped := 0
	err := s.driver.WithSession(ctx, func(sess render.Session) error {
		engine.Stage(ctx, models.StateFetching)
		if err := sess.Navigate(pageURL); err != nil {
			return err
		}
		if err := sess.WaitVisible(s.opts.Container, s.opts.WaitTimeout); err != nil {
			if fault.KindOf(err) == fault.KindTimeout && ctx.Err() == nil {
				return fault.Extraction(fault.KindTimeout,
					fmt.Sprintf("list %q did not appear within %s", s.opts.Container, s.opts.WaitTimeout), err)
			}
			return err
		}

		if err := engine.Checkpoint(ctx); err != nil {
			return err
		}

		engine.Stage(ctx, models.StateParsing)
		elements, err := sess.QueryAll(s.opts.Container + " " + s.opts.Item)
		if err != nil {
			return err
		}
		for i, el := range elements {
			if err := engine.Checkpoint(ctx); err != nil {
				return err
			}
			raw, err := s.readItem(sess, el)
			if err != nil {
				if ctx.Err() != nil {
					return fault.FromContext(fault.DomainRender, ctx.Err())
				}
				skipped++
				log.Warn().Int("item", i).Err(err).Msg("Skipping list item")
				continue
			}
			items = append(items, raw)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	engine.Stage(ctx, models.StateNormalizing)
	records := make([]*models.CanonicalRecord, 0, len(items))
	for i, raw := range items {
		for j := range raw {
			if raw[j].Label == "url" {
				raw[j].Value = urlutil.ResolveURL(pageURL, fmt.Sprint(raw[j].Value))
			}
		}
		rec, err := engine.Build(s.Kind(), s.dict, raw)
		if err != nil {
			skipped++
			log.Warn().Int("item", i).Err(err).Msg("Skipping list item without identifier")
			continue
		}
		records = append(records, rec)
	}

	engine.Skipped(ctx, skipped)
	log.Debug().
		Str("url", pageURL).
		Int("records", len(records)).
		Int("skipped", skipped).
		Msg("Listing extracted")

	return records, nil
}

// readItem reads every configured field of one item. A missing required
// field fails the item.
func (s *Strategy) readItem(sess render.Session, item render.Element) ([]engine.RawField, error) {
	raw := make([]engine.RawField, 0, len(s.opts.Fields))
	for _, f := range s.opts.Fields {
		el, ok, err := sess.QueryWithin(item, f.Selector)
		if err != nil {
			return nil, err
		}
		if !ok {
			if f.Required {
				return nil, fmt.Errorf("required field %q (%s) missing", f.Label, f.Selector)
			}
			continue
		}

		var value string
		switch {
		case f.Attr != "":
			v, found, err := sess.Attribute(el, f.Attr)
			if err != nil {
				return nil, err
			}
			if !found && f.Required {
				return nil, fmt.Errorf("required attribute %s of %q missing", f.Attr, f.Label)
			}
			value = v
		case f.HTML:
			value, err = sess.InnerHTML(el)
		default:
			value, err = sess.Text(el)
		}
		if err != nil {
			return nil, err
		}
		raw = append(raw, engine.RawField{Label: f.Label, Value: value})
	}
	return raw, nil
}

var _ engine.Strategy = (*Strategy)(nil)
