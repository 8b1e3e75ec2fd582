// Package static extracts records from server-rendered HTML returned by a form POST.
package static

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/law-makers/harvest/internal/engine"
	"github.com/law-makers/harvest/internal/fault"
	"github.com/law-makers/harvest/internal/ratelimit"
	"github.com/law-makers/harvest/internal/transport"
	"github.com/law-makers/harvest/pkg/models"
	"github.com/rs/zerolog/log"
)

// DefaultExtraForm are the fixed fields the lookup form expects besides the key
var DefaultExtraForm = map[string]string{
	"displayCaptcha":     "false",
	"userEnteredCaptcha": "dummy",
}

// DefaultHeaders make the form POST look like it came from a browser.
// Accept-Encoding is left to the transport so responses are decoded.
var DefaultHeaders = map[string]string{
	"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
	"Accept-Language": "en-US,en;q=0.9",
	"Connection":      "keep-alive",
}

// Options configures the strategy
type Options struct {
	Endpoint  string
	FormField string
	ExtraForm map[string]string
	Container string
	Headers   map[string]string
	Timeout   time.Duration
}

// Strategy posts the target key to a lookup form and reads the two-column
// label/value result table.
type Strategy struct {
	client   transport.Doer
	governor ratelimit.Admitter
	dict     *engine.FieldDictionary
	opts     Options
}

// New creates a static form strategy with dependency injection
func New(client transport.Doer, governor ratelimit.Admitter, opts Options) *Strategy {
	if opts.FormField == "" {
		opts.FormField = "companyID"
	}
	if opts.Container == "" {
		opts.Container = "table#resultTab1"
	}
	form := make(map[string]string, len(DefaultExtraForm)+len(opts.ExtraForm))
	for k, v := range DefaultExtraForm {
		form[k] = v
	}
	for k, v := range opts.ExtraForm {
		form[k] = v
	}
	opts.ExtraForm = form
	opts.Headers = transport.MergeHeaders(DefaultHeaders, opts.Headers)

	return &Strategy{
		client:   client,
		governor: governor,
		dict:     engine.CompanyFields,
		opts:     opts,
	}
}

// Name returns the name of this strategy
func (s *Strategy) Name() string {
	return "StaticFormStrategy"
}

// Kind returns the served source kind
func (s *Strategy) Kind() models.SourceKind {
	return models.KindStaticForm
}

// Extract posts the lookup form for the target key
func (s *Strategy) Extract(ctx context.Context, target models.ExtractionTarget) ([]*models.CanonicalRecord, error) {
	key := strings.TrimSpace(target.Key)
	if key == "" {
		return nil, fault.Extraction(fault.KindMissingIdentifier, "empty lookup key", nil)
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

	engine.Stage(ctx, models.StateFetching)
	form := url.Values{}
	for k, v := range s.opts.ExtraForm {
		form.Set(k, v)
	}
	form.Set(s.opts.FormField, key)

	// each lookup gets its own cookie jar so form state never leaks between keys
	client := s.client
	if f, ok := client.(transport.SessionFactory); ok {
		sess, err := f.NewSession()
		if err != nil {
			return nil, fault.Transport(fault.KindConnectionFailed, "failed to open session", err)
		}
		client = sess
	}

	resp, err := client.Fetch(ctx, transport.Request{
		Method:         http.MethodPost,
		URL:            s.opts.Endpoint,
		Headers:        s.opts.Headers,
		Form:           form,
		Timeout:        s.opts.Timeout,
		RaiseForStatus: true,
	})
	if err != nil {
		return nil, err
	}
	if err := engine.Checkpoint(ctx); err != nil {
		return nil, err
	}

	engine.Stage(ctx, models.StateParsing)
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, fault.Extraction(fault.KindUpstream, "failed to parse HTML", err).WithStatus(resp.Status)
	}

	table := doc.Find(s.opts.Container).First()
	if table.Length() == 0 {
		return nil, fault.Extraction(fault.KindNotFound,
			"result table "+s.opts.Container+" not found; the key may be invalid or the page layout changed", nil).
			WithDetail("key", key)
	}

	raw := ParseTable(table)

	engine.Stage(ctx, models.StateNormalizing)
	rec, err := engine.Build(s.Kind(), s.dict, raw)
	if err != nil {
		return nil, err
	}

	if !strings.EqualFold(rec.Identifier, key) {
		log.Warn().
			Str("key", key).
			Str("identifier", rec.Identifier).
			Msg("Returned identifier differs from the requested key")
	}

	log.Debug().
		Str("identifier", rec.Identifier).
		Int("raw_fields", rec.RawFragmentCount).
		Int("fields", rec.Attributes.Len()).
		Msg("Company record extracted")

	return []*models.CanonicalRecord{rec}, nil
}

// ParseTable reads rows with exactly two cells as label/value pairs.
// Other rows (headers, spacers, multi-column rows) are ignored.
func ParseTable(table *goquery.Selection) []engine.RawField {
	var raw []engine.RawField
	table.Find("tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.ChildrenFiltered("td")
		if cells.Length() != 2 {
			return
		}
		raw = append(raw, engine.RawField{
			Label: strings.TrimSpace(cells.Eq(0).Text()),
			Value: strings.TrimSpace(cells.Eq(1).Text()),
		})
	})
	return raw
}

var _ engine.Strategy = (*Strategy)(nil)
