package dynamic

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/law-makers/harvest/internal/engine"
	"github.com/law-makers/harvest/internal/fault"
	"github.com/law-makers/harvest/internal/render"
	"github.com/law-makers/harvest/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeNode is one element of an in-memory page
type fakeNode struct {
	text     string
	html     string
	attrs    map[string]string
	children map[string]cdp.NodeID
	// stuck reads time out the way a hidden node does in a real browser
	stuck bool
}

type fakePage struct {
	visible bool
	items   []cdp.NodeID
	nodes   map[cdp.NodeID]*fakeNode
}

type fakeSession struct {
	page      *fakePage
	navigated string
	closed    bool
}

func (s *fakeSession) Navigate(url string) error {
	s.navigated = url
	return nil
}

func (s *fakeSession) WaitVisible(selector string, timeout time.Duration) error {
	if !s.page.visible {
		return fault.Render(fault.KindTimeout, selector+" not visible", context.DeadlineExceeded)
	}
	return nil
}

func (s *fakeSession) QueryAll(selector string) ([]render.Element, error) {
	out := make([]render.Element, 0, len(s.page.items))
	for _, id := range s.page.items {
		out = append(out, render.Element{NodeID: id})
	}
	return out, nil
}

func (s *fakeSession) QueryWithin(el render.Element, selector string) (render.Element, bool, error) {
	n, ok := s.page.nodes[el.NodeID]
	if !ok {
		return render.Element{}, false, errors.New("stale node")
	}
	child, ok := n.children[selector]
	if !ok {
		return render.Element{}, false, nil
	}
	return render.Element{NodeID: child}, true, nil
}

func (s *fakeSession) Text(el render.Element) (string, error) {
	n := s.page.nodes[el.NodeID]
	if n.stuck {
		return "", fault.Render(fault.KindTimeout, "read text timed out", context.DeadlineExceeded)
	}
	return n.text, nil
}

func (s *fakeSession) Attribute(el render.Element, name string) (string, bool, error) {
	v, ok := s.page.nodes[el.NodeID].attrs[name]
	return v, ok, nil
}

func (s *fakeSession) InnerHTML(el render.Element) (string, error) {
	return s.page.nodes[el.NodeID].html, nil
}

func (s *fakeSession) Location() (string, error) {
	return s.navigated, nil
}

type fakeDriver struct {
	page     *fakePage
	sessions []*fakeSession
}

func (d *fakeDriver) WithSession(ctx context.Context, fn func(render.Session) error) error {
	sess := &fakeSession{page: d.page}
	d.sessions = append(d.sessions, sess)
	defer func() { sess.closed = true }()
	return fn(sess)
}

// pageBuilder assembles a listing one job card at a time
type pageBuilder struct {
	page *fakePage
	next cdp.NodeID
}

func newPage() *pageBuilder {
	return &pageBuilder{page: &fakePage{visible: true, nodes: map[cdp.NodeID]*fakeNode{}}, next: 1}
}

func (b *pageBuilder) node(n *fakeNode) cdp.NodeID {
	id := b.next
	b.next++
	b.page.nodes[id] = n
	return id
}

func (b *pageBuilder) job(title, href, location, team, description string) *pageBuilder {
	item := &fakeNode{children: map[string]cdp.NodeID{}}
	if title != "" || href != "" {
		item.children["h3 a"] = b.node(&fakeNode{text: title, attrs: map[string]string{"href": href}})
	}
	if location != "" {
		item.children["span.job-location"] = b.node(&fakeNode{text: location})
	}
	if team != "" {
		item.children["span.job-team"] = b.node(&fakeNode{text: team})
	}
	if description != "" {
		item.children["div.job-description"] = b.node(&fakeNode{html: description})
	}
	b.page.items = append(b.page.items, b.node(item))
	return b
}

// hiddenLocation makes the location of the last added job unreadable
func (b *pageBuilder) hiddenLocation() *pageBuilder {
	item := b.page.nodes[b.page.items[len(b.page.items)-1]]
	b.page.nodes[item.children["span.job-location"]].stuck = true
	return b
}

func TestExtract_ListItemsBecomeRecords(t *testing.T) {
	page := newPage().
		job("Backend Engineer", "/jobs/1", "Berlin", "Platform", "<p>Build <strong>things</strong></p>").
		job(" Designer ", "https://careers.example.com/jobs/2#apply", "Remote", "", "").
		page
	driver := &fakeDriver{page: page}

	var stages []models.TargetState
	ctx := engine.WithStageReporter(context.Background(), func(s models.TargetState) { stages = append(stages, s) })

	s := New(driver, nil, Options{URL: "https://careers.example.com/jobs"})
	records, err := s.Extract(ctx, models.ExtractionTarget{SourceKind: models.KindDynamicList})
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "https://careers.example.com/jobs/1", records[0].Identifier)
	assert.Equal(t, "Backend Engineer", records[0].Attributes.String("title"))
	assert.Equal(t, "Platform", records[0].Attributes.String("team"))
	assert.Equal(t, "Build **things**", records[0].Attributes.String("description"))

	assert.Equal(t, "https://careers.example.com/jobs/2", records[1].Identifier)
	assert.Equal(t, "Designer", records[1].Attributes.String("title"))
	_, hasTeam := records[1].Attributes.Get("team")
	assert.False(t, hasTeam)

	require.Len(t, driver.sessions, 1)
	assert.Equal(t, "https://careers.example.com/jobs", driver.sessions[0].navigated)
	assert.True(t, driver.sessions[0].closed)

	assert.Equal(t, []models.TargetState{
		models.StateRateGated, models.StateFetching, models.StateParsing, models.StateNormalizing,
	}, stages)
}

func TestExtract_TargetKeyOverridesDefaultURL(t *testing.T) {
	driver := &fakeDriver{page: newPage().job("SRE", "/jobs/9", "Austin", "", "").page}

	s := New(driver, nil, Options{URL: "https://careers.example.com/jobs"})
	records, err := s.Extract(context.Background(), models.ExtractionTarget{Key: "https://other.example.org/openings/"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "https://other.example.org/jobs/9", records[0].Identifier)
	assert.Equal(t, "https://other.example.org/openings/", driver.sessions[0].navigated)
}

func TestExtract_ItemMissingRequiredFieldIsSkipped(t *testing.T) {
	page := newPage().
		job("Writer", "/jobs/3", "", "", "").
		job("Analyst", "/jobs/4", "Lisbon", "", "").
		job("Nameless", "", "Oslo", "", "").
		page

	s := New(&fakeDriver{page: page}, nil, Options{URL: "https://careers.example.com/jobs"})
	records, err := s.Extract(context.Background(), models.ExtractionTarget{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Analyst", records[0].Attributes.String("title"))
}

func TestExtract_EmptyListIsNotAnError(t *testing.T) {
	s := New(&fakeDriver{page: newPage().page}, nil, Options{URL: "https://careers.example.com/jobs"})
	records, err := s.Extract(context.Background(), models.ExtractionTarget{})
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestExtract_ContainerTimeout(t *testing.T) {
	page := newPage().page
	page.visible = false
	driver := &fakeDriver{page: page}

	s := New(driver, nil, Options{URL: "https://careers.example.com/jobs", WaitTimeout: time.Second})
	_, err := s.Extract(context.Background(), models.ExtractionTarget{})
	require.Error(t, err)
	assert.Equal(t, fault.KindTimeout, fault.KindOf(err))
	assert.Equal(t, fault.DomainExtraction, fault.DomainOf(err))
	assert.True(t, strings.Contains(err.Error(), "ul.job-list"), err.Error())
	assert.True(t, driver.sessions[0].closed)
}

func TestExtract_InvalidURL(t *testing.T) {
	driver := &fakeDriver{page: newPage().page}
	_, err := New(driver, nil, Options{}).Extract(context.Background(), models.ExtractionTarget{Key: "not a url"})
	assert.True(t, errors.Is(err, fault.ErrMissingIdentifier), "got %v", err)
	assert.Empty(t, driver.sessions)
}

func TestExtract_ReportsSkippedItems(t *testing.T) {
	page := newPage().
		job("Writer", "/jobs/3", "", "", "").
		job("Analyst", "/jobs/4", "Lisbon", "", "").
		page

	skipped := 0
	ctx := engine.WithSkipCounter(context.Background(), func(n int) { skipped += n })

	s := New(&fakeDriver{page: page}, nil, Options{URL: "https://careers.example.com/jobs"})
	_, err := s.Extract(ctx, models.ExtractionTarget{})
	require.NoError(t, err)
	assert.Equal(t, 1, skipped)
}

func TestExtract_FieldReadTimeoutSkipsOnlyThatItem(t *testing.T) {
	page := newPage().
		job("Writer", "/jobs/3", "Porto", "", "").
		job("Analyst", "/jobs/4", "Lisbon", "", "").hiddenLocation().
		job("Editor", "/jobs/5", "Faro", "", "").
		page

	skipped := 0
	ctx := engine.WithSkipCounter(context.Background(), func(n int) { skipped += n })

	s := New(&fakeDriver{page: page}, nil, Options{URL: "https://careers.example.com/jobs"})
	records, err := s.Extract(ctx, models.ExtractionTarget{})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "Writer", records[0].Attributes.String("title"))
	assert.Equal(t, "Editor", records[1].Attributes.String("title"))
	assert.Equal(t, 1, skipped)
}

func TestExtract_CanceledBatchDoesNotRender(t *testing.T) {
	page := newPage().
		job("Writer", "/jobs/3", "Porto", "", "").
		job("Analyst", "/jobs/4", "Lisbon", "", "").
		page

	batch, cancel := context.WithCancel(context.Background())
	ctx, release := engine.Detach(batch, time.Minute)
	defer release()
	cancel()

	driver := &fakeDriver{page: page}
	_, err := New(driver, nil, Options{URL: "https://careers.example.com/jobs"}).
		Extract(ctx, models.ExtractionTarget{})
	require.Error(t, err)
	assert.Equal(t, fault.KindCanceled, fault.KindOf(err))
	assert.Empty(t, driver.sessions)
}
