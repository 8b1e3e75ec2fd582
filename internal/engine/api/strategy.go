// Package api extracts developer profiles from a paginated REST API.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/law-makers/harvest/internal/engine"
	"github.com/law-makers/harvest/internal/fault"
	"github.com/law-makers/harvest/internal/ratelimit"
	"github.com/law-makers/harvest/internal/transport"
	"github.com/law-makers/harvest/pkg/models"
	"github.com/rs/zerolog/log"
)

// Options configures the strategy
type Options struct {
	BaseURL  string
	Token    string
	MaxPages int
	Headers  map[string]string
	Timeout  time.Duration
}

// repoFields is the allow-list applied to each repository, source key to stored key
var repoFields = []struct{ from, to string }{
	{"name", "name"},
	{"html_url", "url"},
	{"description", "description"},
	{"language", "language"},
	{"stargazers_count", "stars"},
	{"forks_count", "forks"},
	{"created_at", "created_at"},
	{"updated_at", "updated_at"},
}

// Strategy fetches a user profile and follows its repositories collection
type Strategy struct {
	client   transport.Doer
	governor ratelimit.Admitter
	dict     *engine.FieldDictionary
	opts     Options
}

// New creates a paged API strategy with dependency injection
func New(client transport.Doer, governor ratelimit.Admitter, opts Options) *Strategy {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.github.com"
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.MaxPages <= 0 {
		opts.MaxPages = 5
	}
	return &Strategy{
		client:   client,
		governor: governor,
		dict:     engine.DeveloperFields,
		opts:     opts,
	}
}

// Name returns the name of this strategy
func (s *Strategy) Name() string {
	return "PagedAPIStrategy"
}

// Kind returns the served source kind
func (s *Strategy) Kind() models.SourceKind {
	return models.KindPagedAPI
}

// Extract fetches the profile for the target username and its repositories
func (s *Strategy) Extract(ctx context.Context, target models.ExtractionTarget) ([]*models.CanonicalRecord, error) {
	username := strings.TrimSpace(target.Key)
	if username == "" {
		return nil, fault.Extraction(fault.KindMissingIdentifier, "empty username", nil)
	}

	profileURL := fmt.Sprintf("%s/users/%s", s.opts.BaseURL, url.PathEscape(username))
	resp, err := s.get(ctx, profileURL)
	if err != nil {
		return nil, err
	}
	if resp.Status == http.StatusNotFound {
		return nil, fault.Extraction(fault.KindNotFound, fmt.Sprintf("user %q not found", username), nil).
			WithStatus(resp.Status)
	}
	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	engine.Stage(ctx, models.StateParsing)
	var profile map[string]any
	if err := decode(resp.Body, &profile); err != nil {
		return nil, fault.Extraction(fault.KindUpstream, "malformed profile document", err).WithStatus(resp.Status)
	}

	reposURL, _ := profile["repos_url"].(string)
	if reposURL == "" {
		return nil, fault.Extraction(fault.KindUpstream, "profile has no repos_url", nil).WithStatus(resp.Status)
	}

	repos, err := s.fetchRepositories(ctx, reposURL)
	if err != nil {
		return nil, err
	}

	engine.Stage(ctx, models.StateNormalizing)
	raw := make([]engine.RawField, 0, len(profile)+1)
	for k, v := range profile {
		raw = append(raw, engine.RawField{Label: k, Value: v})
	}
	raw = append(raw, engine.RawField{Label: "repositories", Value: repos})

	rec, err := engine.Build(s.Kind(), s.dict, raw)
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("login", rec.Identifier).
		Int("repositories", len(repos)).
		Msg("Developer profile extracted")

	return []*models.CanonicalRecord{rec}, nil
}

// fetchRepositories walks rel="next" links up to MaxPages
func (s *Strategy) fetchRepositories(ctx context.Context, reposURL string) ([]any, error) {
	repos := make([]any, 0)
	next := withPerPage(reposURL)

	for page := 1; next != "" && page <= s.opts.MaxPages; page++ {
		resp, err := s.get(ctx, next)
		if err != nil {
			return nil, err
		}
		if err := checkStatus(resp); err != nil {
			return nil, err
		}

		engine.Stage(ctx, models.StateParsing)
		var items []map[string]any
		if err := decode(resp.Body, &items); err != nil {
			return nil, fault.Extraction(fault.KindUpstream, "malformed repositories page", err).WithStatus(resp.Status)
		}
		for _, item := range items {
			repos = append(repos, pickRepo(item))
		}

		next = NextLink(resp.Headers.Get("Link"))
		if next != "" && page == s.opts.MaxPages {
			log.Info().
				Int("max_pages", s.opts.MaxPages).
				Int("repositories", len(repos)).
				Msg("Repository pagination truncated")
		}
	}
	return repos, nil
}

// get runs one admitted request; each page is a stage boundary
func (s *Strategy) get(ctx context.Context, rawURL string) (*transport.Response, error) {
	if err := engine.Checkpoint(ctx); err != nil {
		return nil, err
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
	headers := transport.MergeHeaders(s.opts.Headers, map[string]string{
		"Accept": "application/vnd.github.v3+json",
	})
	if s.opts.Token != "" {
		headers["Authorization"] = "token " + s.opts.Token
	}

	resp, err := s.client.Fetch(ctx, transport.Request{
		Method:  http.MethodGet,
		URL:     rawURL,
		Headers: headers,
		Timeout: s.opts.Timeout,
	})
	if err != nil {
		return nil, err
	}
	if s.governor != nil {
		s.governor.Observe(s.Kind(), resp.Headers)
	}
	if err := engine.Checkpoint(ctx); err != nil {
		return nil, err
	}
	return resp, nil
}

// checkStatus classifies non-2xx responses. 403/429 with an exhausted quota
// or a Retry-After header mean the server is rate limiting us.
func checkStatus(resp *transport.Response) error {
	if resp.Status >= 200 && resp.Status < 300 {
		return nil
	}
	if resp.Status == http.StatusForbidden || resp.Status == http.StatusTooManyRequests {
		if resp.Headers.Get("X-RateLimit-Remaining") == "0" || resp.Headers.Get("Retry-After") != "" {
			return fault.Extraction(fault.KindRateLimited, "API rate limit exceeded", nil).
				WithStatus(resp.Status).
				WithDetail("reset", resp.Headers.Get("X-RateLimit-Reset"))
		}
	}
	return fault.Extraction(fault.KindUpstream,
		fmt.Sprintf("%s returned %d %s", resp.URL, resp.Status, http.StatusText(resp.Status)), nil).
		WithStatus(resp.Status)
}

func decode(body []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	return dec.Decode(v)
}

func pickRepo(item map[string]any) map[string]any {
	out := make(map[string]any, len(repoFields))
	for _, f := range repoFields {
		out[f.to] = item[f.from]
	}
	return out
}

func withPerPage(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	if q.Get("per_page") == "" {
		q.Set("per_page", "100")
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// NextLink returns the rel="next" target of an RFC 8288 Link header, or ""
func NextLink(header string) string {
	for _, part := range strings.Split(header, ",") {
		segments := strings.Split(part, ";")
		if len(segments) < 2 {
			continue
		}
		target := strings.TrimSpace(segments[0])
		if !strings.HasPrefix(target, "<") || !strings.HasSuffix(target, ">") {
			continue
		}
		for _, param := range segments[1:] {
			param = strings.TrimSpace(param)
			if strings.EqualFold(param, `rel="next"`) || strings.EqualFold(param, "rel=next") {
				return strings.Trim(target, "<>")
			}
		}
	}
	return ""
}

var _ engine.Strategy = (*Strategy)(nil)
