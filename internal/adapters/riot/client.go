// Package riot is the match data gateway: a paced, rate-limit aware client for the
// account and match-v5 APIs.
package riot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/okian/champstock/internal/domain/model"
	"github.com/okian/champstock/pkg/logger"
	"github.com/okian/champstock/pkg/metrics"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Defaults.
const (
	DefaultBaseURL    = "https://americas.api.riotgames.com"
	DefaultMatchCount = 20
	DefaultRetryAfter = 10 * time.Second

	defaultMaxRetries = 8
	defaultMaxBackoff = 2 * time.Minute
	defaultTimeout    = 15 * time.Second
	maxErrorBody      = 512
)

// Endpoint labels used in logs and metrics.
const (
	endpointAccount  = "account"
	endpointMatchIDs = "match_ids"
	endpointMatch    = "match"
	endpointTimeline = "timeline"
)

// Client talks to the provider. It is safe for concurrent use.
type Client struct {
	baseURL           string
	apiKey            string
	http              *http.Client
	limiter           *rate.Limiter
	maxRetries        int
	defaultRetryAfter time.Duration
	maxBackoff        time.Duration
	log               logger.Logger
}

// NewClient creates a client authenticating with apiKey.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:           DefaultBaseURL,
		apiKey:            apiKey,
		http:              &http.Client{Timeout: defaultTimeout},
		limiter:           rate.NewLimiter(rate.Limit(20), 20),
		maxRetries:        defaultMaxRetries,
		defaultRetryAfter: DefaultRetryAfter,
		maxBackoff:        defaultMaxBackoff,
		log:               logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.baseURL = strings.TrimRight(c.baseURL, "/")
	return c
}

type account struct {
	PUUID    string `json:"puuid"`
	GameName string `json:"gameName"`
	TagLine  string `json:"tagLine"`
}

// SplitTag splits "gameName#tagLine".
func SplitTag(tag string) (string, string, error) {
	name, line, ok := strings.Cut(tag, "#")
	if !ok || strings.TrimSpace(name) == "" || strings.TrimSpace(line) == "" || strings.Contains(line, "#") {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidTag, tag)
	}
	return name, line, nil
}

// ResolvePUUID maps a player tag to the provider's stable player id.
func (c *Client) ResolvePUUID(ctx context.Context, tag string) (string, error) {
	name, line, err := SplitTag(tag)
	if err != nil {
		return "", err
	}
	var a account
	path := "/riot/account/v1/accounts/by-riot-id/" + url.PathEscape(name) + "/" + url.PathEscape(line)
	if err := c.getJSON(ctx, endpointAccount, path, &a); err != nil {
		return "", err
	}
	if a.PUUID == "" {
		return "", fmt.Errorf("riot %s: empty puuid for %q", endpointAccount, tag)
	}
	return a.PUUID, nil
}

// MatchIDs lists up to count recent match ids, newest first.
func (c *Client) MatchIDs(ctx context.Context, puuid string, count int) ([]string, error) {
	if count <= 0 {
		count = DefaultMatchCount
	}
	path := "/lol/match/v5/matches/by-puuid/" + url.PathEscape(puuid) + "/ids?count=" + strconv.Itoa(count)
	var ids []string
	if err := c.getJSON(ctx, endpointMatchIDs, path, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// Match fetches the detail and the timeline of a match concurrently.
func (c *Client) Match(ctx context.Context, matchID string) (*model.MatchDetail, *model.MatchTimeline, error) {
	var (
		detail   model.MatchDetail
		timeline model.MatchTimeline
	)
	base := "/lol/match/v5/matches/" + url.PathEscape(matchID)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.getJSON(gctx, endpointMatch, base, &detail) })
	g.Go(func() error { return c.getJSON(gctx, endpointTimeline, base+"/timeline", &timeline) })
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return &detail, &timeline, nil
}

// rateLimited carries the provider's suggested wait out of one attempt.
type rateLimited struct {
	after    time.Duration
	hasAfter bool
}

func (r *rateLimited) Error() string { return ErrRateLimited.Error() }
func (r *rateLimited) Unwrap() error { return ErrRateLimited }

// getJSON performs a GET with pacing and bounded 429 retries, decoding into out.
func (c *Client) getJSON(ctx context.Context, endpoint, path string, out any) error {
	var last *rateLimited
	exp := retry.WithCappedDuration(c.maxBackoff, retry.NewExponential(c.defaultRetryAfter))
	backoff := retry.WithMaxRetries(uint64(c.maxRetries), retry.BackoffFunc(func() (time.Duration, bool) {
		next, stop := exp.Next()
		if stop {
			return 0, true
		}
		if last != nil && last.hasAfter {
			next = last.after
		}
		c.log.Warn(ctx, "rate limited, waiting",
			logger.String("endpoint", endpoint),
			logger.Duration("wait", next))
		metrics.RecordRateLimitWait()
		return next, false
	}))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := c.get(ctx, endpoint, path, out)
		var rl *rateLimited
		if errors.As(err, &rl) {
			last = rl
			return retry.RetryableError(err)
		}
		return err
	})
	if errors.Is(err, ErrRateLimited) {
		metrics.RecordRateLimitExhausted()
		return fmt.Errorf("riot %s: %w after %d retries", endpoint, ErrRateLimited, c.maxRetries)
	}
	return err
}

func (c *Client) get(ctx context.Context, endpoint, path string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("riot %s: pacing: %w", endpoint, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("riot %s: %w", endpoint, err)
	}
	req.Header.Set("X-Riot-Token", c.apiKey)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.RecordGatewayRequest(endpoint, "error", float64(time.Since(start).Milliseconds()))
		return fmt.Errorf("riot %s: %w", endpoint, err)
	}
	defer resp.Body.Close()
	metrics.RecordGatewayRequest(endpoint, strconv.Itoa(resp.StatusCode), float64(time.Since(start).Milliseconds()))

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		_, _ = io.Copy(io.Discard, resp.Body)
		after, ok := parseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
		return &rateLimited{after: after, hasAfter: ok}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Code: resp.StatusCode, Endpoint: endpoint, Body: strings.TrimSpace(string(body))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("riot %s: decode: %w", endpoint, err)
	}
	return nil
}

// parseRetryAfter reads delay-seconds or an HTTP date.
func parseRetryAfter(v string, now time.Time) (time.Duration, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	if t, err := http.ParseTime(v); err == nil {
		d := t.Sub(now)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}
