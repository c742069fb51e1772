package midgard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"MidgardPull/internal/domain/models"
	drepo "MidgardPull/internal/domain/repository"
	"MidgardPull/internal/service/ratelimit"
	xhttp "MidgardPull/pkg/http"
	applogger "MidgardPull/pkg/logger"
	"MidgardPull/pkg/util"
)

const (
	depthsPath   = "/v2/history/depths/"
	swapsPath    = "/v2/history/swaps"
	earningsPath = "/v2/history/earnings"
	runePoolPath = "/v2/history/runepool"
)

// Client implements SourceFetcher over the Midgard v2 history API.
type Client struct {
	baseURL  string
	pool     string
	interval string
	http     *xhttp.Client
	limiter  *ratelimit.Limiter
	logger   *applogger.Logger
}

var _ drepo.SourceFetcher = (*Client)(nil)

// Option configures Client.
type Option func(*Client)

// WithPool sets the pool whose depth history is pulled.
func WithPool(pool string) Option {
	return func(c *Client) { c.pool = pool }
}

// WithInterval sets the bucket width requested from Midgard (5min, hour, day).
func WithInterval(interval string) Option {
	return func(c *Client) { c.interval = interval }
}

// WithHTTPClient replaces the transport client.
func WithHTTPClient(hc *xhttp.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithRateLimit paces requests to the source. A nil limiter disables pacing.
func WithRateLimit(l *ratelimit.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// WithLogger sets the logger.
func WithLogger(l *applogger.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a Midgard history client rooted at baseURL.
func New(baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		pool:     "BTC.BTC",
		interval: "hour",
		logger:   applogger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = xhttp.NewClient(xhttp.WithTimeout(timeout))
	}
	return c
}

type historyPayload[T any] struct {
	Intervals []T `json:"intervals"`
}

func (c *Client) FetchDepth(ctx context.Context, cursor int64, count int) ([]models.DepthInterval, error) {
	return fetch[models.DepthInterval](ctx, c, depthsPath+url.PathEscape(c.pool), cursor, count)
}

func (c *Client) FetchSwaps(ctx context.Context, cursor int64, count int) ([]models.SwapsInterval, error) {
	return fetch[models.SwapsInterval](ctx, c, swapsPath, cursor, count)
}

func (c *Client) FetchEarnings(ctx context.Context, cursor int64, count int) ([]models.EarningInterval, error) {
	out, err := fetch[models.EarningInterval](ctx, c, earningsPath, cursor, count)
	if err != nil {
		return nil, err
	}
	for i := range out {
		for _, p := range out[i].Pools {
			if p.Pool == "" {
				return nil, fmt.Errorf("%w: earnings %s: pool without name", drepo.ErrMalformedPayload, out[i].EndTime)
			}
			if err := validateNumbers(p); err != nil {
				return nil, fmt.Errorf("%w: earnings %s pool %s: %v", drepo.ErrMalformedPayload, out[i].EndTime, p.Pool, err)
			}
		}
	}
	return out, nil
}

func (c *Client) FetchRunePool(ctx context.Context, cursor int64, count int) ([]models.RunePoolInterval, error) {
	return fetch[models.RunePoolInterval](ctx, c, runePoolPath, cursor, count)
}

func fetch[T any](ctx context.Context, c *Client, path string, cursor int64, count int) ([]T, error) {
	if err := c.limiter.Wait(ctx, c.baseURL); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%s: rate limit: %w", path, err)
	}

	start := time.Now()
	var body []byte
	err := c.http.SendAndParse(ctx, &xhttp.RequestOptions{
		URL: c.baseURL + path,
		QueryParams: map[string][]string{
			"interval": {c.interval},
			"count":    {strconv.Itoa(count)},
			"from":     {strconv.FormatInt(cursor, 10)},
		},
	}, &body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var se *xhttp.StatusError
		if errors.As(err, &se) {
			return nil, fmt.Errorf("%w: %s: status %d", drepo.ErrSourceUnavailable, path, se.StatusCode)
		}
		return nil, fmt.Errorf("%w: %s: %v", drepo.ErrSourceUnavailable, path, err)
	}

	var payload historyPayload[T]
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", drepo.ErrMalformedPayload, path, err)
	}

	for i := range payload.Intervals {
		if err := validateInterval(payload.Intervals[i]); err != nil {
			return nil, fmt.Errorf("%w: %s[%d]: %v", drepo.ErrMalformedPayload, path, i, err)
		}
	}

	c.logger.Debug("midgard history fetched",
		applogger.String("path", path),
		applogger.Int64("from", cursor),
		applogger.Int("count", len(payload.Intervals)),
		applogger.Duration("took", time.Since(start)),
	)

	if payload.Intervals == nil {
		return []T{}, nil
	}
	return payload.Intervals, nil
}

// validateInterval checks the bucket bounds and that every numeric field is decimal text.
func validateInterval(rec interface{}) error {
	rv := reflect.ValueOf(rec)
	startField := rv.FieldByName("StartTime")
	endField := rv.FieldByName("EndTime")
	if !startField.IsValid() || !endField.IsValid() {
		return fmt.Errorf("record has no time bounds")
	}
	start, err := util.ParseEpoch(startField.String())
	if err != nil {
		return fmt.Errorf("startTime: %w", err)
	}
	end, err := util.ParseEpoch(endField.String())
	if err != nil {
		return fmt.Errorf("endTime: %w", err)
	}
	if end < start {
		return fmt.Errorf("endTime %d before startTime %d", end, start)
	}
	return validateNumbers(rec)
}

// validateNumbers accepts "", "NaN" and anything decimal can parse. Midgard
// sends NaN for ratios without a denominator.
func validateNumbers(rec interface{}) error {
	rv := reflect.ValueOf(rec)
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		f := rt.Field(i)
		if f.Type.Kind() != reflect.String {
			continue
		}
		switch f.Tag.Get("db") {
		case "start_time", "end_time", "pool":
			continue
		}
		v := rv.Field(i).String()
		if v == "" || v == "NaN" {
			continue
		}
		if _, err := decimal.NewFromString(v); err != nil {
			return fmt.Errorf("%s: %q is not a decimal", jsonName(f), v)
		}
	}
	return nil
}

func jsonName(f reflect.StructField) string {
	if name, _, _ := strings.Cut(f.Tag.Get("json"), ","); name != "" {
		return name
	}
	return f.Name
}
