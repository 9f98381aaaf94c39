// Package dynawire is a DynamoDB client that speaks the wire protocol
// directly instead of going through the AWS SDK. Items are encoded with the
// attr package, expressions compiled with the expr package, credentials
// come from a creds provider chain and every request is signed with sigv4
// before it goes out over a pluggable transport.
package dynawire

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"

	"github.com/acksell/dynawire/attr"
	"github.com/acksell/dynawire/creds"
	"github.com/acksell/dynawire/sigv4"
	"github.com/acksell/dynawire/transport"
)

// Client issues DynamoDB operations. It is safe for concurrent use.
type Client struct {
	http     transport.HTTP
	creds    creds.Provider
	region   string
	endpoint *url.URL
	throttle ThrottlePolicy
	log      zerolog.Logger
	decoder  attr.Decoder
	clock    func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithEndpoint points the client at a non-default endpoint, e.g. a local
// DynamoDB on http://localhost:8000/.
func WithEndpoint(endpoint *url.URL) Option {
	return func(c *Client) { c.endpoint = endpoint }
}

// WithThrottling replaces the retry pacing policy.
func WithThrottling(policy ThrottlePolicy) Option {
	return func(c *Client) { c.throttle = policy }
}

// WithLogger attaches a logger. The default discards everything. Chain
// providers pick the logger up as well.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) {
		c.log = log
		if chain, ok := c.creds.(*creds.ChainProvider); ok {
			c.creds = chain.WithLogger(log)
		}
	}
}

// WithNumbersAsFloat makes the client's Decoder parse N values into float64
// when decoding into untyped Go values.
func WithNumbersAsFloat() Option {
	return func(c *Client) { c.decoder.Numbers = attr.NumbersAsFloat }
}

// WithClock replaces the time source used for signing and retry pacing.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.clock = now }
}

// NewClient builds a client for one region on the given transport, with
// credentials drawn from provider.
func NewClient(ht transport.HTTP, provider creds.Provider, region string, opts ...Option) *Client {
	c := &Client{
		http:     ht,
		creds:    provider,
		region:   region,
		throttle: DefaultThrottling(),
		log:      zerolog.Nop(),
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type clientEnv struct {
	Region        string `env:"AWS_REGION"`
	DefaultRegion string `env:"AWS_DEFAULT_REGION"`
	EndpointURL   string `env:"DYNAMODB_ENDPOINT_URL"`
}

// NewClientFromEnv builds a client configured from the environment: the
// region from AWS_REGION or AWS_DEFAULT_REGION, and an optional endpoint
// override from DYNAMODB_ENDPOINT_URL.
func NewClientFromEnv(ht transport.HTTP, provider creds.Provider, opts ...Option) (*Client, error) {
	cfg, err := env.ParseAs[clientEnv]()
	if err != nil {
		return nil, fmt.Errorf("reading aws environment: %w", err)
	}
	region := cfg.Region
	if region == "" {
		region = cfg.DefaultRegion
	}
	if region == "" {
		return nil, errors.New("no region configured, set AWS_REGION or AWS_DEFAULT_REGION")
	}
	if cfg.EndpointURL != "" {
		endpoint, err := url.Parse(cfg.EndpointURL)
		if err != nil {
			return nil, fmt.Errorf("parsing DYNAMODB_ENDPOINT_URL: %w", err)
		}
		opts = append([]Option{WithEndpoint(endpoint)}, opts...)
	}
	return NewClient(ht, provider, region, opts...), nil
}

// RegionFromEnv reads AWS_REGION, falling back to AWS_DEFAULT_REGION.
func RegionFromEnv() (string, error) {
	cfg, err := env.ParseAs[clientEnv]()
	if err != nil {
		return "", fmt.Errorf("reading aws environment: %w", err)
	}
	if cfg.Region != "" {
		return cfg.Region, nil
	}
	if cfg.DefaultRegion != "" {
		return cfg.DefaultRegion, nil
	}
	return "", errors.New("no region configured, set AWS_REGION or AWS_DEFAULT_REGION")
}

// Decoder returns the item decoder configured for this client, so callers
// decode result items under the same number mode the client was built with.
func (c *Client) Decoder() attr.Decoder { return c.decoder }

// call runs one operation end to end and decodes the response body into
// out, unless out is nil.
func (c *Client) call(ctx context.Context, action string, payload, out any) error {
	body, err := c.sendRequest(ctx, action, payload)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding %s response: %w", action, err)
	}
	return nil
}

func (c *Client) sendRequest(ctx context.Context, action string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding %s request: %w", action, err)
	}
	start := c.clock()
	schedule := c.throttle.Attempts()
	for attempt := 1; ; attempt++ {
		out, err := c.sendOnce(ctx, action, body)
		if err == nil {
			return out, nil
		}
		if errors.Is(err, ErrExpiredToken) {
			c.log.Debug().Str("action", action).Msg("credentials expired, invalidating provider")
			c.creds.Invalidate()
		}
		if !retryable(err) {
			return nil, err
		}
		delay, retry := schedule(attempt, c.clock().Sub(start))
		if !retry {
			return nil, &Throttled{Err: err}
		}
		if delay < 0 {
			return nil, ErrBrokenThrottleConfig
		}
		c.log.Debug().
			Str("action", action).
			Int("attempt", attempt).
			Dur("delay", delay).
			Err(err).
			Msg("retrying request")
		if err := sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

// sendOnce performs a single signed round trip: fetch a key, sign the
// payload, post it, classify the response.
func (c *Client) sendOnce(ctx context.Context, action string, body []byte) ([]byte, error) {
	key, err := c.creds.GetKey(ctx, c.http)
	if err != nil {
		return nil, fmt.Errorf("fetching credentials: %w", err)
	}
	if key == nil {
		return nil, creds.ErrNoCredentials
	}
	req := sigv4.SignRequest(*key, body, action, c.region, c.endpoint, sigv4.At(c.clock()))
	resp, err := c.http.Post(ctx, req.URL.String(), req.Body, req.Headers)
	if err != nil {
		return nil, err
	}
	if resp.Status == 200 {
		return resp.Body, nil
	}
	return nil, errorFromResponse(resp.Status, resp.Body)
}

var retryableErrors = []error{
	ErrThrottling,
	ErrProvisionedThroughputExceeded,
	ErrRequestLimitExceeded,
	ErrLimitExceeded,
	ErrInternal,
	ErrServiceUnavailable,
	ErrExpiredToken,
}

// retryable reports whether a failed request may be re-sent. Canceled
// transactions never are, even when the cancellation reason on its own
// would be.
func retryable(err error) bool {
	if errors.Is(err, ErrTransactionCanceled) {
		return false
	}
	for _, target := range retryableErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	var failed *transport.RequestFailed
	return errors.As(err, &failed)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
