package creds

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// fetchWithRetry runs do up to attempts times, each attempt under its own
// timeout, back to back. Timeouts are retried without being recorded; other
// failures are retried but the last one is kept and surfaced when the
// budget runs out, falling back to ErrTooManyRetries if nothing was kept.
func fetchWithRetry(ctx context.Context, log zerolog.Logger, attempts int, timeout time.Duration, do func(context.Context) ([]byte, error)) ([]byte, error) {
	if attempts < 1 {
		attempts = 1
	}
	var (
		body []byte
		last error
	)
	op := func() error {
		actx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		b, err := do(actx)
		if err == nil {
			body = b
			return nil
		}
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		if errors.Is(err, context.DeadlineExceeded) {
			log.Debug().Msg("timed out talking to metadata service")
			return err
		}
		log.Debug().Err(err).Msg("request to metadata service failed")
		last = err
		return err
	}
	err := backoff.Retry(op, backoff.WithMaxRetries(&backoff.ZeroBackOff{}, uint64(attempts-1)))
	if err == nil {
		return body, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if last != nil {
		return nil, last
	}
	return nil, ErrTooManyRetries
}

const amazonTimestampFormat = "2006-01-02T15:04:05Z"

func parseAmazonTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(amazonTimestampFormat, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing credential expiry: %w", err)
	}
	return t, nil
}

// metadataDocument is the JSON shape both the ECS container endpoint and
// the EC2 instance metadata endpoint serve.
type metadataDocument struct {
	AccessKeyID     string `json:"AccessKeyId"`
	SecretAccessKey string `json:"SecretAccessKey"`
	Token           string `json:"Token"`
	Expiration      string `json:"Expiration"`
}

func parseMetadata(body []byte) (Metadata, error) {
	var doc metadataDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return Metadata{}, fmt.Errorf("decoding credentials document: %w", err)
	}
	if doc.AccessKeyID == "" || doc.SecretAccessKey == "" {
		return Metadata{}, errors.New("credentials document missing key fields")
	}
	expires, err := parseAmazonTimestamp(doc.Expiration)
	if err != nil {
		return Metadata{}, err
	}
	return Metadata{
		Key:     Key{ID: doc.AccessKeyID, Secret: doc.SecretAccessKey, Token: doc.Token},
		Expires: &expires,
	}, nil
}
