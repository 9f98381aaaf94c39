package creds

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/acksell/dynawire/transport"
)

const (
	imdsBaseURL   = "http://169.254.169.254"
	imdsTokenPath = "/latest/api/token/"
	imdsRolePath  = "/latest/meta-data/iam/security-credentials/"
	// Session duration for IMDSv2 tokens, the maximum the service allows.
	imdsTokenTTL = 6 * 60 * 60
)

func imdsDisabled() bool {
	return strings.EqualFold(os.Getenv("AWS_EC2_METADATA_DISABLED"), "true")
}

type authToken struct {
	value   string
	expires time.Time
}

func (t authToken) expiresAt() (time.Time, bool) { return t.expires, true }

// InstanceMetadataV2Provider fetches credentials from the EC2 instance
// metadata service using IMDSv2: a session token is acquired with a PUT
// and sent along on the role discovery and credential fetches.
type InstanceMetadataV2Provider struct {
	baseURL  string
	timeout  time.Duration
	attempts int
	disabled bool
	log      zerolog.Logger
	token    *refresher[authToken]
	creds    *refresher[Metadata]
}

func InstanceMetadataV2() *InstanceMetadataV2Provider {
	p := &InstanceMetadataV2Provider{
		baseURL:  imdsBaseURL,
		timeout:  time.Second,
		attempts: 1,
		disabled: imdsDisabled(),
		log:      zerolog.Nop(),
	}
	p.token = newRefresher("imdsv2-token", p.fetchToken)
	p.creds = newRefresher("instance-metadata-v2", p.fetchMetadata)
	return p
}

func (p *InstanceMetadataV2Provider) GetKey(ctx context.Context, ht transport.HTTP) (*Key, error) {
	if p.disabled {
		return nil, nil
	}
	md, err := p.creds.get(ctx, ht)
	if err != nil {
		return nil, err
	}
	key := md.Key
	return &key, nil
}

func (p *InstanceMetadataV2Provider) Invalidate() bool { return p.creds.invalidate() }
func (p *InstanceMetadataV2Provider) IsDisabled() bool { return p.disabled }

func (p *InstanceMetadataV2Provider) setLogger(log zerolog.Logger) {
	p.log = log
	p.token.log = log
	p.creds.log = log
}

func (p *InstanceMetadataV2Provider) fetchToken(ctx context.Context, ht transport.HTTP) (authToken, error) {
	expires := time.Now().UTC().Add(imdsTokenTTL * time.Second)
	body, err := fetchWithRetry(ctx, p.log, p.attempts, p.timeout, func(actx context.Context) ([]byte, error) {
		return ht.Put(actx, p.baseURL+imdsTokenPath, map[string]string{
			"X-aws-ec2-metadata-token-ttl-seconds": strconv.Itoa(imdsTokenTTL),
		})
	})
	if err != nil {
		return authToken{}, err
	}
	return authToken{value: string(body), expires: expires}, nil
}

func (p *InstanceMetadataV2Provider) fetchMetadata(ctx context.Context, ht transport.HTTP) (Metadata, error) {
	token, err := p.token.get(ctx, ht)
	if err != nil {
		return Metadata{}, fmt.Errorf("fetching instance metadata token: %w", err)
	}
	headers := map[string]string{"X-aws-ec2-metadata-token": token.value}
	return fetchRoleCredentials(ctx, p.log, ht, p.baseURL, headers, p.attempts, p.timeout)
}

// InstanceMetadataV1Provider fetches credentials from the EC2 instance
// metadata service using plain IMDSv1 GETs. Kept as the last resort for
// environments without IMDSv2.
type InstanceMetadataV1Provider struct {
	baseURL   string
	timeout   time.Duration
	attempts  int
	disabled  bool
	log       zerolog.Logger
	refresher *refresher[Metadata]
}

func InstanceMetadataV1() *InstanceMetadataV1Provider {
	p := &InstanceMetadataV1Provider{
		baseURL:  imdsBaseURL,
		timeout:  time.Second,
		attempts: 1,
		disabled: imdsDisabled(),
		log:      zerolog.Nop(),
	}
	p.refresher = newRefresher("instance-metadata-v1", p.fetchMetadata)
	return p
}

func (p *InstanceMetadataV1Provider) GetKey(ctx context.Context, ht transport.HTTP) (*Key, error) {
	if p.disabled {
		return nil, nil
	}
	md, err := p.refresher.get(ctx, ht)
	if err != nil {
		return nil, err
	}
	key := md.Key
	return &key, nil
}

func (p *InstanceMetadataV1Provider) Invalidate() bool { return p.refresher.invalidate() }
func (p *InstanceMetadataV1Provider) IsDisabled() bool { return p.disabled }

func (p *InstanceMetadataV1Provider) setLogger(log zerolog.Logger) {
	p.log = log
	p.refresher.log = log
}

func (p *InstanceMetadataV1Provider) fetchMetadata(ctx context.Context, ht transport.HTTP) (Metadata, error) {
	return fetchRoleCredentials(ctx, p.log, ht, p.baseURL, nil, p.attempts, p.timeout)
}

// fetchRoleCredentials discovers the instance role, then fetches and
// parses that role's credentials document.
func fetchRoleCredentials(ctx context.Context, log zerolog.Logger, ht transport.HTTP, baseURL string, headers map[string]string, attempts int, timeout time.Duration) (Metadata, error) {
	role, err := fetchWithRetry(ctx, log, attempts, timeout, func(actx context.Context) ([]byte, error) {
		return ht.Get(actx, baseURL+imdsRolePath, headers)
	})
	if err != nil {
		return Metadata{}, fmt.Errorf("discovering instance role: %w", err)
	}
	body, err := fetchWithRetry(ctx, log, attempts, timeout, func(actx context.Context) ([]byte, error) {
		return ht.Get(actx, baseURL+imdsRolePath+string(role), headers)
	})
	if err != nil {
		return Metadata{}, fmt.Errorf("fetching credentials for role %s: %w", role, err)
	}
	return parseMetadata(body)
}
