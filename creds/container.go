package creds

import (
	"context"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"

	"github.com/acksell/dynawire/transport"
)

const containerBaseURL = "http://169.254.170.2"

type containerEnv struct {
	RelativeURI string `env:"AWS_CONTAINER_CREDENTIALS_RELATIVE_URI"`
	FullURI     string `env:"AWS_CONTAINER_CREDENTIALS_FULL_URI"`
	AuthToken   string `env:"AWS_CONTAINER_AUTHORIZATION_TOKEN"`
}

// ContainerProvider fetches credentials from the ECS task metadata
// endpoint. The endpoint comes from AWS_CONTAINER_CREDENTIALS_RELATIVE_URI
// (resolved against 169.254.170.2) or AWS_CONTAINER_CREDENTIALS_FULL_URI;
// with neither set the provider is disabled.
type ContainerProvider struct {
	url       string
	authToken string
	timeout   time.Duration
	attempts  int
	log       zerolog.Logger
	refresher *refresher[Metadata]
}

func Container() *ContainerProvider {
	cfg, err := env.ParseAs[containerEnv]()
	if err != nil {
		cfg = containerEnv{}
	}
	p := &ContainerProvider{
		authToken: cfg.AuthToken,
		timeout:   2 * time.Second,
		attempts:  3,
		log:       zerolog.Nop(),
	}
	switch {
	case cfg.RelativeURI != "":
		p.url = containerBaseURL + cfg.RelativeURI
	case cfg.FullURI != "":
		p.url = cfg.FullURI
	}
	p.refresher = newRefresher("container-metadata", p.fetchMetadata)
	return p
}

func (p *ContainerProvider) GetKey(ctx context.Context, ht transport.HTTP) (*Key, error) {
	if p.IsDisabled() {
		return nil, nil
	}
	md, err := p.refresher.get(ctx, ht)
	if err != nil {
		return nil, err
	}
	key := md.Key
	return &key, nil
}

func (p *ContainerProvider) Invalidate() bool { return p.refresher.invalidate() }
func (p *ContainerProvider) IsDisabled() bool { return p.url == "" }

func (p *ContainerProvider) setLogger(log zerolog.Logger) {
	p.log = log
	p.refresher.log = log
}

func (p *ContainerProvider) fetchMetadata(ctx context.Context, ht transport.HTTP) (Metadata, error) {
	var headers map[string]string
	if p.authToken != "" {
		headers = map[string]string{"Authorization": p.authToken}
	}
	body, err := fetchWithRetry(ctx, p.log, p.attempts, p.timeout, func(actx context.Context) ([]byte, error) {
		return ht.Get(actx, p.url, headers)
	})
	if err != nil {
		return Metadata{}, err
	}
	return parseMetadata(body)
}
