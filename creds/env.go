package creds

import (
	"context"

	"github.com/caarlos0/env/v11"

	"github.com/acksell/dynawire/transport"
)

type envKey struct {
	AccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`
	SessionToken    string `env:"AWS_SESSION_TOKEN"`
}

// EnvironmentProvider reads static credentials from the environment once,
// at construction. Disabled when the key id or secret is missing.
type EnvironmentProvider struct {
	key *Key
}

func Environment() *EnvironmentProvider {
	cfg, err := env.ParseAs[envKey]()
	if err != nil || cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return &EnvironmentProvider{}
	}
	return &EnvironmentProvider{key: &Key{
		ID:     cfg.AccessKeyID,
		Secret: cfg.SecretAccessKey,
		Token:  cfg.SessionToken,
	}}
}

func (p *EnvironmentProvider) GetKey(context.Context, transport.HTTP) (*Key, error) {
	return p.key, nil
}

func (p *EnvironmentProvider) Invalidate() bool { return false }
func (p *EnvironmentProvider) IsDisabled() bool { return p.key == nil }
