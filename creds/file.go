package creds

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/ini.v1"

	"github.com/acksell/dynawire/transport"
)

// FileProvider reads the AWS shared credentials file.
//
// The file is read once, at construction. A cleanly absent file disables
// the provider; a file that exists but cannot be used (unparseable,
// missing profile, profile without keys) is surfaced as an error from
// GetKey so a chain logs it instead of skipping it silently.
type FileProvider struct {
	key *Key
	err error
}

// File loads credentials from path, defaulting to ~/.aws/credentials.
// An empty profile means $AWS_PROFILE, falling back to "default". Profile
// keys are aws_access_key_id, aws_secret_access_key and the optional
// aws_session_token.
func File(path, profile string) *FileProvider {
	if profile == "" {
		profile = os.Getenv("AWS_PROFILE")
		if profile == "" {
			profile = "default"
		}
	}
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return &FileProvider{}
		}
		path = filepath.Join(home, ".aws", "credentials")
	}

	p := &FileProvider{}
	if _, err := os.Stat(path); err != nil {
		return p
	}
	cfg, err := ini.Load(path)
	if err != nil {
		p.err = fmt.Errorf("parsing credentials file %s: %w", path, err)
		return p
	}
	section, err := cfg.GetSection(profile)
	if err != nil {
		p.err = fmt.Errorf("profile %q not found in credentials file %s: %w", profile, path, err)
		return p
	}
	id := section.Key("aws_access_key_id").String()
	secret := section.Key("aws_secret_access_key").String()
	if id == "" || secret == "" {
		p.err = fmt.Errorf("profile %q in credentials file %s does not contain credentials", profile, path)
		return p
	}
	p.key = &Key{ID: id, Secret: secret, Token: section.Key("aws_session_token").String()}
	return p
}

func (p *FileProvider) GetKey(context.Context, transport.HTTP) (*Key, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.key, nil
}

func (p *FileProvider) Invalidate() bool { return false }
func (p *FileProvider) IsDisabled() bool { return p.key == nil && p.err == nil }
