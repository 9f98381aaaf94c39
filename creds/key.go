// Package creds resolves AWS credentials from the environment the process
// runs in: static configuration, environment variables, the shared
// credentials file, ECS container metadata and EC2 instance metadata.
//
// Providers hand out a Key plus optional expiry metadata. The Refresher
// wraps a provider and keeps a cached key fresh, refreshing it in the
// background before it expires so callers almost never wait on the network.
package creds

import (
	"time"

	"github.com/rs/zerolog"
)

// Key is a set of AWS credentials. Token is empty for long-lived keys.
//
// Key redacts itself when printed or logged so secrets never end up in
// log output. Only the access key id is ever emitted.
type Key struct {
	ID     string
	Secret string
	Token  string
}

func (k Key) String() string {
	return "Key(" + k.ID + ")"
}

// MarshalZerologObject logs the access key id only.
func (k Key) MarshalZerologObject(e *zerolog.Event) {
	e.Str("access_key_id", k.ID)
}

// Metadata is a key together with its expiry. Expires is nil for keys
// that never expire, such as static or file-based credentials.
type Metadata struct {
	Key     Key
	Expires *time.Time
}

const (
	// Keys expiring within expiresSoonThreshold are refreshed in the
	// background while the cached key keeps being served.
	expiresSoonThreshold = 15 * time.Minute
	// Keys expiring within expiredThreshold are treated as already
	// expired and callers block until a fresh key arrives.
	expiredThreshold = 10 * time.Minute
)

// ExpiresSoon reports whether the key should be refreshed opportunistically.
func (m Metadata) ExpiresSoon(now time.Time) bool {
	return m.Expires != nil && now.Add(expiresSoonThreshold).After(*m.Expires)
}

// Expired reports whether the key is too close to expiry to be used.
func (m Metadata) Expired(now time.Time) bool {
	return m.Expires != nil && now.Add(expiredThreshold).After(*m.Expires)
}
