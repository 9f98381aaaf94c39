// Package sigv4 signs DynamoDB requests with AWS Signature Version 4.
//
// The signer is deliberately narrow: it only produces the POST-to-/
// requests the DynamoDB JSON protocol uses, with a fixed set of four
// signed headers. It does not implement general-purpose SigV4 canonical
// request construction.
package sigv4

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"time"

	"github.com/acksell/dynawire/creds"
)

const (
	// Service is the signing service name.
	Service = "dynamodb"
	// ContentType is the content type of every DynamoDB JSON request.
	ContentType = "application/x-amz-json-1.0"
	// TargetPrefix is the API version prefix of the X-Amz-Target header.
	TargetPrefix = "DynamoDB_20120810"

	algorithm     = "AWS4-HMAC-SHA256"
	signedHeaders = "content-type;host;x-amz-date;x-amz-target"

	timestampFormat = "20060102T150405Z"
	dateFormat      = "20060102"
)

// Instant pins a request to a single signing time so the timestamp and
// the credential scope date can never disagree.
type Instant struct {
	t time.Time
}

// At captures t as a signing instant. The time is normalized to UTC.
func At(t time.Time) Instant {
	return Instant{t: t.UTC()}
}

// ParseTimestamp parses an X-Amz-Date header value back into an Instant.
func ParseTimestamp(s string) (Instant, error) {
	t, err := time.Parse(timestampFormat, s)
	if err != nil {
		return Instant{}, fmt.Errorf("parsing signing timestamp: %w", err)
	}
	return Instant{t: t}, nil
}

// Timestamp formats the instant for the X-Amz-Date header.
func (i Instant) Timestamp() string {
	return i.t.Format(timestampFormat)
}

// Date formats the instant for the credential scope.
func (i Instant) Date() string {
	return i.t.Format(dateFormat)
}

// DefaultEndpoint returns the public DynamoDB endpoint for a region.
func DefaultEndpoint(region string) *url.URL {
	return &url.URL{
		Scheme: "https",
		Host:   fmt.Sprintf("dynamodb.%s.amazonaws.com", region),
		Path:   "/",
	}
}

// Request is a fully signed request, ready to be posted as-is.
type Request struct {
	URL     *url.URL
	Headers map[string]string
	Body    []byte
}

// SignRequest signs payload for the given action and returns the request
// to send. A nil endpoint means the public endpoint for the region. The
// payload bytes are hashed exactly as given and must be posted unmodified.
func SignRequest(key creds.Key, payload []byte, action, region string, endpoint *url.URL, at Instant) Request {
	if endpoint == nil {
		endpoint = DefaultEndpoint(region)
	}
	target := TargetPrefix + "." + action
	payloadHash := hexSHA256(payload)

	canonicalHeaders := "content-type:" + ContentType + "\n" +
		"host:" + endpoint.Hostname() + "\n" +
		"x-amz-date:" + at.Timestamp() + "\n" +
		"x-amz-target:" + target + "\n"
	canonicalRequest := "POST\n/\n\n" + canonicalHeaders + "\n" + signedHeaders + "\n" + payloadHash

	scope := at.Date() + "/" + region + "/" + Service + "/aws4_request"
	stringToSign := algorithm + "\n" + at.Timestamp() + "\n" + scope + "\n" + hexSHA256([]byte(canonicalRequest))
	signature := hex.EncodeToString(hmacSHA256(signingKey(key.Secret, region, at), []byte(stringToSign)))

	headers := map[string]string{
		"Content-Type": ContentType,
		"X-Amz-Date":   at.Timestamp(),
		"X-Amz-Target": target,
		"Authorization": fmt.Sprintf(
			"%s Credential=%s/%s, SignedHeaders=%s, Signature=%s",
			algorithm, key.ID, scope, signedHeaders, signature,
		),
	}
	if key.Token != "" {
		headers["X-Amz-Security-Token"] = key.Token
	}
	return Request{URL: endpoint, Headers: headers, Body: payload}
}

// signingKey derives the per-day signing key from the secret key.
func signingKey(secret, region string, at Instant) []byte {
	k := hmacSHA256([]byte("AWS4"+secret), []byte(at.Date()))
	k = hmacSHA256(k, []byte(region))
	k = hmacSHA256(k, []byte(Service))
	return hmacSHA256(k, []byte("aws4_request"))
}

func hmacSHA256(key, data []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return h.Sum(nil)
}

func hexSHA256(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
