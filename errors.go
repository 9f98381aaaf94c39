package dynawire

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for everything DynamoDB reports through its error
// envelope. Match with errors.Is; the returned error usually wraps the
// sentinel together with the server's message.
var (
	ErrItemNotFound = errors.New("item not found")

	ErrTableNotFound                   = errors.New("table not found")
	ErrConditionalCheckFailed          = errors.New("conditional check failed")
	ErrTransactionCanceled             = errors.New("transaction canceled")
	ErrTransactionInProgress           = errors.New("transaction in progress")
	ErrTransactionConflict             = errors.New("transaction conflict")
	ErrIdempotentParameterMismatch     = errors.New("idempotent parameter mismatch")
	ErrProvisionedThroughputExceeded   = errors.New("provisioned throughput exceeded")
	ErrItemCollectionSizeLimitExceeded = errors.New("item collection size limit exceeded")
	ErrRequestLimitExceeded            = errors.New("request limit exceeded")
	ErrLimitExceeded                   = errors.New("limit exceeded")
	ErrThrottling                      = errors.New("request throttled by dynamodb")
	ErrValidation                      = errors.New("validation error")
	ErrSerialization                   = errors.New("serialization error")
	ErrResourceInUse                   = errors.New("resource in use")
	ErrAccessDenied                    = errors.New("access denied")
	ErrUnrecognizedClient              = errors.New("unrecognized client")
	ErrExpiredToken                    = errors.New("security token expired")
	ErrInvalidSignature                = errors.New("invalid request signature")
	ErrMissingAuthenticationToken      = errors.New("missing authentication token")
	ErrUnknownOperation                = errors.New("unknown operation")
	ErrInternal                        = errors.New("internal dynamodb error")
	ErrServiceUnavailable              = errors.New("dynamodb unavailable")

	// ErrEmptyUpdate is returned by UpdateItem when the update expression
	// contains no actions. Sending it would be a wire protocol violation.
	ErrEmptyUpdate = errors.New("update expression has no actions")

	// ErrBrokenThrottleConfig reports a ThrottlePolicy whose schedule
	// returned a negative delay.
	ErrBrokenThrottleConfig = errors.New("throttle policy returned a negative delay")
)

// serverErrors maps the name after the # in an error envelope's __type to
// the sentinel it should surface as.
var serverErrors = map[string]error{
	"ResourceNotFoundException":                ErrTableNotFound,
	"ConditionalCheckFailedException":          ErrConditionalCheckFailed,
	"TransactionInProgressException":           ErrTransactionInProgress,
	"TransactionConflictException":             ErrTransactionConflict,
	"IdempotentParameterMismatchException":     ErrIdempotentParameterMismatch,
	"ProvisionedThroughputExceededException":   ErrProvisionedThroughputExceeded,
	"ItemCollectionSizeLimitExceededException": ErrItemCollectionSizeLimitExceeded,
	"RequestLimitExceeded":                     ErrRequestLimitExceeded,
	"LimitExceededException":                   ErrLimitExceeded,
	"ThrottlingException":                      ErrThrottling,
	"ValidationException":                      ErrValidation,
	"SerializationException":                   ErrSerialization,
	"ResourceInUseException":                   ErrResourceInUse,
	"AccessDeniedException":                    ErrAccessDenied,
	"UnrecognizedClientException":              ErrUnrecognizedClient,
	"ExpiredTokenException":                    ErrExpiredToken,
	"InvalidSignatureException":                ErrInvalidSignature,
	"MissingAuthenticationTokenException":      ErrMissingAuthenticationToken,
	"UnknownOperationException":                ErrUnknownOperation,
	"InternalServerError":                      ErrInternal,
	"ServiceUnavailable":                       ErrServiceUnavailable,
}

// cancellationReasons maps the per-action codes of a canceled transaction.
// These are bare codes, not exception names.
var cancellationReasons = map[string]error{
	"ConditionalCheckFailed":          ErrConditionalCheckFailed,
	"TransactionConflict":             ErrTransactionConflict,
	"ProvisionedThroughputExceeded":   ErrProvisionedThroughputExceeded,
	"ItemCollectionSizeLimitExceeded": ErrItemCollectionSizeLimitExceeded,
	"ThrottlingError":                 ErrThrottling,
	"ValidationError":                 ErrValidation,
}

// CancellationReason explains why one action of a transaction was refused.
// Actions that did not cause the cancellation carry the code "None".
type CancellationReason struct {
	Code    string
	Message string
}

// TransactionCanceled reports a refused transaction with one reason per
// action, in action order. It unwraps to ErrTransactionCanceled and, when
// the first reason maps to a known sentinel, to that sentinel as well, so
// errors.Is(err, ErrConditionalCheckFailed) works on a transaction refused
// by a condition.
type TransactionCanceled struct {
	Reasons []CancellationReason
	cause   error
}

func (e *TransactionCanceled) Error() string {
	codes := make([]string, 0, len(e.Reasons))
	for _, r := range e.Reasons {
		codes = append(codes, r.Code)
	}
	if len(codes) == 0 {
		return "transaction canceled"
	}
	return "transaction canceled: " + strings.Join(codes, ", ")
}

func (e *TransactionCanceled) Unwrap() []error {
	if e.cause == nil {
		return []error{ErrTransactionCanceled}
	}
	return []error{ErrTransactionCanceled, e.cause}
}

// UnknownError carries a response the client could not classify.
type UnknownError struct {
	Status int
	Body   []byte
}

func (e *UnknownError) Error() string {
	return fmt.Sprintf("unclassified dynamodb error (status %d): %s", e.Status, e.Body)
}

// Throttled is returned when the throttle policy gives up on a request that
// kept failing with retryable errors. It wraps the last of those.
type Throttled struct {
	Err error
}

func (e *Throttled) Error() string {
	return fmt.Sprintf("request retry budget exhausted: %v", e.Err)
}

func (e *Throttled) Unwrap() error { return e.Err }

type errorEnvelope struct {
	Type                string               `json:"__type"`
	Message             string               `json:"message"`
	AltMessage          string               `json:"Message"`
	CancellationReasons []cancellationReason `json:"CancellationReasons"`
}

type cancellationReason struct {
	Code    string `json:"Code"`
	Message string `json:"Message"`
}

func (e errorEnvelope) message() string {
	if e.Message != "" {
		return e.Message
	}
	return e.AltMessage
}

// errorFromResponse turns a non-200 response into a typed error. The
// envelope's __type looks like "com.amazonaws.dynamodb.v20120810#Name";
// only the part after the # identifies the error. Responses that carry no
// parseable envelope fall back to the status code: 500 means DynamoDB
// itself broke, 503 that it is unavailable, anything else is unknown.
func errorFromResponse(status int, body []byte) error {
	var envelope errorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil {
		if _, name, found := strings.Cut(envelope.Type, "#"); found {
			if err := envelopeError(name, envelope); err != nil {
				return err
			}
		}
	}
	switch status {
	case 500:
		return ErrInternal
	case 503:
		return ErrServiceUnavailable
	}
	return &UnknownError{Status: status, Body: body}
}

func envelopeError(name string, envelope errorEnvelope) error {
	if name == "TransactionCanceledException" {
		return transactionCanceled(envelope)
	}
	sentinel, ok := serverErrors[name]
	if !ok {
		return nil
	}
	if msg := envelope.message(); msg != "" {
		return fmt.Errorf("%s: %w", msg, sentinel)
	}
	return sentinel
}

func transactionCanceled(envelope errorEnvelope) error {
	e := &TransactionCanceled{}
	for _, r := range envelope.CancellationReasons {
		e.Reasons = append(e.Reasons, CancellationReason{Code: r.Code, Message: r.Message})
	}
	if len(e.Reasons) > 0 {
		e.cause = cancellationReasons[e.Reasons[0].Code]
	}
	return e
}
