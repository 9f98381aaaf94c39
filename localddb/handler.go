package localddb

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/acksell/dynawire/sigv4"
)

// wireError is an error reported through the DynamoDB error envelope: an
// HTTP status plus the exception name that goes after the # in __type.
type wireError struct {
	status  int
	name    string
	message string
	reasons []reason
}

// reason is one entry of a canceled transaction's CancellationReasons.
type reason struct {
	Code    string `json:"Code"`
	Message string `json:"Message,omitempty"`
}

func (e *wireError) Error() string { return e.name + ": " + e.message }

func validationErr(format string, args ...any) *wireError {
	return &wireError{
		status:  http.StatusBadRequest,
		name:    "ValidationException",
		message: fmt.Sprintf(format, args...),
	}
}

func serializationErr(err error) *wireError {
	return &wireError{
		status:  http.StatusBadRequest,
		name:    "SerializationException",
		message: err.Error(),
	}
}

func conditionFailedErr() *wireError {
	return &wireError{
		status:  http.StatusBadRequest,
		name:    "ConditionalCheckFailedException",
		message: "The conditional request failed",
	}
}

func invalidSignatureErr() *wireError {
	return &wireError{
		status:  http.StatusForbidden,
		name:    "InvalidSignatureException",
		message: "The request signature we calculated does not match the signature you provided",
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("x-amzn-RequestId", uuid.NewString())
	w.Header().Set("Content-Type", sigv4.ContentType)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeWireError(w, &wireError{status: http.StatusInternalServerError, name: "InternalServerError", message: "reading request body"})
		return
	}

	action, werr := s.authenticate(r, body)
	if werr != nil {
		s.log.Warn().Str("error", werr.name).Msg("request rejected")
		writeWireError(w, werr)
		return
	}
	if werr := s.takeFault(); werr != nil {
		s.log.Debug().Str("action", action).Str("fault", werr.name).Msg("injected fault")
		writeWireError(w, werr)
		return
	}

	out, err := s.dispatch(action, body)
	if err != nil {
		var werr *wireError
		if !errors.As(err, &werr) {
			s.log.Error().Err(err).Str("action", action).Msg("operation failed")
			werr = &wireError{status: http.StatusInternalServerError, name: "InternalServerError", message: "Internal server error"}
		}
		writeWireError(w, werr)
		return
	}
	resp, err := json.Marshal(out)
	if err != nil {
		s.log.Error().Err(err).Str("action", action).Msg("encoding response failed")
		writeWireError(w, &wireError{status: http.StatusInternalServerError, name: "InternalServerError", message: "Internal server error"})
		return
	}
	s.log.Debug().Str("action", action).Msg("ok")
	w.WriteHeader(http.StatusOK)
	w.Write(resp)
}

// authenticate extracts the action from X-Amz-Target and, unless the
// server was built with a zero key, re-signs the body and compares
// Authorization headers. Signing is deterministic given the key, body,
// action, region and timestamp, so equality means the caller holds the
// same secret.
func (s *Server) authenticate(r *http.Request, body []byte) (string, *wireError) {
	action, ok := strings.CutPrefix(r.Header.Get("X-Amz-Target"), sigv4.TargetPrefix+".")
	if !ok || action == "" {
		return "", &wireError{status: http.StatusBadRequest, name: "UnknownOperationException"}
	}
	if s.key.ID == "" {
		return action, nil
	}

	auth := r.Header.Get("Authorization")
	if auth == "" {
		return "", &wireError{
			status:  http.StatusBadRequest,
			name:    "MissingAuthenticationTokenException",
			message: "Request is missing Authentication Token",
		}
	}
	at, err := sigv4.ParseTimestamp(r.Header.Get("X-Amz-Date"))
	if err != nil {
		return "", invalidSignatureErr()
	}
	endpoint := &url.URL{Scheme: "http", Host: r.Host, Path: "/"}
	want := sigv4.SignRequest(s.key, body, action, s.region, endpoint, at)
	if auth != want.Headers["Authorization"] {
		return "", invalidSignatureErr()
	}
	return action, nil
}

func (s *Server) dispatch(action string, body []byte) (any, error) {
	switch action {
	case "GetItem":
		return handle(body, s.getItem)
	case "PutItem":
		return handle(body, s.putItem)
	case "DeleteItem":
		return handle(body, s.deleteItem)
	case "UpdateItem":
		return handle(body, s.updateItem)
	case "Query":
		return handle(body, s.query)
	case "Scan":
		return handle(body, s.scan)
	case "BatchGetItem":
		return handle(body, s.batchGetItem)
	case "BatchWriteItem":
		return handle(body, s.batchWriteItem)
	case "TransactWriteItems":
		return handle(body, s.transactWriteItems)
	case "TransactGetItems":
		return handle(body, s.transactGetItems)
	}
	return nil, &wireError{status: http.StatusBadRequest, name: "UnknownOperationException"}
}

func handle[In, Out any](body []byte, op func(In) (Out, error)) (any, error) {
	var in In
	if err := json.Unmarshal(body, &in); err != nil {
		return nil, serializationErr(err)
	}
	out, err := op(in)
	return out, err
}

func writeWireError(w http.ResponseWriter, werr *wireError) {
	envelope := struct {
		Type    string   `json:"__type"`
		Message string   `json:"message,omitempty"`
		Reasons []reason `json:"CancellationReasons,omitempty"`
	}{
		Type:    "com.amazonaws.dynamodb.v20120810#" + werr.name,
		Message: werr.message,
		Reasons: werr.reasons,
	}
	body, _ := json.Marshal(envelope)
	w.WriteHeader(werr.status)
	w.Write(body)
}
