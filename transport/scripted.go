package transport

import (
	"context"
	"fmt"
	"sync"
)

// Call is one request served by a Script.
type Call struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
}

type scriptedStep struct {
	status int
	body   []byte
	err    error
	gate   <-chan struct{}
}

// Script is an HTTP test double. It replays queued responses in order and
// records every request it serves. Running past the end of the script
// fails the request, which surfaces as a test failure.
type Script struct {
	mu    sync.Mutex
	steps []scriptedStep
	calls []Call
}

func NewScript() *Script {
	return &Script{}
}

// Respond queues a response with the given status and body.
func (s *Script) Respond(status int, body []byte) *Script {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps = append(s.steps, scriptedStep{status: status, body: body})
	return s
}

// Fail queues a transport-level failure.
func (s *Script) Fail(err error) *Script {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps = append(s.steps, scriptedStep{err: err})
	return s
}

// Hold queues a response that is not served until gate is closed. The
// request's context still applies while waiting, so held steps can stand
// in for slow upstreams in concurrency tests.
func (s *Script) Hold(gate <-chan struct{}, status int, body []byte) *Script {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps = append(s.steps, scriptedStep{status: status, body: body, gate: gate})
	return s
}

// Calls returns a copy of the requests served so far.
func (s *Script) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// Remaining reports how many queued steps were never consumed.
func (s *Script) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.steps)
}

func (s *Script) Get(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	step, err := s.next(ctx, Call{Method: "GET", URL: url, Headers: headers})
	if err != nil {
		return nil, err
	}
	if step.status < 200 || step.status > 299 {
		return nil, &RequestFailed{URL: url, Status: step.status, Body: step.body}
	}
	return step.body, nil
}

func (s *Script) Put(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	step, err := s.next(ctx, Call{Method: "PUT", URL: url, Headers: headers})
	if err != nil {
		return nil, err
	}
	if step.status < 200 || step.status > 299 {
		return nil, &RequestFailed{URL: url, Status: step.status, Body: step.body}
	}
	return step.body, nil
}

func (s *Script) Post(ctx context.Context, url string, body []byte, headers map[string]string) (*Response, error) {
	step, err := s.next(ctx, Call{Method: "POST", URL: url, Headers: headers, Body: body})
	if err != nil {
		return nil, err
	}
	return &Response{Status: step.status, Body: step.body}, nil
}

func (s *Script) next(ctx context.Context, call Call) (scriptedStep, error) {
	s.mu.Lock()
	s.calls = append(s.calls, call)
	if len(s.steps) == 0 {
		s.mu.Unlock()
		return scriptedStep{}, &RequestFailed{
			URL: call.URL,
			Err: fmt.Errorf("unexpected %s request, script exhausted", call.Method),
		}
	}
	step := s.steps[0]
	s.steps = s.steps[1:]
	s.mu.Unlock()

	if step.gate != nil {
		select {
		case <-step.gate:
		case <-ctx.Done():
			return scriptedStep{}, &RequestFailed{URL: call.URL, Err: ctx.Err()}
		}
	}
	if step.err != nil {
		return scriptedStep{}, &RequestFailed{URL: call.URL, Err: step.err}
	}
	return step, nil
}
