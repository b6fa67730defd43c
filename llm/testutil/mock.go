// Package testutil provides test doubles for code that talks to an LLM.
package testutil

import (
	"context"
	"sync"

	"github.com/c360studio/ontomap/llm"
)

// MockLLMClient is a thread-safe stand-in for *llm.Client.
//
// Responses are returned in sequence; once they run out the last one is
// repeated. Err, when set, is returned from every call. CredentialErr is
// what CheckCredentials reports.
//
//	mock := &testutil.MockLLMClient{
//	    Responses: []*llm.Response{{Content: `{"matches": []}`, Model: "test-model"}},
//	}
type MockLLMClient struct {
	mu            sync.Mutex
	Responses     []*llm.Response
	Err           error
	CredentialErr error

	requests []llm.Request
	next     int
}

// Complete records the request and returns the next configured response.
func (m *MockLLMClient) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.Err != nil {
		return nil, m.Err
	}
	if len(m.Responses) == 0 {
		return &llm.Response{Content: "", Model: "test-model"}, nil
	}

	resp := m.Responses[min(m.next, len(m.Responses)-1)]
	m.next++
	return resp, nil
}

// CheckCredentials returns CredentialErr.
func (m *MockLLMClient) CheckCredentials(string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CredentialErr
}

// Requests returns every request seen so far.
func (m *MockLLMClient) Requests() []llm.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]llm.Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// CallCount returns how many times Complete was called.
func (m *MockLLMClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Reset forgets captured requests and rewinds the response sequence.
func (m *MockLLMClient) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
	m.next = 0
}
