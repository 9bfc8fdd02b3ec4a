// Package testutil provides common test utilities and helpers for FlowState tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/flowstate-coach/flowstate/internal/api"
	"github.com/flowstate-coach/flowstate/internal/auth"
	"github.com/flowstate-coach/flowstate/internal/catalog"
	"github.com/flowstate-coach/flowstate/internal/flow"
	"github.com/flowstate-coach/flowstate/internal/store"
)

// TestEnv bundles the server with its collaborators so tests can reach past
// the HTTP surface when asserting on state.
type TestEnv struct {
	Server     *api.Server
	Controller *flow.Controller
	Identity   *auth.Service
	Store      *store.InMemoryStore
}

// NewTestServer creates a test API server with in-memory dependencies.
// This centralizes the test server creation logic used across multiple test files.
func NewTestServer(t *testing.T) *TestEnv {
	t.Helper()
	backing := store.NewInMemoryStore()
	identity := auth.NewService(backing, backing, []byte("test-secret"))
	ctrl := flow.NewController(backing, backing, backing, identity, catalog.Default())
	return &TestEnv{
		Server:     api.NewServer(ctrl, identity),
		Controller: ctrl,
		Identity:   identity,
		Store:      backing,
	}
}

// RegisterUser registers a user through the controller and returns a bearer
// token for authenticated requests.
func (e *TestEnv) RegisterUser(t *testing.T, email, password, name string) string {
	t.Helper()
	user, err := e.Controller.Register(email, password, name)
	if err != nil {
		t.Fatalf("failed to register test user: %v", err)
	}
	token, err := e.Identity.IssueToken(user)
	if err != nil {
		t.Fatalf("failed to issue test token: %v", err)
	}
	return token
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t *testing.T, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// AssertJSONResponse decodes JSON response and validates the status field.
func AssertJSONResponse(t *testing.T, rr *httptest.ResponseRecorder, expectedStatus string) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
	}

	if status, ok := response["status"].(string); ok {
		if status != expectedStatus {
			t.Errorf("expected status '%s', got '%s'", expectedStatus, status)
		}
	} else {
		t.Error("response missing or invalid 'status' field")
	}

	return response
}

// CreateHTTPRequest creates an HTTP request with optional JSON body and
// optional bearer token for testing.
func CreateHTTPRequest(t *testing.T, method, url, token string, body interface{}) *http.Request {
	t.Helper()
	var reqBody *bytes.Buffer
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		t.Fatalf("failed to create HTTP request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

// MustMarshalJSON marshals an object to JSON and fails test on error.
func MustMarshalJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal JSON: %v", err)
	}
	return data
}

// MustUnmarshalJSON unmarshals JSON data into target and fails test on error.
func MustUnmarshalJSON(t *testing.T, data []byte, target interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, target); err != nil {
		t.Fatalf("failed to unmarshal JSON: %v", err)
	}
}
