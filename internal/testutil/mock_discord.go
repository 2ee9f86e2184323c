package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
)

// MockBotToken is the token the mock Discord server accepts
const MockBotToken = "mock_bot_token_123"

// MockResponse is a canned reply for one request path.
type MockResponse struct {
	Status int
	Body   string
	Header http.Header
}

// DiscordErrorResponse represents an error response from Discord.
type DiscordErrorResponse struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// MockDiscordServer represents a mock Discord bot API server for testing.
// Responses are registered per path; a registration for the full request URI (path plus
// query) takes precedence over the bare path.
type MockDiscordServer struct {
	Server *httptest.Server

	mu        sync.Mutex
	responses map[string]MockResponse
	calls     map[string]int
}

// NewMockDiscordServer creates a new mock Discord API server.
// Requests without "Authorization: Bot MockBotToken" are rejected with 401, and unregistered
// paths answer 404 the way Discord does for unknown entities.
func NewMockDiscordServer() *MockDiscordServer {
	mds := &MockDiscordServer{
		responses: make(map[string]MockResponse),
		calls:     make(map[string]int),
	}

	mds.Server = httptest.NewServer(http.HandlerFunc(mds.serve))
	return mds
}

func (mds *MockDiscordServer) serve(w http.ResponseWriter, r *http.Request) {
	mds.mu.Lock()
	mds.calls[r.URL.Path]++
	resp, ok := mds.responses[r.URL.RequestURI()]
	if !ok {
		resp, ok = mds.responses[r.URL.Path]
	}
	mds.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")

	if r.Header.Get("Authorization") != "Bot "+MockBotToken {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(DiscordErrorResponse{Message: "401: Unauthorized", Code: 0})
		return
	}

	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if !ok {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(DiscordErrorResponse{Message: "Unknown", Code: 10000})
		return
	}

	for k, values := range resp.Header {
		for _, v := range values {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.Status)
	_, _ = w.Write([]byte(resp.Body))
}

// Handle registers a raw response for a path
func (mds *MockDiscordServer) Handle(path string, status int, body string) {
	mds.mu.Lock()
	defer mds.mu.Unlock()
	mds.responses[path] = MockResponse{Status: status, Body: body}
}

// HandleJSON registers a 200 response with v encoded as JSON
func (mds *MockDiscordServer) HandleJSON(path string, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	mds.Handle(path, http.StatusOK, string(body))
}

// HandleRateLimited registers a 429 response with the given Retry-After seconds
func (mds *MockDiscordServer) HandleRateLimited(path, retryAfter string) {
	mds.mu.Lock()
	defer mds.mu.Unlock()
	mds.responses[path] = MockResponse{
		Status: http.StatusTooManyRequests,
		Body:   `{"message":"You are being rate limited.","retry_after":` + retryAfter + `,"global":false}`,
		Header: http.Header{
			"Retry-After":           []string{retryAfter},
			"X-Ratelimit-Remaining": []string{"0"},
			"X-Ratelimit-Scope":     []string{"user"},
		},
	}
}

// Calls returns how many requests were made for a path (query excluded)
func (mds *MockDiscordServer) Calls(path string) int {
	mds.mu.Lock()
	defer mds.mu.Unlock()
	return mds.calls[path]
}

// ResetCallCounts resets the call counters.
func (mds *MockDiscordServer) ResetCallCounts() {
	mds.mu.Lock()
	defer mds.mu.Unlock()
	mds.calls = make(map[string]int)
}

// URL returns the API base URL of the mock server.
func (mds *MockDiscordServer) URL() string {
	return mds.Server.URL
}

// Close closes the mock server.
func (mds *MockDiscordServer) Close() {
	if mds.Server != nil {
		mds.Server.Close()
	}
}
