package virustotal

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/mikey/phishguard/internal/core"
	"github.com/mikey/phishguard/internal/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordedCall struct {
	method string
	path   string
	apiKey string
}

type fakeService struct {
	mu      sync.Mutex
	calls   []recordedCall
	limited map[string]bool
	handler func(w http.ResponseWriter, r *http.Request)
}

func (f *fakeService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get("x-apikey")
	f.mu.Lock()
	f.calls = append(f.calls, recordedCall{method: r.Method, path: r.URL.Path, apiKey: key})
	limited := f.limited[key]
	f.mu.Unlock()

	if limited {
		w.WriteHeader(http.StatusTooManyRequests)
		return
	}
	f.handler(w, r)
}

func newTestClient(t *testing.T, svc *fakeService, keys ...string) (*Client, *credentials.Pool) {
	t.Helper()
	server := httptest.NewServer(svc)
	t.Cleanup(server.Close)

	pool := credentials.NewPool(keys)
	client := NewClient(server.Client(), pool, Config{BaseURL: server.URL, Timeout: 2 * time.Second}, zap.NewNop())
	return client, pool
}

func TestSubmitURLAndPollVerdict(t *testing.T) {
	svc := &fakeService{handler: func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/urls":
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "https://evil.example/login", r.PostForm.Get("url"))
			w.Write([]byte(`{"data":{"id":"u-123","type":"analysis"}}`))
		case r.Method == http.MethodGet && r.URL.Path == "/analyses/u-123":
			w.Write([]byte(`{"data":{"attributes":{"stats":{"malicious":3,"suspicious":1,"harmless":60,"undetected":8}}}}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}}
	client, _ := newTestClient(t, svc, "key-a")

	id, err := client.SubmitURL(context.Background(), "https://evil.example/login")
	require.NoError(t, err)
	assert.Equal(t, "u-123", id)

	counts, err := client.GetURLVerdict(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, core.ReputationCounts{Malicious: 3, Suspicious: 1, Harmless: 60}, *counts)

	for _, c := range svc.calls {
		assert.Equal(t, "key-a", c.apiKey)
	}
}

func TestCheckFileHash(t *testing.T) {
	svc := &fakeService{handler: func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/files/known" {
			w.Write([]byte(`{"data":{"attributes":{"last_analysis_stats":{"malicious":12,"harmless":0}}}}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}}
	client, _ := newTestClient(t, svc, "key-a")

	counts, err := client.CheckFileHash(context.Background(), "known")
	require.NoError(t, err)
	assert.Equal(t, 12, counts.Malicious)

	counts, err = client.CheckFileHash(context.Background(), "never-seen")
	require.NoError(t, err)
	assert.Equal(t, core.ReputationCounts{}, *counts)
}

func TestFailoverToFreshCredentialOn429(t *testing.T) {
	svc := &fakeService{
		limited: map[string]bool{"key-a": true},
		handler: func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"data":{"attributes":{"last_analysis_stats":{"malicious":0,"harmless":70}}}}`))
		},
	}
	client, pool := newTestClient(t, svc, "key-a", "key-b")

	counts, err := client.CheckFileHash(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, 70, counts.Harmless)

	require.Len(t, svc.calls, 2)
	assert.Equal(t, "key-a", svc.calls[0].apiKey)
	assert.Equal(t, "key-b", svc.calls[1].apiKey)

	stats := pool.Stats()
	assert.Equal(t, 1, stats[0].LimitedCount)
	assert.Equal(t, 4, stats[0].Requests)
}

func TestSecond429IsRateLimitFailure(t *testing.T) {
	svc := &fakeService{
		limited: map[string]bool{"key-a": true, "key-b": true},
		handler: func(w http.ResponseWriter, r *http.Request) {},
	}
	client, _ := newTestClient(t, svc, "key-a", "key-b")

	_, err := client.SubmitURL(context.Background(), "https://example.com")
	assert.ErrorIs(t, err, core.ErrRateLimited)
	assert.Len(t, svc.calls, 2)
}

func TestUnexpectedResponsesAreExternalFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler func(w http.ResponseWriter, r *http.Request)
	}{
		{
			name:    "server error",
			handler: func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusInternalServerError) },
		},
		{
			name:    "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(`{not json`)) },
		},
		{
			name:    "missing id",
			handler: func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(`{"data":{}}`)) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, &fakeService{handler: tt.handler}, "key-a")
			_, err := client.SubmitURL(context.Background(), "https://example.com")
			assert.ErrorIs(t, err, core.ErrExternalService)
		})
	}
}

func TestTimeoutIsExternalFailure(t *testing.T) {
	svc := &fakeService{handler: func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}}
	server := httptest.NewServer(svc)
	defer server.Close()

	client := NewClient(server.Client(), credentials.NewPool([]string{"k"}),
		Config{BaseURL: server.URL, Timeout: 50 * time.Millisecond}, zap.NewNop())

	_, err := client.GetURLVerdict(context.Background(), "id")
	assert.ErrorIs(t, err, core.ErrExternalService)
}

func TestNoCredentials(t *testing.T) {
	client, _ := newTestClient(t, &fakeService{handler: func(w http.ResponseWriter, r *http.Request) {}})

	_, err := client.CheckFileHash(context.Background(), "abc")
	assert.ErrorIs(t, err, core.ErrNoCredentials)
}
