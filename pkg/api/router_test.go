package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	backendmem "github.com/mightyiam/magic-nix-cache/pkg/backend/memory"
	"github.com/mightyiam/magic-nix-cache/pkg/session"
	storemem "github.com/mightyiam/magic-nix-cache/pkg/store/memory"
	"github.com/mightyiam/magic-nix-cache/pkg/workflow"
)

// newTestServer wires a router around an in-memory store and backend.
func newTestServer(t *testing.T) (*httptest.Server, *storemem.Resolver, *backendmem.Backend, *session.Session) {
	t.Helper()

	resolver := storemem.NewResolver("/nix/store/aaa-a", "/nix/store/bbb-b")
	b := backendmem.New("mem")
	sess := session.New(b)
	controller := workflow.New(sess, resolver, nil)

	srv := httptest.NewServer(NewRouter(controller, sess))
	t.Cleanup(srv.Close)
	return srv, resolver, b, sess
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	resp, err := http.Post(url, "application/json", &buf)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestWorkflowStartEndpoint(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/workflow-start", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		NumOriginalPaths int `json:"num_original_paths"`
	}
	decodeBody(t, resp, &body)
	assert.Equal(t, 2, body.NumOriginalPaths)
}

func TestEnqueuePathsEndpoint(t *testing.T) {
	srv, _, b, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/enqueue-paths", map[string]any{
		"store_paths": []string{"/nix/store/aaa-a"},
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	decodeBody(t, resp, &body)
	assert.Empty(t, body)

	require.Len(t, b.Batches(), 1)
}

func TestEnqueuePathsUnresolvable(t *testing.T) {
	srv, _, b, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/enqueue-paths", map[string]any{
		"store_paths": []string{"/nix/store/zzz-missing"},
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, b.Batches())
}

func TestEnqueuePathsInvalidBody(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/api/enqueue-paths", "application/json",
		bytes.NewBufferString("not json"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWorkflowFinishEndpoint(t *testing.T) {
	srv, resolver, b, sess := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/workflow-start", nil)
	resp.Body.Close()

	resolver.AddPath("/nix/store/ccc-c")

	resp = postJSON(t, srv.URL+"/api/workflow-finish", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		NumOriginalPaths int `json:"num_original_paths"`
		NumFinalPaths    int `json:"num_final_paths"`
		NumNewPaths      int `json:"num_new_paths"`
	}
	decodeBody(t, resp, &body)
	assert.Equal(t, 2, body.NumOriginalPaths)
	assert.Equal(t, 3, body.NumFinalPaths)
	assert.Equal(t, 1, body.NumNewPaths)

	require.Len(t, b.Batches(), 1)

	select {
	case <-sess.ShutdownRequested():
	default:
		t.Error("finish did not consume the shutdown signal")
	}
}

func TestHealthEndpoints(t *testing.T) {
	srv, _, _, sess := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/health/ready")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// After shutdown is signaled, readiness flips.
	require.NoError(t, sess.NotifyShutdown())
	resp, err = http.Get(srv.URL + "/health/ready")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
