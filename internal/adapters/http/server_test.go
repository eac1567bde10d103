package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpadapter "github.com/studyhall/attempts/internal/adapters/http"
	"github.com/studyhall/attempts/internal/adapters/memory"
	"github.com/studyhall/attempts/internal/observability"
	"github.com/studyhall/attempts/pkg/domain"
	"github.com/studyhall/attempts/pkg/session"
)

func newTestServer(t *testing.T, opts ...httpadapter.Option) (*httptest.Server, *session.Manager) {
	t.Helper()

	manager := session.NewManager(memory.NewStore())
	t.Cleanup(func() { manager.Shutdown(context.Background()) })

	handler, err := httpadapter.NewHandler(manager, opts...)
	require.NoError(t, err)

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv, manager
}

func postJSON(t *testing.T, url string, payload any) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	return resp
}

func putJSON(t *testing.T, url string, payload any) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPut, url, bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestCreateSession(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/sessions", map[string]string{
		"subject_id":  "u1",
		"activity_id": "q1",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	created := decode[domain.Attempt](t, resp)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "u1", created.SubjectID)
	assert.Equal(t, domain.StatusStarted, created.Status)
	assert.EqualValues(t, 1, created.Version)
}

func TestCreateSession_MissingFields(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/sessions", map[string]string{"subject_id": "u1"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetSession_NotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/sessions/ghost")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUpdateProgress_RoundTrip(t *testing.T) {
	srv, _ := newTestServer(t)

	created := decode[domain.Attempt](t, postJSON(t, srv.URL+"/sessions", map[string]string{
		"subject_id":  "u1",
		"activity_id": "q1",
	}))

	resp := putJSON(t, srv.URL+"/sessions/"+created.ID+"/progress", map[string]any{
		"step_id":  1,
		"response": "A",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result := decode[map[string]bool](t, resp)
	assert.True(t, result["accepted"])

	got := decode[domain.Attempt](t, getOK(t, srv.URL+"/sessions/"+created.ID))
	assert.Equal(t, 1, got.CurrentStep)
	assert.Equal(t, map[int]string{1: "A"}, got.Responses)
	assert.EqualValues(t, 2, got.Version)
}

func getOK(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return resp
}

func TestUpdateProgress_MissingSessionIs404(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := putJSON(t, srv.URL+"/sessions/ghost/progress", map[string]any{
		"step_id":  1,
		"response": "A",
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUpdateProgress_ClosedSessionIs409(t *testing.T) {
	srv, _ := newTestServer(t)

	created := decode[domain.Attempt](t, postJSON(t, srv.URL+"/sessions", map[string]string{
		"subject_id":  "u1",
		"activity_id": "q1",
	}))

	resp := postJSON(t, srv.URL+"/sessions/"+created.ID+"/complete", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = putJSON(t, srv.URL+"/sessions/"+created.ID+"/progress", map[string]any{
		"step_id":  1,
		"response": "A",
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestCompleteSession_Codes(t *testing.T) {
	srv, _ := newTestServer(t)

	created := decode[domain.Attempt](t, postJSON(t, srv.URL+"/sessions", map[string]string{
		"subject_id":  "u1",
		"activity_id": "q1",
	}))

	resp := postJSON(t, srv.URL+"/sessions/"+created.ID+"/complete", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result := decode[map[string]bool](t, resp)
	assert.True(t, result["success"])

	// Second completion conflicts, missing session is not found.
	resp = postJSON(t, srv.URL+"/sessions/"+created.ID+"/complete", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = postJSON(t, srv.URL+"/sessions/ghost/complete", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListSubjectSessions(t *testing.T) {
	srv, _ := newTestServer(t)

	for i := 0; i < 2; i++ {
		resp := postJSON(t, srv.URL+"/sessions", map[string]string{
			"subject_id":  "u1",
			"activity_id": "q1",
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		resp.Body.Close()
	}

	listing := decode[map[string][]domain.Summary](t, getOK(t, srv.URL+"/subjects/u1/sessions"))
	assert.Len(t, listing["sessions"], 2)

	empty := decode[map[string][]domain.Summary](t, getOK(t, srv.URL+"/subjects/nobody/sessions"))
	assert.Empty(t, empty["sessions"])
}

func TestSubjectStats(t *testing.T) {
	srv, _ := newTestServer(t)

	created := decode[domain.Attempt](t, postJSON(t, srv.URL+"/sessions", map[string]string{
		"subject_id":  "u1",
		"activity_id": "q1",
	}))
	resp := postJSON(t, srv.URL+"/sessions/"+created.ID+"/complete", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	stats := decode[domain.SubjectStats](t, getOK(t, srv.URL+"/subjects/u1/stats"))
	assert.Equal(t, 1, stats.TotalAttempts)
	assert.Equal(t, 1, stats.CompletedCount)
}

func TestSpecEndpointsServed(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/openapi.yaml")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSpecValidation_RejectsBadBody(t *testing.T) {
	srv, _ := newTestServer(t, httpadapter.WithSpecValidation())

	// step_id must be an integer per the spec.
	resp := putJSON(t, srv.URL+"/sessions/some-id/progress", map[string]any{
		"step_id":  "one",
		"response": "A",
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	metrics := observability.New()
	srv, _ := newTestServer(t, httpadapter.WithMetrics(metrics))

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
