package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/veilarc/ragfence/internal/models"
	"github.com/veilarc/ragfence/pkg/audit"
	"github.com/veilarc/ragfence/pkg/auth"
	"github.com/veilarc/ragfence/pkg/chunker"
	"github.com/veilarc/ragfence/pkg/extract"
	"github.com/veilarc/ragfence/pkg/ingest"
	"github.com/veilarc/ragfence/pkg/query"
	"github.com/veilarc/ragfence/pkg/registry"
	"github.com/veilarc/ragfence/pkg/sensitivity"
	"github.com/veilarc/ragfence/pkg/store"
	"github.com/veilarc/ragfence/server"
	"go.uber.org/zap"
)

type fakeEmbedder struct{}

func (fakeEmbedder) CreateEmbedding(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, 26)
		for _, r := range strings.ToLower(t) {
			if r >= 'a' && r <= 'z' {
				v[r-'a']++
			}
		}
		out[i] = v
	}
	return out, nil
}

type cannedAnswers struct{}

func (cannedAnswers) Answer(context.Context, string, string) (string, error) {
	return "canned answer", nil
}

func newTestServer(t *testing.T) (*server.Server, *audit.Emitter) {
	t.Helper()

	reg := registry.NewMemoryRegistry()
	reg.AddUser(models.User{Username: "t1_admin", Password: "pass", TenantID: "t1", Role: models.RoleAdmin})
	reg.AddUser(models.User{Username: "t1_member", Password: "pass", TenantID: "t1", Role: models.RoleMember})

	vs := store.NewMemoryStore()
	require.NoError(t, vs.Init(context.Background(), 26))

	ch, err := chunker.NewWithConfig(chunker.Config{ChunkSize: 900, Overlap: 150})
	require.NoError(t, err)

	pipeline := ingest.NewPipeline(ingest.PipelineConfig{}, reg, ch,
		sensitivity.New(nil), fakeEmbedder{}, vs, zap.NewNop())

	recorder := audit.NewMemoryRecorder()
	emitter := audit.NewEmitter(recorder, zap.NewNop())
	queries := query.NewService(query.ServiceConfig{}, fakeEmbedder{}, vs, cannedAnswers{}, emitter, zap.NewNop())

	authSvc := auth.NewService(reg, auth.Config{Secret: "test-secret"})
	extractor := extract.NewURLExtractor(extract.URLExtractorConfig{RateLimit: 1000})

	return server.New(server.Config{Port: 0}, authSvc, pipeline, queries, extractor, recorder, zap.NewNop()), emitter
}

func login(t *testing.T, s *server.Server, username string) string {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"username": username, "password": "pass"})
	req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.NotEmpty(t, out.AccessToken)
	return out.AccessToken
}

func jsonRequest(method, target, token string, payload any) *http.Request {
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func uploadRequest(t *testing.T, token, content string, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	fw, err := w.CreateFormFile("file", "doc.pdf")
	require.NoError(t, err)
	_, err = io.WriteString(fw, content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/documents/upload_pdf", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestLogin_BadCredentials(t *testing.T) {
	s, _ := newTestServer(t)

	body, _ := json.Marshal(map[string]string{"username": "t1_member", "password": "wrong"})
	req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestProtectedRoutesRejectMissingToken(t *testing.T) {
	s, _ := newTestServer(t)

	resp, err := s.App().Test(jsonRequest(http.MethodPost, "/chat/query", "", map[string]string{"question": "q"}), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestUploadAndQuery(t *testing.T) {
	s, _ := newTestServer(t)
	token := login(t, s, "t1_member")

	resp, err := s.App().Test(uploadRequest(t, token, strings.Repeat("k", 1200), map[string]string{
		"title": "policy",
	}), -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var uploaded struct {
		DocID         string `json:"doc_id"`
		ChunksIndexed int    `json:"chunks_indexed"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&uploaded))
	assert.NotEmpty(t, uploaded.DocID)
	assert.Equal(t, 2, uploaded.ChunksIndexed)

	resp, err = s.App().Test(jsonRequest(http.MethodPost, "/chat/query", token, map[string]string{"question": "kkkk"}), -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var answered query.Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&answered))
	assert.Equal(t, "canned answer", answered.Answer)
	require.NotEmpty(t, answered.Citations)
	assert.Equal(t, uploaded.DocID, answered.Citations[0].DocID)
}

func TestUpload_EmptyContentIsUnprocessable(t *testing.T) {
	s, _ := newTestServer(t)
	token := login(t, s, "t1_member")

	resp, err := s.App().Test(uploadRequest(t, token, "   \n  ", map[string]string{"title": "blank"}), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestUploadURL_ExtractionFailureIsBadGateway(t *testing.T) {
	s, _ := newTestServer(t)
	token := login(t, s, "t1_member")

	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer dead.Close()

	resp, err := s.App().Test(jsonRequest(http.MethodPost, "/documents/upload_url", token, map[string]any{
		"title": "remote",
		"url":   dead.URL,
	}), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestAudit_AdminOnly(t *testing.T) {
	s, emitter := newTestServer(t)
	memberToken := login(t, s, "t1_member")
	adminToken := login(t, s, "t1_admin")

	resp, err := s.App().Test(jsonRequest(http.MethodPost, "/chat/query", memberToken, map[string]string{"question": "q"}), -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	emitter.Wait()

	req := httptest.NewRequest(http.MethodGet, "/audit", nil)
	req.Header.Set("Authorization", "Bearer "+memberToken)
	resp, err = s.App().Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	req = httptest.NewRequest(http.MethodGet, "/audit?limit=10", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	resp, err = s.App().Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Events []models.AuditEvent `json:"events"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.NotEmpty(t, out.Events)
}
