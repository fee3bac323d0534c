package v1

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ima-agent/internal/app/models"
	"ima-agent/internal/pkg/code"
)

type fakeAsker struct {
	res    *models.Result
	err    error
	params models.AskParams
}

func (f *fakeAsker) AskWithState(_ context.Context, params models.AskParams) (*models.Result, *models.AttemptState, error) {
	f.params = params
	st := &models.AttemptState{TraceID: "trace123", Attempt: 2}
	return f.res, st, f.err
}

type fakeTokenStore struct {
	creds models.Credentials
	err   error
}

func (f *fakeTokenStore) Get() models.Credentials { return f.creds }

func (f *fakeTokenStore) Refresh(context.Context, models.Credentials) (models.Credentials, error) {
	if f.err != nil {
		return f.creds, f.err
	}
	f.creds.Token = "new"
	f.creds.UpdatedAt = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	f.creds.ValidFor = time.Hour
	f.creds.Version++
	return f.creds, nil
}

type fakeDumps struct{}

func (fakeDumps) ListByTrace(traceID string) ([]models.RawDump, error) {
	return []models.RawDump{{ID: 1, TraceID: traceID, Attempt: 1}}, nil
}

func newTestEngine(ctrl *ImaController) *gin.Engine {
	gin.SetMode(gin.TestMode)
	e := gin.New()
	e.POST("/ima/ask", ctrl.Ask)
	e.GET("/ima/token/status", ctrl.TokenStatus)
	e.POST("/ima/token/refresh", ctrl.RefreshToken)
	e.GET("/ima/dumps/:trace_id", ctrl.RawDumps)
	return e
}

func do(e *gin.Engine, method, path, body string) (*httptest.ResponseRecorder, models.RespValue) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	e.ServeHTTP(w, req)
	var resp models.RespValue
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	return w, resp
}

func TestAsk_Success(t *testing.T) {
	asker := &fakeAsker{res: &models.Result{
		Answer:     "  Paris \n\n\n is the capital ",
		References: []models.Reference{{ID: "r1", Title: "Geo"}},
	}}
	e := newTestEngine(NewImaController(asker, &fakeTokenStore{}, nil))

	w, resp := do(e, http.MethodPost, "/ima/ask", `{"question":"capital of France?","session_id":"s1"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, code.Success, resp.Code)
	assert.Equal(t, "capital of France?", asker.params.Question)
	assert.Equal(t, "s1", asker.params.SessionID)

	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "Paris\n\nis the capital", data["answer"])
	assert.Equal(t, "trace123", data["trace_id"])
	assert.Equal(t, float64(2), data["attempts"])
	assert.Len(t, data["references"], 1)
}

func TestAsk_InvalidBody(t *testing.T) {
	e := newTestEngine(NewImaController(&fakeAsker{}, &fakeTokenStore{}, nil))
	w, resp := do(e, http.MethodPost, "/ima/ask", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, code.InvalidParams, resp.Code)
}

func TestAsk_TerminalFailure(t *testing.T) {
	err := &code.Error{Kind: code.ErrRetriesExhausted, Err: code.Newf(code.ErrMalformedStream, "bad"), Artifact: "logs/x.log"}
	e := newTestEngine(NewImaController(&fakeAsker{err: err}, &fakeTokenStore{}, nil))

	w, resp := do(e, http.MethodPost, "/ima/ask", `{"question":"q"}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, code.RetriesExhausted, resp.Code)
	assert.Equal(t, "retries exhausted", resp.Msg)
	assert.Contains(t, resp.Err, "logs/x.log")
	assert.Equal(t, "logs/x.log", w.Header().Get("X-Raw-Response"))
	assert.Equal(t, "trace123", resp.Data.(map[string]interface{})["trace_id"])
}

func TestTokenStatusHidesSecrets(t *testing.T) {
	store := &fakeTokenStore{creds: models.LoadCredentials("IMA-UID=u1; IMA-REFRESH-TOKEN=secret", "bkn", "", "c")}
	e := newTestEngine(NewImaController(&fakeAsker{}, store, nil))

	w, resp := do(e, http.MethodGet, "/ima/token/status", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "secret")
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, true, data["can_refresh"])
	assert.Equal(t, false, data["has_token"])
	assert.Equal(t, "u1", data["user_id"])

	w, resp = do(e, http.MethodPost, "/ima/token/refresh", "")
	require.Equal(t, http.StatusOK, w.Code)
	data = resp.Data.(map[string]interface{})
	assert.Equal(t, true, data["has_token"])
	assert.Equal(t, "2025-01-01T01:00:00Z", data["expires_at"])
	assert.NotContains(t, w.Body.String(), "new")
}

func TestRefreshToken_Failure(t *testing.T) {
	store := &fakeTokenStore{err: code.Newf(code.ErrRefreshFailed, "rejected")}
	e := newTestEngine(NewImaController(&fakeAsker{}, store, nil))

	w, resp := do(e, http.MethodPost, "/ima/token/refresh", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, code.RefreshError, resp.Code)
}

func TestRawDumps(t *testing.T) {
	e := newTestEngine(NewImaController(&fakeAsker{}, &fakeTokenStore{}, nil))
	w, _ := do(e, http.MethodGet, "/ima/dumps/abc", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	e = newTestEngine(NewImaController(&fakeAsker{}, &fakeTokenStore{}, fakeDumps{}))
	w, resp := do(e, http.MethodGet, "/ima/dumps/abc", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, resp.Data, 1)
}
