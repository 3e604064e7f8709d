package httpserver_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ILLUVRSE/Venture/case-engine/internal/config"
	"github.com/ILLUVRSE/Venture/case-engine/internal/ethics"
	"github.com/ILLUVRSE/Venture/case-engine/internal/httpserver"
	"github.com/ILLUVRSE/Venture/case-engine/internal/models"
	"github.com/ILLUVRSE/Venture/case-engine/internal/pipeline"
	"github.com/ILLUVRSE/Venture/case-engine/internal/review"
	"github.com/ILLUVRSE/Venture/case-engine/internal/store"
)

func newTestServer(t *testing.T, runWorker bool) (http.Handler, store.Store) {
	t.Helper()
	st := store.NewMemoryStore(nil)
	worker := pipeline.NewWorker(st, ethics.NewGate(ethics.Config{}), pipeline.Config{})
	if runWorker {
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			defer close(done)
			_ = worker.Run(ctx)
		}()
		t.Cleanup(func() {
			cancel()
			<-done
		})
	}
	cfg := config.Config{Store: config.StoreMemory, MaxPayloadBytes: 1024}
	srv := httpserver.New(cfg, worker, review.New(st, nil, nil), st, nil)
	return srv.Router(), st
}

func doRequest(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func waitFor(t *testing.T, h http.Handler, id string, status models.CaseStatus) models.Case {
	t.Helper()
	var c models.Case
	require.Eventually(t, func() bool {
		rec := doRequest(h, http.MethodGet, "/cases/"+id, "")
		if rec.Code != http.StatusOK {
			return false
		}
		c = models.Case{}
		if err := json.Unmarshal(rec.Body.Bytes(), &c); err != nil {
			return false
		}
		return c.Status == status
	}, 2*time.Second, 5*time.Millisecond)
	return c
}

func TestHealth(t *testing.T) {
	h, _ := newTestServer(t, false)
	rec := doRequest(h, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok":true`)
}

func TestCreateCaseRunsPipeline(t *testing.T) {
	h, _ := newTestServer(t, true)

	rec := doRequest(h, http.MethodPost, "/cases", `{"context":{"target":"Minister X"}}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var created struct {
		CaseID string `json:"caseId"`
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "PENDING", created.Status)

	c := waitFor(t, h, created.CaseID, models.StatusComplete)
	assert.Equal(t, models.FlagBlock, c.Result.Ethics.OverallFlag)
	assert.Nil(t, c.Result.SPI)

	raw := doRequest(h, http.MethodGet, "/cases/"+created.CaseID, "").Body.String()
	assert.Contains(t, raw, `"spi":null`)
}

func TestListCases(t *testing.T) {
	h, st := newTestServer(t, false)
	_, err := st.Create(context.Background(), json.RawMessage(`{"a":1}`))
	require.NoError(t, err)

	rec := doRequest(h, http.MethodGet, "/cases", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Cases []models.Case `json:"cases"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Cases, 1)
}

func TestGetCaseErrors(t *testing.T) {
	h, _ := newTestServer(t, false)
	assert.Equal(t, http.StatusBadRequest, doRequest(h, http.MethodGet, "/cases/not-a-uuid", "").Code)
	assert.Equal(t, http.StatusNotFound, doRequest(h, http.MethodGet, "/cases/"+uuid.NewString(), "").Code)
}

func TestCreateCaseRejectsBadBodies(t *testing.T) {
	h, _ := newTestServer(t, false)
	assert.Equal(t, http.StatusBadRequest, doRequest(h, http.MethodPost, "/cases", `{"context":`).Code)

	big := `{"blob":"` + strings.Repeat("x", 2048) + `"}`
	assert.Equal(t, http.StatusBadRequest, doRequest(h, http.MethodPost, "/cases", big).Code)
}

func TestReviewEndpoint(t *testing.T) {
	h, _ := newTestServer(t, true)

	rec := doRequest(h, http.MethodPost, "/cases", `{"context":{"project":{"industry":"Software","region":"EU"}}}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	var created struct {
		CaseID string `json:"caseId"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	waitFor(t, h, created.CaseID, models.StatusComplete)

	bad := doRequest(h, http.MethodPost, "/cases/"+created.CaseID+"/review", `{"decision":"perhaps"}`)
	assert.Equal(t, http.StatusBadRequest, bad.Code)

	ok := doRequest(h, http.MethodPost, "/cases/"+created.CaseID+"/review", `{"decision":"approve","notes":"fine"}`)
	require.Equal(t, http.StatusOK, ok.Code, ok.Body.String())
	var c models.Case
	require.NoError(t, json.Unmarshal(ok.Body.Bytes(), &c))
	assert.Equal(t, "approve", c.Result.AdminReview.Decision)
	assert.NotNil(t, c.Result.SPI)

	missing := doRequest(h, http.MethodPost, "/cases/"+uuid.NewString()+"/review", `{"decision":"approve"}`)
	assert.Equal(t, http.StatusNotFound, missing.Code)
}

func TestReviewOfPendingCaseConflicts(t *testing.T) {
	h, st := newTestServer(t, false)
	c, err := st.Create(context.Background(), json.RawMessage(`{}`))
	require.NoError(t, err)

	rec := doRequest(h, http.MethodPost, "/cases/"+c.ID.String()+"/review", `{"decision":"reject"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestComputeSPI(t *testing.T) {
	h, _ := newTestServer(t, false)
	rec := doRequest(h, http.MethodPost, "/spi/compute", `{"scores":{"transparency":0,"strategicFit":"90"},"weights":{"strategicFit":1}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var res models.SPIResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.InDelta(t, 90, res.SPI, 1e-9)
	assert.InDelta(t, 78, res.CILow, 1e-9)
	assert.InDelta(t, 102, res.CIHigh, 1e-9)
}
