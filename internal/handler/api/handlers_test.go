package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"CardSignals/internal/domain/models"
	domrepo "CardSignals/internal/domain/repository"
	"CardSignals/internal/usecase"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeQuery struct {
	latestReq models.LatestSignalsRequest
	latest    []models.LatestSignal
	proof     *models.SignalProof
	proofErr  error
	snaps     []models.FeatureSnapshot
	histLimit int
	histErr   error
}

func (f *fakeQuery) Latest(_ context.Context, req models.LatestSignalsRequest) ([]models.LatestSignal, error) {
	f.latestReq = req
	return f.latest, nil
}

func (f *fakeQuery) Proof(context.Context, string) (*models.SignalProof, error) {
	return f.proof, f.proofErr
}

func (f *fakeQuery) CardSnapshots(context.Context, string) ([]models.FeatureSnapshot, error) {
	return f.snaps, nil
}

func (f *fakeQuery) CardHistory(_ context.Context, _ string, limit int) ([]models.FeatureSnapshot, error) {
	f.histLimit = limit
	return nil, f.histErr
}

type fakeFV struct {
	got models.FairValueRequest
	out *models.FairValueQuote
	err error
}

func (f *fakeFV) Quote(_ context.Context, req models.FairValueRequest) (*models.FairValueQuote, error) {
	f.got = req
	return f.out, f.err
}

type fakeJobs struct {
	queued bool
	since  int
}

func (f *fakeJobs) Featurize(_ context.Context, req models.FeaturizeJobRequest) (usecase.JobOutcome, error) {
	f.since = req.SinceHours
	if f.queued {
		return usecase.JobOutcome{Queued: true, JobID: "job-1"}, nil
	}
	return usecase.JobOutcome{Refresh: &models.RefreshResult{}}, nil
}

func (f *fakeJobs) Score(context.Context, models.ScoreJobRequest) (usecase.JobOutcome, error) {
	return usecase.JobOutcome{Score: &models.ScoreResult{Created: 2}}, nil
}

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func serve(t *testing.T, e *echo.Echo, method, target, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	var env envelope
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func TestFairValueRequiresNameAndPrice(t *testing.T) {
	e := echo.New()
	NewFairValueEchoHandler(nil, &fakeFV{}, nil).RegisterRoutes(e)

	rec, env := serve(t, e, http.MethodGet, "/api/fv?set=base1&list_price=10", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, string(env.Data), "ERR_REQUIRED")

	rec, _ = serve(t, e, http.MethodGet, "/api/fv?name=Pikachu&set=base1&list_price=0", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFairValueAppliesDefaults(t *testing.T) {
	e := echo.New()
	fv := &fakeFV{out: &models.FairValueQuote{Name: "Pikachu", FairValue: 12.5, DiscountPct: 20, Qualified: true}}
	NewFairValueEchoHandler(nil, fv, nil).RegisterRoutes(e)

	rec, env := serve(t, e, http.MethodGet, "/api/fv?name=Pikachu&set=base1&list_price=10", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "RAW", fv.got.Grade)
	assert.Equal(t, "EN", fv.got.Language)

	var q models.FairValueQuote
	require.NoError(t, json.Unmarshal(env.Data, &q))
	assert.Equal(t, 12.5, q.FairValue)
	assert.True(t, q.Qualified)
}

func TestFairValueMapsStoreOutage(t *testing.T) {
	e := echo.New()
	fv := &fakeFV{err: domrepo.ErrStoreUnavailable}
	NewFairValueEchoHandler(nil, fv, nil).RegisterRoutes(e)

	rec, _ := serve(t, e, http.MethodGet, "/api/fv?name=Pikachu&set=base1&list_price=10", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestLatestSignalsValidatesAndDefaults(t *testing.T) {
	e := echo.New()
	q := &fakeQuery{latest: []models.LatestSignal{{ID: "s1", EdgeBp: 1500, EdgePctStr: "15.0%"}}}
	NewSignalsEchoHandler(nil, q, nil).RegisterRoutes(e)

	rec, _ := serve(t, e, http.MethodGet, "/api/signals/latest?sort=volume", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = serve(t, e, http.MethodGet, "/api/signals/latest?limit=101", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, env := serve(t, e, http.MethodGet, "/api/signals/latest?sort=conf&include_blank=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "conf", q.latestReq.Sort)
	assert.Equal(t, 20, q.latestReq.Limit)
	assert.True(t, q.latestReq.IncludeBlank)
	assert.Contains(t, string(env.Data), `"edgePctStr":"15.0%"`)
	assert.Contains(t, string(env.Data), `"total":1`)
}

func TestProofUnknownSignalIs404(t *testing.T) {
	e := echo.New()
	q := &fakeQuery{proofErr: domrepo.ErrNotFound}
	NewSignalsEchoHandler(nil, q, nil).RegisterRoutes(e)

	rec, env := serve(t, e, http.MethodGet, "/api/signals/nope/proof", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, string(env.Data), "ERR_NOT_FOUND")
}

func TestHistoryWithoutArchiveIs503(t *testing.T) {
	e := echo.New()
	q := &fakeQuery{histErr: domrepo.ErrNotConfigured}
	NewSignalsEchoHandler(nil, q, nil).RegisterRoutes(e)

	rec, _ := serve(t, e, http.MethodGet, "/api/cards/sv3-125/history?limit=5", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, 5, q.histLimit)
}

func TestSnapshotsListsCurrentWindows(t *testing.T) {
	e := echo.New()
	q := &fakeQuery{snaps: []models.FeatureSnapshot{{CardID: "c1", WindowDays: 90}, {CardID: "c1", WindowDays: 30}}}
	NewSignalsEchoHandler(nil, q, nil).RegisterRoutes(e)

	rec, env := serve(t, e, http.MethodGet, "/api/cards/c1/snapshots", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(env.Data), `"total":2`)
}

func TestJobsQueuedAndInline(t *testing.T) {
	e := echo.New()
	jobs := &fakeJobs{queued: true}
	NewJobsEchoHandler(nil, jobs).RegisterRoutes(e)

	rec, env := serve(t, e, http.MethodPost, "/api/jobs/featurize", `{"since_hours":48}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 48, jobs.since)
	assert.Contains(t, string(env.Data), "job-1")

	rec, _ = serve(t, e, http.MethodPost, "/api/jobs/featurize", `{"since_hours":-1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, env = serve(t, e, http.MethodPost, "/api/jobs/score", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(env.Data), `"created":2`)
}

func TestHealthReportsDegraded(t *testing.T) {
	e := echo.New()
	NewHealthEchoHandler(map[string]HealthCheck{
		"postgres": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("dial tcp: refused") },
	}).RegisterRoutes(e)

	rec, env := serve(t, e, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, string(env.Data), `"postgres":"ok"`)
	assert.Contains(t, string(env.Data), "refused")
}
