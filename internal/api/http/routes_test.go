package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/atmostream/internal/forecast"
	"github.com/i474232898/atmostream/internal/logging"
	"github.com/i474232898/atmostream/internal/store"
)

type stubProvider struct {
	model forecast.Model
	files map[string][]string
	err   error
}

func (p *stubProvider) Model() forecast.Model { return p.model }

func (p *stubProvider) ListDays(ctx context.Context) ([]string, error) {
	if p.err != nil {
		return nil, p.err
	}
	return []string{"20240101"}, nil
}

func (p *stubProvider) ListForecastCycles(ctx context.Context, day string) ([]string, error) {
	return []string{"00", "06"}, nil
}

func (p *stubProvider) ListFiles(ctx context.Context, day, cycle string) ([]string, error) {
	return p.files[cycle], nil
}

func (p *stubProvider) FilterByVariables(files, variables []string) []string { return files }

func (p *stubProvider) Status(ctx context.Context) (int, error) {
	if p.err != nil {
		return 0, p.err
	}
	return http.StatusOK, nil
}

type fixture struct {
	app      *fiber.App
	store    *store.MemoryStore
	provider *stubProvider
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	model, err := forecast.LookupModel("RDPS")
	require.NoError(t, err)

	f := &fixture{
		app:   fiber.New(),
		store: store.NewMemoryStore(10, time.Hour),
		provider: &stubProvider{
			model: model,
			files: map[string][]string{"00": {"a.grib2", "b.grib2"}},
		},
	}
	svc := forecast.NewService(logging.Discard(), clockwork.NewRealClock(), f.store, []forecast.Provider{f.provider})
	RegisterRoutes(f.app, svc)
	return f
}

func (f *fixture) get(t *testing.T, target string, out any) int {
	t.Helper()
	resp, err := f.app.Test(httptest.NewRequest(http.MethodGet, target, nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, out))
	}
	return resp.StatusCode
}

func TestModelRoutes(t *testing.T) {
	f := newFixture(t)

	var list struct {
		Models  []forecast.Model `json:"models"`
		Tracked []string         `json:"tracked"`
	}
	require.Equal(t, http.StatusOK, f.get(t, "/api/v1/models", &list))
	assert.Len(t, list.Models, 16)
	assert.Equal(t, []string{"RDPS"}, list.Tracked)

	var model forecast.Model
	require.Equal(t, http.StatusOK, f.get(t, "/api/v1/models/GFS_0p25", &model))
	assert.Equal(t, forecast.SourceNOAA, model.Source)

	assert.Equal(t, http.StatusNotFound, f.get(t, "/api/v1/models/NOPE", nil))
}

func TestModelStatusRoute(t *testing.T) {
	f := newFixture(t)

	var probe struct {
		Status    int  `json:"status"`
		Available bool `json:"available"`
	}
	require.Equal(t, http.StatusOK, f.get(t, "/api/v1/models/RDPS/status", &probe))
	assert.Equal(t, http.StatusOK, probe.Status)
	assert.True(t, probe.Available)

	assert.Equal(t, http.StatusNotFound, f.get(t, "/api/v1/models/GDPS/status", nil))

	f.provider.err = errors.New("dial tcp: connection refused")
	assert.Equal(t, http.StatusBadGateway, f.get(t, "/api/v1/models/RDPS/status", nil))
}

func TestStreamRoutes(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, http.StatusNotFound, f.get(t, "/api/v1/stream", nil))

	now := time.Now().UTC()
	f.store.SaveStatus(forecast.SessionStatus{SessionID: "abc", Model: "RDPS", Outcome: forecast.OutcomeAwaiting, Timestamp: now})

	var st forecast.SessionStatus
	require.Equal(t, http.StatusOK, f.get(t, "/api/v1/stream", &st))
	assert.Equal(t, "abc", st.SessionID)
	assert.Equal(t, forecast.OutcomeAwaiting, st.Outcome)

	from := now.Add(-time.Minute).Format(time.RFC3339)
	to := now.Add(time.Minute).Format(time.RFC3339)
	assert.Equal(t, http.StatusOK, f.get(t, "/api/v1/stream/history?from="+from+"&to="+to, nil))
}

func TestStreamHistoryValidation(t *testing.T) {
	f := newFixture(t)

	// Missing range should return 400.
	assert.Equal(t, http.StatusBadRequest, f.get(t, "/api/v1/stream/history", nil))

	// Inverted range should also return 400.
	assert.Equal(t, http.StatusBadRequest, f.get(t, "/api/v1/stream/history?from=1704160800&to=1704067200", nil))

	assert.Equal(t, http.StatusBadRequest, f.get(t, "/api/v1/stream/history?from=yesterday&to=today", nil))
}

func TestNowcastRoute(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, http.StatusBadRequest, f.get(t, "/api/v1/nowcast", nil))
	assert.Equal(t, http.StatusNotFound, f.get(t, "/api/v1/nowcast?model=GDPS", nil))

	var n forecast.Nowcast
	require.Equal(t, http.StatusOK, f.get(t, "/api/v1/nowcast?model=RDPS", &n))
	assert.Equal(t, forecast.Cursor{Day: "20240101", Cycle: "00"}, n.Cursor)
	assert.Equal(t, 2, n.Files)

	stored, err := f.store.GetNowcast("RDPS")
	require.NoError(t, err)
	assert.Equal(t, n.Cursor, stored.Cursor)
}

func TestNowcastRoute_CatalogDown(t *testing.T) {
	f := newFixture(t)
	f.provider.err = errors.New("timeout")

	assert.Equal(t, http.StatusBadGateway, f.get(t, "/api/v1/nowcast?model=RDPS", nil))
}
