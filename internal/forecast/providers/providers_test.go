package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/atmostream/internal/forecast"
)

// catalog serves Apache-style directory listings keyed by path.
func catalog(t *testing.T, pages map[string][]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := r.URL.Path
		if !strings.HasSuffix(p, "/") {
			p += "/"
		}
		anchors, ok := pages[p]
		if !ok {
			http.NotFound(w, r)
			return
		}
		var b strings.Builder
		b.WriteString(`<html><body><h1>Index</h1><pre><a href="../">Parent Directory</a>`)
		for _, a := range anchors {
			fmt.Fprintf(&b, "<a href=%q>%s</a>\n", a, a)
		}
		b.WriteString("</pre></body></html>")
		_, _ = w.Write([]byte(b.String()))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testClient(srv *httptest.Server) *Client {
	return NewClient("test", srv.Client(), BackoffConfig{MaxRetries: 0, InitialInterval: time.Millisecond})
}

func modelAt(t *testing.T, name, dataURL string) forecast.Model {
	t.Helper()
	m, err := forecast.LookupModel(name)
	require.NoError(t, err)
	m.DataURL = dataURL
	return m
}

var middayJan2 = time.Date(2024, 1, 2, 12, 30, 0, 0, time.UTC)

func TestECProvider(t *testing.T) {
	t.Parallel()

	srv := catalog(t, map[string][]string{
		"/hrdps/":        {"00/", "06/", "12/", "18/"},
		"/hrdps/06/":     {"000/", "001/"},
		"/hrdps/06/000/": {"CMC_hrdps_continental_WIND_AGL-10m_ps2.5km_2024010206_P000-00.grib2", "CMC_hrdps_continental_TMP_AGL-2m_ps2.5km_2024010206_P000-00.grib2"},
		"/hrdps/06/001/": {"CMC_hrdps_continental_WIND_AGL-10m_ps2.5km_2024010206_P001-00.grib2", "README.txt"},
		"/hrdps/12/":     {},
		"/hrdps/18/":     {},
	})
	clock := clockwork.NewFakeClockAt(middayJan2)
	p, err := New(modelAt(t, "HRDPS_continental", srv.URL+"/hrdps"), testClient(srv), clock)
	require.NoError(t, err)
	ctx := context.Background()

	days, err := p.ListDays(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"20240102"}, days)

	cycles, err := p.ListForecastCycles(ctx, "20240101")
	require.NoError(t, err)
	assert.Equal(t, []string{"00", "06", "12"}, cycles)

	files, err := p.ListFiles(ctx, "20240102", "06")
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.Equal(t, srv.URL+"/hrdps/06/000/CMC_hrdps_continental_WIND_AGL-10m_ps2.5km_2024010206_P000-00.grib2", files[0])

	wind := p.FilterByVariables(files, []string{"WIND_AGL-10m"})
	assert.Len(t, wind, 2)

	code, err := p.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, code)
}

func TestECFilterByVariables(t *testing.T) {
	t.Parallel()

	p := NewECProvider(forecast.Model{Name: "RDPS", Source: forecast.SourceEC}, nil, clockwork.NewFakeClock())
	got := p.FilterByVariables([]string{"x_TEMP_y.grib2", "x_WIND_y.grib2"}, []string{"WIND"})
	assert.Equal(t, []string{"x_WIND_y.grib2"}, got)
	assert.Empty(t, p.FilterByVariables([]string{"x_TEMP_y.grib2"}, nil))
}

func TestNOAAProvider_GFS(t *testing.T) {
	t.Parallel()

	srv := catalog(t, map[string][]string{
		"/gfs/prod/":                       {"gfs.20240101/", "gfs.20240102/", "gfs.20240102/", "enkfgdas.20240102/"},
		"/gfs/prod/gfs.20240101/":          {"00/", "06/", "12/", "18/"},
		"/gfs/prod/gfs.20240102/":          {"00/", "06/", "12/", "18/"},
		"/gfs/prod/gfs.20240102/06/atmos/": {"gfs.t06z.pgrb2.0p25.f000", "gfs.t06z.pgrb2.0p25.f000.idx", "gfs.t06z.pgrb2.1p00.f000", "gfs.t06z.pgrb2b.0p25.f000", "gdas.t06z.pgrb2.0p25.f000"},
	})
	p, err := New(modelAt(t, "GFS_0p25", srv.URL+"/gfs/prod"), testClient(srv), clockwork.NewFakeClockAt(middayJan2))
	require.NoError(t, err)
	ctx := context.Background()

	days, err := p.ListDays(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"20240101", "20240102"}, days)

	cycles, err := p.ListForecastCycles(ctx, "20240101")
	require.NoError(t, err)
	assert.Equal(t, []string{"00", "06", "12", "18"}, cycles)

	cycles, err = p.ListForecastCycles(ctx, "20240102")
	require.NoError(t, err)
	assert.Equal(t, []string{"00", "06", "12"}, cycles)

	files, err := p.ListFiles(ctx, "20240102", "06")
	require.NoError(t, err)
	assert.Len(t, files, 4)

	got := p.FilterByVariables(files, []string{"pgrb2"})
	assert.Equal(t, []string{
		srv.URL + "/gfs/prod/gfs.20240102/06/atmos/gfs.t06z.pgrb2.0p25.f000",
		srv.URL + "/gfs/prod/gfs.20240102/06/atmos/gfs.t06z.pgrb2.0p25.f000.idx",
	}, got)

	_, err = p.ListFiles(ctx, "20240102", "12")
	require.Error(t, err)
}

func TestNOAAProvider_CFS(t *testing.T) {
	t.Parallel()

	srv := catalog(t, map[string][]string{
		"/cfs/":                                 {"2023/", "2024/"},
		"/cfs/2023/":                            {"202312/"},
		"/cfs/2023/202312/":                     {"20231231/"},
		"/cfs/2024/":                            {"202401/"},
		"/cfs/2024/202401/":                     {"20240101/", "20240102/"},
		"/cfs/2024/202401/20240101/":            {"2024010100/", "2024010106/"},
		"/cfs/2024/202401/20240101/2024010100/": {"wnd10m.01.2024010100.daily.grb2", "pressfc.01.2024010100.daily.grb2", "readme.txt"},
	})
	p, err := New(modelAt(t, "CFS", srv.URL+"/cfs"), testClient(srv), clockwork.NewFakeClockAt(middayJan2))
	require.NoError(t, err)
	ctx := context.Background()

	days, err := p.ListDays(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"20231231", "20240101", "20240102"}, days)

	cycles, err := p.ListForecastCycles(ctx, "20240101")
	require.NoError(t, err)
	assert.Equal(t, []string{"00", "06"}, cycles)

	files, err := p.ListFiles(ctx, "20240101", "00")
	require.NoError(t, err)
	assert.Len(t, files, 2)

	got := p.FilterByVariables(files, []string{"wnd10m"})
	assert.Equal(t, []string{srv.URL + "/cfs/2024/202401/20240101/2024010100/wnd10m.01.2024010100.daily.grb2"}, got)
}

func TestNOAAProvider_HRRRAndNAM(t *testing.T) {
	t.Parallel()

	srv := catalog(t, map[string][]string{
		"/hrrr/":                     {"hrrr.20240101/"},
		"/hrrr/hrrr.20240101/conus/": {"hrrr.t00z.wrfsfcf00.grib2", "hrrr.t00z.wrfprsf00.grib2", "hrrr.t01z.wrfsfcf00.grib2"},
		"/nam/nam.20240101/":         {"nam.t00z.conusnest.hiresf00.tm00.grib2", "nam.t00z.alaskanest.hiresf00.tm00.grib2", "nam.t06z.conusnest.hiresf00.tm00.grib2"},
	})
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(middayJan2)

	hrrr, err := New(modelAt(t, "HRRR_conus", srv.URL+"/hrrr"), testClient(srv), clock)
	require.NoError(t, err)

	days, err := hrrr.ListDays(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"20240101"}, days)

	cycles, err := hrrr.ListForecastCycles(ctx, "20240101")
	require.NoError(t, err)
	assert.Equal(t, []string{"00", "01"}, cycles)

	files, err := hrrr.ListFiles(ctx, "20240101", "00")
	require.NoError(t, err)
	assert.Len(t, files, 2)
	assert.Len(t, hrrr.FilterByVariables(files, []string{"wrfsfc"}), 1)

	nam, err := New(modelAt(t, "NAM_conusnest", srv.URL+"/nam"), testClient(srv), clock)
	require.NoError(t, err)

	cycles, err = nam.ListForecastCycles(ctx, "20240101")
	require.NoError(t, err)
	assert.Equal(t, []string{"00", "06"}, cycles)

	files, err = nam.ListFiles(ctx, "20240101", "00")
	require.NoError(t, err)
	assert.Len(t, files, 2)
	got := nam.FilterByVariables(files, []string{"u10"})
	assert.Equal(t, []string{srv.URL + "/nam/nam.20240101/nam.t00z.conusnest.hiresf00.tm00.grib2"}, got)
}

func TestNew_UnknownFamily(t *testing.T) {
	t.Parallel()

	_, err := New(forecast.Model{Name: "ICON_global", Source: forecast.SourceNOAA}, nil, nil)
	require.ErrorIs(t, err, forecast.ErrUnknownModel)

	_, err = New(forecast.Model{Name: "X", Source: "DWD"}, nil, nil)
	require.Error(t, err)
}
