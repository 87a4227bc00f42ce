package convert

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/atmostream/internal/forecast"
	"github.com/i474232898/atmostream/internal/logging"
)

func touch(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, n := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), nil, 0o644))
	}
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func TestGlobRemover(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	touch(t, dir,
		"CMC_WIND_AGL-10m_P000.grib2",
		"CMC_WIND_AGL-10m_P000.grib2.5b7b6.idx",
		"CMC_TMP_AGL-2m_P000.grib2",
		"wnd10m.01.2024010100.daily.grb2",
		"WIND_AGL-10m.dfs2",
	)

	r := NewGlobRemover(logging.Discard())
	model := forecast.Model{Name: "HRDPS_continental", Source: forecast.SourceEC}
	require.NoError(t, r.RemoveRaw(context.Background(), dir, model, []string{"WIND_AGL-10m", "wnd10m"}))

	assert.Equal(t, []string{"CMC_TMP_AGL-2m_P000.grib2", "WIND_AGL-10m.dfs2"}, listDir(t, dir))
}

func TestNewExecConverter_RequiresCommand(t *testing.T) {
	t.Parallel()

	_, err := NewExecConverter(logging.Discard(), nil)
	var cfgErr *forecast.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
}

func TestExecConverter(t *testing.T) {
	t.Parallel()

	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	model := forecast.Model{Name: "CFS", Source: forecast.SourceNOAA}

	t.Run("substitutes placeholders", func(t *testing.T) {
		dir := t.TempDir()
		c, err := NewExecConverter(logging.Discard(), []string{sh, "-c", `echo "$1 $2 $3" > "$0/converted"`, "{dir}", "{source}", "{model}", "{variables}"})
		require.NoError(t, err)

		require.NoError(t, c.Convert(context.Background(), dir, model, []string{"wnd10m", "pressfc"}))
		data, err := os.ReadFile(filepath.Join(dir, "converted"))
		require.NoError(t, err)
		assert.Equal(t, "NOAA CFS wnd10m,pressfc\n", string(data))
	})

	t.Run("non-zero exit is a conversion failure", func(t *testing.T) {
		c, err := NewExecConverter(logging.Discard(), []string{sh, "-c", "echo broken >&2; exit 3"})
		require.NoError(t, err)

		err = c.Convert(context.Background(), t.TempDir(), model, []string{"wnd10m"})
		require.ErrorIs(t, err, forecast.ErrConversionFailure)
		assert.Contains(t, err.Error(), "broken")
	})
}
