package forecast

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Source identifies the agency publishing a model's catalog.
type Source string

const (
	SourceEC   Source = "EC"
	SourceNOAA Source = "NOAA"
)

// Model is immutable reference data for a forecast product.
type Model struct {
	Name         string   `json:"name"`
	Source       Source   `json:"source"`
	ResolutionKm float64  `json:"resolutionKm"`
	DataURL      string   `json:"dataUrl"`
	MetaURL      string   `json:"metaUrl"`
	Variables    []string `json:"variables"`
}

// Family returns the lower-cased product family, e.g. "gfs" for GFS_0p25.
func (m Model) Family() string {
	return strings.ToLower(strings.SplitN(m.Name, "_", 2)[0])
}

// Qualifier returns the lower-cased trailing name component: the grid for
// HRRR, the resolution for GFS and the nest for NAM. Models without one
// return their family.
func (m Model) Qualifier() string {
	parts := strings.Split(m.Name, "_")
	return strings.ToLower(parts[len(parts)-1])
}

// Resolution formats the nominal grid spacing.
func (m Model) Resolution() string {
	return fmt.Sprintf("%g km", m.ResolutionKm)
}

// Unsupported returns the requested variables the model does not expose.
func (m Model) Unsupported(variables []string) []string {
	known := make(map[string]struct{}, len(m.Variables))
	for _, v := range m.Variables {
		known[v] = struct{}{}
	}
	var missing []string
	for _, v := range variables {
		if _, ok := known[v]; !ok {
			missing = append(missing, v)
		}
	}
	return missing
}

// Cursor is the (day, cycle) position a session is polling.
type Cursor struct {
	Day   string `json:"day"`
	Cycle string `json:"cycle"`
}

func (c Cursor) String() string {
	return c.Day + "/" + c.Cycle
}

// DirName is the local directory name holding a cursor's raw files.
func (c Cursor) DirName(m Model) string {
	return fmt.Sprintf("%s-%s-%s-%s", m.Source, m.Name, c.Day, c.Cycle)
}

// Time returns the UTC initialisation time of the cursor's cycle.
func (c Cursor) Time() (time.Time, bool) {
	day, err := time.Parse(DayLayout, c.Day)
	if err != nil {
		return time.Time{}, false
	}
	hour, err := strconv.Atoi(c.Cycle)
	if err != nil {
		return time.Time{}, false
	}
	return day.Add(time.Duration(hour) * time.Hour), true
}

// StreamConfig holds the per-session options.
type StreamConfig struct {
	Variables             []string      `json:"variables" validate:"required,min=1,dive,required"`
	PollInterval          time.Duration `json:"pollInterval" validate:"gte=0"`
	ConvertOnCompletion   bool          `json:"convertOnCompletion"`
	DeleteRawAfterConvert bool          `json:"deleteRawAfterConvert"`
	VerifyOnStart         bool          `json:"verifyOnStart"`
	LoggingEnabled        bool          `json:"loggingEnabled"`
}

// DefaultStreamConfig returns the defaults for the optional session flags.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		DeleteRawAfterConvert: true,
		VerifyOnStart:         true,
		LoggingEnabled:        true,
	}
}

// DayLayout is the token format of a day.
const DayLayout = "20060102"

var models = map[string]Model{
	"HRDPS_continental": {
		Name: "HRDPS_continental", Source: SourceEC, ResolutionKm: 2.5,
		DataURL:   "https://dd.weather.gc.ca/model_hrdps/continental/2.5km",
		MetaURL:   "https://eccc-msc.github.io/open-data/msc-data/nwp_hrdps/readme_hrdps-datamart_en/#high-resolution-deterministic-prediction-system-hrdps-data-in-grib2-format",
		Variables: []string{"WIND_AGL-10m", "WDIR_AGL-10m", "PRES_Sfc", "WIND_Sfc", "WDIR_Sfc", "WSPD_Sfc", "PRMSL_MSL"},
	},
	"HRDPS_north": {
		Name: "HRDPS_north", Source: SourceEC, ResolutionKm: 2.5,
		DataURL:   "https://dd.weather.gc.ca/model_hrdps/north/grib2",
		MetaURL:   "https://eccc-msc.github.io/open-data/msc-data/nwp_hrdps/readme_hrdps-datamart_en/#high-resolution-deterministic-prediction-system-hrdps-data-in-grib2-format",
		Variables: []string{"WIND_AGL-10", "WDIR_AGL-10", "PRES_Sfc", "WIND_Sfc", "WDIR_Sfc", "WSPD_sfc"},
	},
	"RDPS": {
		Name: "RDPS", Source: SourceEC, ResolutionKm: 10,
		DataURL:   "https://dd.weather.gc.ca/model_gem_regional/10km/grib2",
		MetaURL:   "https://weather.gc.ca/grib/grib2_reg_10km_e.html",
		Variables: []string{"WIND_TGL_10", "WDIR_TGL_10", "PRES_SFC_0"},
	},
	"GDPS": {
		Name: "GDPS", Source: SourceEC, ResolutionKm: 15,
		DataURL:   "https://dd.weather.gc.ca/model_gem_global/15km/grib2/lat_lon",
		MetaURL:   "https://weather.gc.ca/grib/grib2_glb_25km_e.html",
		Variables: []string{"WIND_TGL_10", "WDIR_TGL_10", "PRES_SFC_0"},
	},
	"GEPS": {
		Name: "GEPS", Source: SourceEC, ResolutionKm: 50,
		DataURL:   "https://dd.weather.gc.ca/ensemble/geps/grib2/raw",
		MetaURL:   "https://weather.gc.ca/grib/grib2_ens_geps_e.html",
		Variables: []string{"WIND_TGL_10", "WDIR_TGL_10", "PRES_SFC_0"},
	},
	"HRRR_conus": {
		Name: "HRRR_conus", Source: SourceNOAA, ResolutionKm: 3,
		DataURL:   "https://nomads.ncep.noaa.gov/pub/data/nccf/com/hrrr/prod",
		MetaURL:   "https://www.nco.ncep.noaa.gov/pmb/products/hrrr",
		Variables: []string{"wrfsfc"},
	},
	"HRRR_alaska": {
		Name: "HRRR_alaska", Source: SourceNOAA, ResolutionKm: 12,
		DataURL:   "https://nomads.ncep.noaa.gov/pub/data/nccf/com/hrrr/prod",
		MetaURL:   "https://www.nco.ncep.noaa.gov/pmb/products/hrrr",
		Variables: []string{"wrfsfc"},
	},
	"GFS_0p25":       gfs("GFS_0p25", 25),
	"GFS_0p50":       gfs("GFS_0p50", 50),
	"GFS_1p00":       gfs("GFS_1p00", 100),
	"NAM_bgrdsf":     nam("NAM_bgrdsf", 12, nil),
	"NAM_conusnest":  nam("NAM_conusnest", 3, []string{"u10", "v10", "sp"}),
	"NAM_alaskanest": nam("NAM_alaskanest", 3, nil),
	"NAM_hawaiinest": nam("NAM_hawaiinest", 2.5, nil),
	"NAM_prinest":    nam("NAM_prinest", 2.5, nil),
	"CFS": {
		Name: "CFS", Source: SourceNOAA, ResolutionKm: 50,
		DataURL:   "https://www.ncei.noaa.gov/data/climate-forecast-system/access/operational-9-month-forecast/time-series",
		MetaURL:   "https://www.ncei.noaa.gov/products/weather-climate-models/climate-forecast-system",
		Variables: []string{"pressfc", "wnd10m", "tmpsfc"},
	},
}

func gfs(name string, res float64) Model {
	return Model{
		Name: name, Source: SourceNOAA, ResolutionKm: res,
		DataURL:   "https://nomads.ncep.noaa.gov/pub/data/nccf/com/gfs/prod",
		MetaURL:   "https://www.emc.ncep.noaa.gov/emc/pages/numerical_forecast_systems/gfs.php",
		Variables: []string{"pgrb2", "pgrb2b", "pgrb2full"},
	}
}

func nam(name string, res float64, vars []string) Model {
	if vars == nil {
		vars = []string{"alaskanest", "conusnest", "prinest", "hawaiinest", "bgrdsf"}
	}
	return Model{
		Name: name, Source: SourceNOAA, ResolutionKm: res,
		DataURL:   "https://nomads.ncep.noaa.gov/pub/data/nccf/com/nam/prod",
		MetaURL:   "https://www.emc.ncep.noaa.gov/emc/pages/numerical_forecast_systems/nam.php",
		Variables: vars,
	}
}

// LookupModel returns the registered model with the given name.
func LookupModel(name string) (Model, error) {
	m, ok := models[name]
	if !ok {
		return Model{}, fmt.Errorf("%w: %q", ErrUnknownModel, name)
	}
	m.Variables = append([]string(nil), m.Variables...)
	return m, nil
}

// Models returns every registered model ordered by name.
func Models() []Model {
	out := make([]Model, 0, len(models))
	for name := range models {
		m, _ := LookupModel(name)
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
