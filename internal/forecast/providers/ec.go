package providers

import (
	"context"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/jonboulle/clockwork"

	"github.com/i474232898/atmostream/internal/common"
	"github.com/i474232898/atmostream/internal/forecast"
)

var numericDir = regexp.MustCompile(`^(\d+)/`)

const gribExt = ".grib2"

// ECProvider implements the forecast.Provider interface for the Environment
// Canada datamart. Its trees are browsable by cycle only: the listing always
// reflects the current UTC day.
type ECProvider struct {
	model  forecast.Model
	client *Client
	clock  clockwork.Clock
}

func NewECProvider(model forecast.Model, client *Client, clock clockwork.Clock) *ECProvider {
	return &ECProvider{model: model, client: client, clock: clock}
}

func (p *ECProvider) Model() forecast.Model {
	return p.model
}

// ListDays always returns the current UTC day.
func (p *ECProvider) ListDays(ctx context.Context) ([]string, error) {
	return []string{p.clock.Now().UTC().Format(forecast.DayLayout)}, nil
}

// ListForecastCycles lists the numeric cycle directories of the catalog
// root. The root always shows today's cycles, so cycles later than the
// current UTC hour are dropped whatever day is asked for.
func (p *ECProvider) ListForecastCycles(ctx context.Context, day string) ([]string, error) {
	hrefs, err := p.client.listHrefs(ctx, p.model.DataURL)
	if err != nil {
		return nil, err
	}
	return dropFuture(matchGroups(hrefs, numericDir), p.clock.Now().UTC().Hour()), nil
}

// ListFiles lists the grid files of every lead-hour folder of cycle.
func (p *ECProvider) ListFiles(ctx context.Context, day, cycle string) ([]string, error) {
	cycleURL := joinURL(p.model.DataURL, cycle+"/")
	hrefs, err := p.client.listHrefs(ctx, cycleURL)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, hour := range matchGroups(hrefs, numericDir) {
		hourURL := joinURL(cycleURL, hour+"/")
		names, err := p.client.listHrefs(ctx, hourURL)
		if err != nil {
			return nil, err
		}
		for _, name := range names {
			if strings.Contains(name, gribExt) {
				files = append(files, joinURL(hourURL, name))
			}
		}
	}
	return files, nil
}

// FilterByVariables keeps files whose name holds _<variable>_.
func (p *ECProvider) FilterByVariables(files, variables []string) []string {
	needles := make([]string, len(variables))
	for i, v := range variables {
		needles[i] = "_" + v + "_"
	}
	return filterNames(files, needles)
}

func (p *ECProvider) Status(ctx context.Context) (int, error) {
	return p.client.Status(ctx, p.model.DataURL)
}

// dropFuture removes cycles whose hour is after hour.
func dropFuture(cycles []string, hour int) []string {
	out := cycles[:0:0]
	for _, c := range cycles {
		if h, err := strconv.Atoi(c); err == nil && h > hour {
			continue
		}
		out = append(out, c)
	}
	return out
}

// filterNames keeps the files whose base name contains any of needles,
// preserving order.
func filterNames(files, needles []string) []string {
	var out []string
	for _, f := range files {
		if common.HasAny(path.Base(f), needles...) {
			out = append(out, f)
		}
	}
	return out
}
