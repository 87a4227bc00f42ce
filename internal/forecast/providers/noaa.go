package providers

import (
	"context"
	"fmt"
	"regexp"

	"github.com/jonboulle/clockwork"

	"github.com/i474232898/atmostream/internal/forecast"
)

// NOAAProvider implements the forecast.Provider interface for the NOMADS
// and NCEI catalogs. Listing and naming depend on the model family.
type NOAAProvider struct {
	model  forecast.Model
	client *Client
	clock  clockwork.Clock

	family    string
	qualifier string
	dayRe     *regexp.Regexp
	cycleRe   *regexp.Regexp
}

func NewNOAAProvider(model forecast.Model, client *Client, clock clockwork.Clock) (*NOAAProvider, error) {
	p := &NOAAProvider{
		model:     model,
		client:    client,
		clock:     clock,
		family:    model.Family(),
		qualifier: model.Qualifier(),
	}

	switch p.family {
	case "hrrr", "nam":
		p.cycleRe = regexp.MustCompile(`\.t(\d{2})z\.`)
	case "gfs":
		p.cycleRe = regexp.MustCompile(`^(\d{2})/`)
	case "cfs":
		p.cycleRe = regexp.MustCompile(`^\d{8}(\d{2})/`)
	default:
		return nil, fmt.Errorf("%w: no NOAA catalog layout for %s", forecast.ErrUnknownModel, model.Name)
	}
	p.dayRe = regexp.MustCompile(`^` + regexp.QuoteMeta(p.family) + `\.(\d{8})/`)
	return p, nil
}

func (p *NOAAProvider) Model() forecast.Model {
	return p.model
}

// ListDays scrapes the catalog root. CFS trees are nested year, month, day;
// every other family lists <family>.<day>/ directories.
func (p *NOAAProvider) ListDays(ctx context.Context) ([]string, error) {
	hrefs, err := p.client.listHrefs(ctx, p.model.DataURL)
	if err != nil {
		return nil, err
	}
	if p.family != "cfs" {
		return matchGroups(hrefs, p.dayRe), nil
	}

	var days []string
	for _, year := range matchGroups(hrefs, numericDir) {
		yearURL := joinURL(p.model.DataURL, year+"/")
		monthHrefs, err := p.client.listHrefs(ctx, yearURL)
		if err != nil {
			return nil, err
		}
		for _, month := range matchGroups(monthHrefs, numericDir) {
			dayHrefs, err := p.client.listHrefs(ctx, joinURL(yearURL, month+"/"))
			if err != nil {
				return nil, err
			}
			days = append(days, matchGroups(dayHrefs, numericDir)...)
		}
	}
	return sortedUnique(days), nil
}

// ListForecastCycles lists the cycles of day. On the current UTC day the
// cycles after the current hour are dropped.
func (p *NOAAProvider) ListForecastCycles(ctx context.Context, day string) ([]string, error) {
	hrefs, err := p.client.listHrefs(ctx, p.dayURL(day))
	if err != nil {
		return nil, err
	}
	cycles := matchGroups(hrefs, p.cycleRe)
	now := p.clock.Now().UTC()
	if day == now.Format(forecast.DayLayout) {
		cycles = dropFuture(cycles, now.Hour())
	}
	return cycles, nil
}

// ListFiles lists the files of a cycle directory matching the family's
// file prefix.
func (p *NOAAProvider) ListFiles(ctx context.Context, day, cycle string) ([]string, error) {
	dir, pattern := p.cycleDir(day, cycle)
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	hrefs, err := p.client.listHrefs(ctx, dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, h := range hrefs {
		if re.MatchString(h) {
			files = append(files, joinURL(dir, h))
		}
	}
	return files, nil
}

// FilterByVariables applies the family's file grammar:
//
//	hrrr  z.<variable>            (product prefix)
//	gfs   .<variable>.<res>       (resolution qualified)
//	nam   .<nest>.                (nest suffix, variables live inside the file)
//	cfs   <variable>.             (plain substring)
func (p *NOAAProvider) FilterByVariables(files, variables []string) []string {
	var needles []string
	switch p.family {
	case "hrrr":
		for _, v := range variables {
			needles = append(needles, "z."+v)
		}
	case "gfs":
		for _, v := range variables {
			needles = append(needles, "."+v+"."+p.qualifier)
		}
	case "nam":
		needles = []string{"." + p.qualifier + "."}
	case "cfs":
		for _, v := range variables {
			needles = append(needles, v+".")
		}
	}
	return filterNames(files, needles)
}

func (p *NOAAProvider) Status(ctx context.Context) (int, error) {
	return p.client.Status(ctx, p.model.DataURL)
}

func (p *NOAAProvider) dayURL(day string) string {
	switch p.family {
	case "cfs":
		if len(day) < 8 {
			return joinURL(p.model.DataURL, day+"/")
		}
		return joinURL(p.model.DataURL, fmt.Sprintf("%s/%s/%s/", day[:4], day[:6], day[:8]))
	case "hrrr":
		return joinURL(p.model.DataURL, fmt.Sprintf("hrrr.%s/%s/", day, p.qualifier))
	default:
		return joinURL(p.model.DataURL, fmt.Sprintf("%s.%s/", p.family, day))
	}
}

// cycleDir returns the directory holding a cycle's files and the pattern
// its file names match.
func (p *NOAAProvider) cycleDir(day, cycle string) (string, string) {
	prefix := `^` + regexp.QuoteMeta(p.family) + `\.t` + regexp.QuoteMeta(cycle) + `z\.`
	switch p.family {
	case "gfs":
		return joinURL(p.dayURL(day), cycle+"/atmos/"), prefix
	case "cfs":
		return joinURL(p.dayURL(day), day+cycle+"/"), `\.grb2`
	default:
		return p.dayURL(day), prefix
	}
}
