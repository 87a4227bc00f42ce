package providers

import (
	"fmt"

	"github.com/jonboulle/clockwork"

	"github.com/i474232898/atmostream/internal/forecast"
)

// New selects the catalog adapter for model's source.
func New(model forecast.Model, client *Client, clock clockwork.Clock) (forecast.Provider, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	switch model.Source {
	case forecast.SourceEC:
		return NewECProvider(model, client, clock), nil
	case forecast.SourceNOAA:
		return NewNOAAProvider(model, client, clock)
	default:
		return nil, fmt.Errorf("model source %q not supported", model.Source)
	}
}
