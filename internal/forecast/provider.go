package forecast

import (
	"context"
	"time"
)

// Provider is the catalog adapter for one model. One implementation exists
// per source family and is selected once when a session is built.
type Provider interface {
	Model() Model

	// ListDays returns the day tokens available, sorted and de-duplicated.
	ListDays(ctx context.Context) ([]string, error)

	// ListForecastCycles returns the cycle tokens available on day, sorted
	// and de-duplicated, excluding cycles later than the current UTC hour.
	ListForecastCycles(ctx context.Context, day string) ([]string, error)

	// ListFiles returns absolute URLs of every raw file of a cycle.
	ListFiles(ctx context.Context, day, cycle string) ([]string, error)

	// FilterByVariables keeps the files encoding one of variables. It is
	// pure and order-preserving.
	FilterByVariables(files, variables []string) []string

	// Status returns the HTTP status code of the model's catalog root.
	Status(ctx context.Context) (int, error)
}

// Downloader fetches raw files into a local directory. A file already
// present by basename is never fetched again.
type Downloader interface {
	Missing(files []string, dir string) ([]string, error)
	FetchMissing(ctx context.Context, files []string, dir string) (int, error)
}

// ConversionSink transcodes a completed cycle directory.
type ConversionSink interface {
	Convert(ctx context.Context, dir string, model Model, variables []string) error
}

// RawRemover deletes the raw inputs of a converted cycle directory.
type RawRemover interface {
	RemoveRaw(ctx context.Context, dir string, model Model, variables []string) error
}

// Archiver copies a completed cycle directory to long-term storage.
type Archiver interface {
	Archive(ctx context.Context, dir string) error
}

// SessionStatus is a point-in-time view of a streaming session.
type SessionStatus struct {
	SessionID    string    `json:"sessionId"`
	Model        string    `json:"model"`
	Source       Source    `json:"source"`
	Cursor       Cursor    `json:"cursor"`
	Outcome      Outcome   `json:"outcome"`
	LastError    string    `json:"lastError,omitempty"`
	Iterations   int       `json:"iterations"`
	Recoveries   int       `json:"recoveries"`
	FilesFetched int       `json:"filesFetched"`
	StartedAt    time.Time `json:"startedAt"`
	Timestamp    time.Time `json:"timestamp"` // always UTC
}

// Nowcast is the newest published (day, cycle) of a model.
type Nowcast struct {
	Model     string    `json:"model"`
	Cursor    Cursor    `json:"cursor"`
	Files     int       `json:"files"`
	Timestamp time.Time `json:"timestamp"`
}

// Store is the contract the in-memory store (and any future persistent store) must satisfy.
type Store interface {
	SaveStatus(status SessionStatus)
	LatestStatus() (SessionStatus, error)
	StatusRange(from, to time.Time) ([]SessionStatus, error)
	SaveNowcast(n Nowcast)
	GetNowcast(model string) (Nowcast, error)
}
