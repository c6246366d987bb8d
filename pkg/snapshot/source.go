package snapshot

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	comms "github.com/nats-io/nats.go"

	"github.com/morezero/endpoint-console/pkg/db"
	"github.com/morezero/endpoint-console/pkg/endpoints"
)

// Source yields one snapshot of the deployment's endpoints per call.
type Source interface {
	// Describe names the source for logs and error messages.
	Describe() string
	Fetch(ctx context.Context) ([]endpoints.Module, error)
}

// Source kinds accepted by NewSource.
const (
	KindFile     = "file"
	KindHTTP     = "http"
	KindComms    = "comms"
	KindPostgres = "postgres"
)

// NewSourceParams holds parameters for NewSource. Only the fields the chosen
// kind needs are read.
type NewSourceParams struct {
	Kind    string
	File    string
	URL     string
	Subject string
	Timeout time.Duration
	Conn    *comms.Conn
	Pool    *pgxpool.Pool
}

// NewSource builds the Source for params.Kind.
func NewSource(params NewSourceParams) (Source, error) {
	switch params.Kind {
	case KindFile, "":
		return NewFileSource(params.File), nil
	case KindHTTP:
		if params.URL == "" {
			return nil, fmt.Errorf("snapshot:source - http source requires a URL")
		}
		return NewHTTPSource(params.URL, params.Timeout), nil
	case KindComms:
		if params.Conn == nil {
			return nil, fmt.Errorf("snapshot:source - comms source requires a connection")
		}
		return NewCommsSource(params.Conn, params.Subject, params.Timeout), nil
	case KindPostgres:
		if params.Pool == nil {
			return nil, fmt.Errorf("snapshot:source - postgres source requires a pool")
		}
		return NewPostgresSource(db.NewRepository(params.Pool)), nil
	default:
		return nil, fmt.Errorf("snapshot:source - unknown source kind %q", params.Kind)
	}
}

// StaticSource serves a fixed, already-decoded snapshot.
type StaticSource struct {
	Modules []endpoints.Module
}

// Describe implements Source.
func (s *StaticSource) Describe() string { return "static" }

// Fetch implements Source.
func (s *StaticSource) Fetch(_ context.Context) ([]endpoints.Module, error) {
	out := make([]endpoints.Module, len(s.Modules))
	for i, m := range s.Modules {
		out[i] = m.Clone()
	}
	return out, nil
}

// envFile is consulted by FileSource after explicit paths.
const envFile = "SNAPSHOT_FILE"

// defaultFiles are consulted by FileSource when nothing else is found.
var defaultFiles = []string{"config/endpoints.json", "config/endpoints.yaml", "endpoints.json"}

func candidatePaths(explicit ...string) []string {
	all := make([]string, 0, len(explicit)+len(defaultFiles)+1)
	for _, p := range explicit {
		if p != "" {
			all = append(all, p)
		}
	}
	if p := os.Getenv(envFile); p != "" {
		all = append(all, p)
	}
	return append(all, defaultFiles...)
}
