package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/jackc/pgx/v5/pgxpool"
	comms "github.com/nats-io/nats.go"

	"github.com/morezero/endpoint-console/internal/config"
	"github.com/morezero/endpoint-console/internal/server"
	"github.com/morezero/endpoint-console/pkg/auth"
	"github.com/morezero/endpoint-console/pkg/commsutil"
	"github.com/morezero/endpoint-console/pkg/db"
	"github.com/morezero/endpoint-console/pkg/endpoints"
	"github.com/morezero/endpoint-console/pkg/invoke"
	"github.com/morezero/endpoint-console/pkg/registry"
	"github.com/morezero/endpoint-console/pkg/snapshot"
)

var (
	moduleColor  = color.New(color.FgBlue, color.Bold)
	serviceColor = color.New(color.FgCyan)
	methodColor  = color.New(color.Bold)
	faintColor   = color.New(color.Faint)
	badgeColors  = map[invoke.Badge]*color.Color{
		invoke.BadgeSuccess: color.New(color.FgGreen, color.Bold),
		invoke.BadgeWarning: color.New(color.FgYellow, color.Bold),
		invoke.BadgeError:   color.New(color.FgRed, color.Bold),
	}
)

// loadCLIConfig loads config and sends logs to stderr so stdout stays clean.
func loadCLIConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	server.SetupLogging(os.Stderr, cfg.LogLevel)
	return cfg, nil
}

// openRegistry loads the configured snapshot once. The returned func closes
// any connection the source needed.
func openRegistry(ctx context.Context, cfg *config.Config) (*registry.Registry, func(), error) {
	if err := cfg.ValidateSnapshot(); err != nil {
		return nil, nil, err
	}

	var nc *comms.Conn
	var pool *pgxpool.Pool
	var err error
	closeAll := func() {
		commsutil.Drain(nc)
		if pool != nil {
			pool.Close()
		}
	}

	switch cfg.SnapshotSource {
	case config.SourceComms:
		nc, err = commsutil.Connect(cfg.COMMSURL, cfg.COMMSName)
	case config.SourcePostgres:
		pool, err = db.NewPool(ctx, cfg.DatabaseURL)
	}
	if err != nil {
		return nil, nil, err
	}

	src, err := snapshot.NewSource(snapshot.NewSourceParams{
		Kind:    cfg.SnapshotSource,
		File:    cfg.SnapshotFile,
		URL:     cfg.SnapshotURL,
		Subject: cfg.SnapshotSubject,
		Timeout: cfg.SnapshotTimeout,
		Conn:    nc,
		Pool:    pool,
	})
	if err != nil {
		closeAll()
		return nil, nil, err
	}
	reg, err := registry.Load(ctx, src)
	if err != nil {
		closeAll()
		return nil, nil, err
	}
	return reg, closeAll, nil
}

func runModules(w io.Writer, module string) error {
	cfg, err := loadCLIConfig()
	if err != nil {
		return err
	}
	reg, closeAll, err := openRegistry(context.Background(), cfg)
	if err != nil {
		return err
	}
	defer closeAll()

	modules := reg.AllModules()
	if module != "" {
		m, err := reg.Lookup(module)
		if err != nil {
			return err
		}
		modules = []endpoints.Module{*m}
	}
	printModules(w, modules)
	return nil
}

func runResolve(w io.Writer, method, module, service, path string) error {
	cfg, err := loadCLIConfig()
	if err != nil {
		return err
	}
	reg, closeAll, err := openRegistry(context.Background(), cfg)
	if err != nil {
		return err
	}
	defer closeAll()

	out, err := reg.Resolve(&registry.ResolveInput{
		Method:  endpoints.Method(method),
		Module:  module,
		Service: service,
		Path:    path,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s %s\n", methodColor.Sprint(out.Method), out.URL)
	if out.DefaultScheme {
		faintColor.Fprintf(w, "  (address %q has no scheme; http assumed)\n", out.Address)
	}
	return nil
}

// runInvoke resolves and calls a route once. A body of "-" is read from stdin.
func runInvoke(w io.Writer, method, module, service, path, body string) error {
	cfg, err := loadCLIConfig()
	if err != nil {
		return err
	}
	if err := cfg.ValidateAuth(); err != nil {
		return err
	}
	if body == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("read body: %w", err)
		}
		body = string(data)
	}
	body = strings.TrimSpace(body)
	if body != "" && !json.Valid([]byte(body)) {
		return fmt.Errorf("body is not valid JSON")
	}

	ctx := context.Background()
	reg, closeAll, err := openRegistry(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeAll()

	target, err := reg.Resolve(&registry.ResolveInput{
		Method:  endpoints.Method(method),
		Module:  module,
		Service: service,
		Path:    path,
	})
	if err != nil {
		return err
	}
	provider, err := auth.NewProvider(auth.NewProviderParams{
		Kind:        cfg.AuthType,
		StaticToken: cfg.AuthToken,
		Credentials: auth.NewClientCredentialsParams{
			Domain:       cfg.Auth0Domain,
			ClientID:     cfg.Auth0ClientID,
			ClientSecret: cfg.Auth0ClientSecret,
			Audience:     cfg.Auth0Audience,
		},
	})
	if err != nil {
		return err
	}

	engine := invoke.NewEngine(invoke.NewEngineParams{Timeout: cfg.InvokeTimeout})
	result := engine.Invoke(ctx, &invoke.Request{
		URL:     target.URL,
		Method:  target.Method,
		Body:    []byte(body),
		Token:   auth.Acquire(ctx, provider),
		Module:  target.Module,
		Service: target.Service,
		Path:    target.Path,
	})
	printResult(w, target, result)
	return nil
}

// runValidate decodes and validates a snapshot file and prints its counts.
func runValidate(w io.Writer, file string) error {
	if file == "" {
		cfg, err := loadCLIConfig()
		if err != nil {
			return err
		}
		file = cfg.SnapshotFile
	}
	reg, err := registry.Load(context.Background(), snapshot.NewFileSource(file))
	if err != nil {
		if regErr, ok := err.(*registry.RegistryError); ok {
			if details, ok := regErr.Details.(map[string]interface{}); ok {
				if problems, ok := details["problems"].([]string); ok {
					for _, p := range problems {
						fmt.Fprintf(w, "  %s %s\n", badgeColors[invoke.BadgeError].Sprint("x"), p)
					}
				}
			}
		}
		return err
	}
	stats := reg.Stats()
	fmt.Fprintf(w, "%s %s: %d modules, %d services, %d routes\n",
		badgeColors[invoke.BadgeSuccess].Sprint("ok"), stats.Source, stats.Modules, stats.Services, stats.Routes)
	return nil
}

// printModules writes the module -> service -> route tree.
func printModules(w io.Writer, modules []endpoints.Module) {
	if len(modules) == 0 {
		fmt.Fprintln(w, "No modules registered.")
		return
	}
	for _, m := range modules {
		moduleColor.Fprintln(w, m.Name)
		for _, s := range m.Services {
			version := ""
			if s.Version != "" {
				version = " " + faintColor.Sprint("v"+s.Version)
			}
			fmt.Fprintf(w, "  %s %s%s\n", serviceColor.Sprint(s.Name), s.Address, version)
			if len(s.Routes) == 0 {
				faintColor.Fprintln(w, "    (no routes)")
			}
			for _, r := range s.Routes {
				suffix := ""
				if r.Visibility == endpoints.VisibilityPrivate {
					suffix = " " + faintColor.Sprint("(private)")
				}
				fmt.Fprintf(w, "    %s %s%s\n", methodColor.Sprintf("%-6s", r.Method), r.Path, suffix)
			}
		}
	}
}

// printResult writes the status badge, timing and the pretty-printed payload.
func printResult(w io.Writer, target *registry.ResolveOutput, r *invoke.Result) {
	status := "no response"
	if r.StatusCode != nil {
		status = fmt.Sprintf("%d", *r.StatusCode)
	}
	badge := badgeColors[r.Badge]
	if badge == nil {
		badge = badgeColors[invoke.BadgeError]
	}
	fmt.Fprintf(w, "%s %s %s -> %s (%dms)\n",
		badge.Sprintf("[%s]", r.Outcome), methodColor.Sprint(target.Method), target.URL, status, r.DurationMs)
	if r.ErrorMessage != "" {
		fmt.Fprintf(w, "%s\n", r.ErrorMessage)
	}
	if r.Auth.Attached {
		line := "bearer token attached"
		if r.Auth.Subject != "" {
			line += " (sub " + r.Auth.Subject + ")"
		}
		if r.Auth.Expired {
			line += ", expired"
		}
		faintColor.Fprintln(w, line)
	}
	if r.Payload != nil {
		data, err := json.MarshalIndent(r.Payload, "", "  ")
		if err != nil {
			fmt.Fprintf(w, "%v\n", r.Payload)
			return
		}
		fmt.Fprintln(w, string(data))
	}
}
