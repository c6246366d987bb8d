// Package main is the entrypoint for the endpoint-console (binary name "console").
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/morezero/endpoint-console/internal/server"
)

const usage = `Usage: console [command]
       console serve                                  Start the console (HTTP, optional COMMS API).
       console modules [module]                       Print the module -> service -> route tree.
       console resolve METHOD MODULE SERVICE PATH     Print the URL a route resolves to.
       console invoke METHOD MODULE SERVICE PATH [body]  Resolve and call a route once.
       console validate [file]                        Check a snapshot file without starting anything.
       console migrate up                             Run database migrations.
       console migrate status                         Show migration status.
       console seed [file]                            Replace the stored snapshot with a snapshot file.
       console clear                                  Delete every stored route; schema is preserved.
       console ensure-db [name]                       Create database if missing (default name: console_test).
       console version                                Print the build version.

Commands:
  serve           (default) Start the endpoint console.
  modules         Load the configured snapshot and print it.
  resolve         Resolve one (method, module, service, path) selection.
  invoke          Resolve and invoke; body is JSON, "-" reads it from stdin.
  validate        Decode and validate a snapshot file (default SNAPSHOT_FILE).
  migrate up      Run database migrations only.
  migrate status  Show current migration status.
  seed [file]     Load a JSON or YAML snapshot into Postgres (default SNAPSHOT_FILE).
  clear           Delete stored routes.
  ensure-db       Create database on the same host as DATABASE_URL.

Environment: SNAPSHOT_SOURCE, SNAPSHOT_FILE, SNAPSHOT_URL, COMMS_URL, DATABASE_URL, MIGRATION_PATH,
AUTH_TYPE, AUTH_TOKEN, AUTH0_*, INVOKE_TIMEOUT, CONSOLE_HTTP_ADDR, LOG_LEVEL.
Variables are also read from .env (or CONSOLE_ENV_FILE) when present.
`

func main() {
	loadEnvFile()

	args := os.Args[1:]
	cmd := ""
	if len(args) > 0 && args[0] != "" {
		cmd = args[0]
	}

	switch cmd {
	case "modules":
		module := ""
		if len(args) > 1 {
			module = args[1]
		}
		if err := runModules(os.Stdout, module); err != nil {
			log.Fatalf("console modules: %v", err)
		}
		return
	case "resolve":
		if len(args) != 5 {
			log.Fatalf("console resolve: require METHOD MODULE SERVICE PATH")
		}
		if err := runResolve(os.Stdout, args[1], args[2], args[3], args[4]); err != nil {
			log.Fatalf("console resolve: %v", err)
		}
		return
	case "invoke":
		if len(args) < 5 || len(args) > 6 {
			log.Fatalf("console invoke: require METHOD MODULE SERVICE PATH [body]")
		}
		body := ""
		if len(args) == 6 {
			body = args[5]
		}
		if err := runInvoke(os.Stdout, args[1], args[2], args[3], args[4], body); err != nil {
			log.Fatalf("console invoke: %v", err)
		}
		return
	case "validate":
		file := ""
		if len(args) > 1 {
			file = args[1]
		}
		if err := runValidate(os.Stdout, file); err != nil {
			log.Fatalf("console validate: %v", err)
		}
		return
	case "migrate":
		if len(args) < 2 {
			log.Fatalf("console migrate: require subcommand (up, status)")
		}
		sub := args[1]
		switch sub {
		case "up":
			if err := runMigrateUp(); err != nil {
				log.Fatalf("console migrate up: %v", err)
			}
		case "status":
			if err := runMigrateStatus(); err != nil {
				log.Fatalf("console migrate status: %v", err)
			}
		default:
			log.Fatalf("console migrate: unknown subcommand %q (use up, status)", sub)
		}
		return
	case "clear":
		if err := runClear(); err != nil {
			log.Fatalf("console clear: %v", err)
		}
		return
	case "seed":
		file := ""
		if len(args) > 1 {
			file = args[1]
		}
		if err := runSeed(file); err != nil {
			log.Fatalf("console seed: %v", err)
		}
		return
	case "ensure-db":
		dbName := "console_test"
		if len(args) > 1 && args[1] != "" {
			dbName = args[1]
		}
		if err := runEnsureDB(dbName); err != nil {
			log.Fatalf("console ensure-db: %v", err)
		}
		return
	case "version", "--version":
		fmt.Println(server.Version)
		return
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	case "serve", "":
		// serve (explicit or default)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q.\n%s", cmd, usage)
		os.Exit(1)
	}

	if err := server.Run(); err != nil {
		log.Fatalf("console: %v", err)
	}
}

// loadEnvFile reads .env (or $CONSOLE_ENV_FILE) into the environment.
// Variables already set win. A missing default file is not an error.
func loadEnvFile() {
	envfile := os.Getenv("CONSOLE_ENV_FILE")
	explicit := envfile != ""
	if !explicit {
		envfile = ".env"
	}
	err := godotenv.Load(envfile)
	if err == nil || (!explicit && errors.Is(err, fs.ErrNotExist)) {
		return
	}
	log.Fatalf("console: loading env file %s: %v", envfile, err)
}
