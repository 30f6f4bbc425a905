// Command migrate manages the lending database schema.
package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/lendsaas/backend/internal/infrastructure/config"
	"github.com/lendsaas/backend/internal/infrastructure/logger"
	"github.com/lendsaas/backend/internal/infrastructure/migration"
	"github.com/lendsaas/backend/migrations"
)

type command struct {
	usage string
	help  string
	// offline commands never open the database
	offline bool
	run     func(env *runEnv, args []string) error
}

type runEnv struct {
	source   fs.FS
	migrator *migration.Migrator
	log      *zap.Logger
}

var commands = map[string]command{
	"up": {
		usage: "up", help: "Apply all pending migrations",
		run: func(env *runEnv, _ []string) error { return env.migrator.Up() },
	},
	"down": {
		usage: "down", help: "Roll back all migrations",
		run: func(env *runEnv, _ []string) error { return env.migrator.Down() },
	},
	"step": {
		usage: "step <n>", help: "Apply n migrations (negative rolls back)",
		run: func(env *runEnv, args []string) error {
			n, err := intArg(args, "step count")
			if err != nil {
				return err
			}
			return env.migrator.Steps(n)
		},
	},
	"force": {
		usage: "force <version>", help: "Set the version without migrating (clears a dirty state)",
		run: func(env *runEnv, args []string) error {
			v, err := intArg(args, "version")
			if err != nil {
				return err
			}
			return env.migrator.Force(v)
		},
	},
	"status": {
		usage: "status", help: "Show the applied version and pending migrations",
		run: func(env *runEnv, _ []string) error {
			st, err := env.migrator.Status()
			if err != nil {
				return err
			}
			env.log.Info("Schema status",
				zap.Uint("version", st.Version),
				zap.Bool("dirty", st.Dirty),
				zap.Int("pending", len(st.Pending)))
			for _, name := range st.Pending {
				fmt.Println("  pending:", name)
			}
			return nil
		},
	},
	"list": {
		usage: "list", help: "List available migrations", offline: true,
		run: func(env *runEnv, _ []string) error {
			names, err := migration.List(env.source)
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Println("  -", name)
			}
			env.log.Info("Available migrations", zap.Int("count", len(names)))
			return nil
		},
	},
}

func main() {
	path := flag.String("path", "", "Read migrations from this directory instead of the embedded set")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.Usage = printUsage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(2)
	}
	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", args[0])
		printUsage()
		os.Exit(2)
	}

	log, err := logger.New(&logger.Config{
		Level:      *logLevel,
		Format:     "console",
		Output:     "stdout",
		TimeFormat: "2006-01-02 15:04:05",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	env := &runEnv{source: migrations.FS, log: log}
	if *path != "" {
		env.source = os.DirFS(*path)
	}
	log.Debug("Migration source", zap.String("source", sourceName(*path)))

	if !cmd.offline {
		m, err := openMigrator(env.source, log)
		if err != nil {
			log.Fatal("Failed to open migrator", zap.Error(err))
		}
		defer func() {
			if err := m.Close(); err != nil {
				log.Warn("Failed to close migrator", zap.Error(err))
			}
		}()
		env.migrator = m
	}

	if err := cmd.run(env, args[1:]); err != nil {
		log.Error("Migration command failed", zap.String("command", args[0]), zap.Error(err))
		os.Exit(1)
	}
}

func openMigrator(source fs.FS, log *zap.Logger) (*migration.Migrator, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return migration.NewWithSource(db, source, log)
}

func intArg(args []string, what string) (int, error) {
	if len(args) == 0 {
		return 0, errors.New(what + " required")
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", what, args[0])
	}
	return n, nil
}

func sourceName(path string) string {
	if path == "" {
		return "embedded"
	}
	return path
}

func printUsage() {
	var b strings.Builder
	b.WriteString("Usage: migrate [flags] <command> [args]\n\nCommands:\n")
	for _, name := range []string{"up", "down", "step", "force", "status", "list"} {
		c := commands[name]
		fmt.Fprintf(&b, "  %-16s %s\n", c.usage, c.help)
	}
	b.WriteString("\nFlags:\n")
	fmt.Fprint(os.Stderr, b.String())
	flag.PrintDefaults()
	fmt.Fprintln(os.Stderr, "\nDatabase settings come from config.toml and LENDING_* environment variables.")
}
