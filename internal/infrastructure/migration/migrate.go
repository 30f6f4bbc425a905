// Package migration applies the versioned SQL schema with golang-migrate.
package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"

	"github.com/lendsaas/backend/migrations"
)

const upSuffix = ".up.sql"

// Migrator runs schema migrations against one Postgres database.
// Closing it closes db as well.
type Migrator struct {
	m      *migrate.Migrate
	source fs.FS
	log    *zap.Logger
}

// Status describes where the database stands relative to the source.
type Status struct {
	Version uint
	Dirty   bool
	// Pending lists migrations newer than Version, oldest first
	Pending []string
}

// New creates a Migrator over db using the schema embedded in the binary
func New(db *sql.DB, log *zap.Logger) (*Migrator, error) {
	return NewWithSource(db, migrations.FS, log)
}

// NewWithSource creates a Migrator reading NNNNNN_name.{up,down}.sql files
// from the root of fsys.
func NewWithSource(db *sql.DB, fsys fs.FS, log *zap.Logger) (*Migrator, error) {
	if log == nil {
		log = zap.NewNop()
	}
	src, err := iofs.New(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("migration source: %w", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("migrate instance: %w", err)
	}
	return &Migrator{m: m, source: fsys, log: log.Named("migrate")}, nil
}

// Up applies every pending migration.
func (m *Migrator) Up() error {
	return m.run("up", m.m.Up)
}

// Down rolls back every applied migration.
func (m *Migrator) Down() error {
	return m.run("down", m.m.Down)
}

// Steps applies n migrations; a negative n rolls back.
func (m *Migrator) Steps(n int) error {
	return m.run("step "+strconv.Itoa(n), func() error { return m.m.Steps(n) })
}

// run treats "nothing to do" as success and logs the resulting version.
func (m *Migrator) run(op string, fn func() error) error {
	m.log.Info("Migrating", zap.String("op", op))
	err := fn()
	if errors.Is(err, migrate.ErrNoChange) {
		m.log.Info("Schema already current", zap.String("op", op))
		return nil
	}
	if err != nil {
		return fmt.Errorf("migrate %s: %w", op, err)
	}
	version, dirty, err := m.Version()
	if err != nil {
		return err
	}
	m.log.Info("Migrated", zap.String("op", op), zap.Uint("version", version), zap.Bool("dirty", dirty))
	return nil
}

// Version returns the applied version, 0 on an empty database.
func (m *Migrator) Version() (uint, bool, error) {
	version, dirty, err := m.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("migration version: %w", err)
	}
	return version, dirty, nil
}

// Status reports the applied version and the migrations still to run.
func (m *Migrator) Status() (Status, error) {
	version, dirty, err := m.Version()
	if err != nil {
		return Status{}, err
	}
	names, err := List(m.source)
	if err != nil {
		return Status{}, err
	}
	st := Status{Version: version, Dirty: dirty}
	for _, name := range names {
		if v, ok := versionOf(name); ok && v > version {
			st.Pending = append(st.Pending, name)
		}
	}
	return st, nil
}

// Force records version as applied without running anything. It clears the
// dirty flag left by a migration that failed halfway and was repaired by hand.
func (m *Migrator) Force(version int) error {
	m.log.Warn("Forcing schema version", zap.Int("version", version))
	if err := m.m.Force(version); err != nil {
		return fmt.Errorf("force version %d: %w", version, err)
	}
	return nil
}

// Close releases the source and the database.
func (m *Migrator) Close() error {
	srcErr, dbErr := m.m.Close()
	return errors.Join(srcErr, dbErr)
}

// List returns the base names of the migrations in fsys in version order.
func List(fsys fs.FS) ([]string, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}
	var names []string
	for _, e := range entries {
		if base, ok := strings.CutSuffix(e.Name(), upSuffix); ok && !e.IsDir() {
			names = append(names, base)
		}
	}
	sort.Strings(names)
	return names, nil
}

// versionOf parses the numeric prefix of a migration name.
func versionOf(name string) (uint, bool) {
	prefix, _, _ := strings.Cut(name, "_")
	v, err := strconv.ParseUint(prefix, 10, 64)
	if err != nil {
		return 0, false
	}
	return uint(v), true
}
