package seed

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/askdb/askdb/internal/database"
	"github.com/askdb/askdb/internal/observability"
	"github.com/askdb/askdb/internal/schema"
)

//go:embed sql/*.sql
var embeddedFS embed.FS

var scriptNamePattern = regexp.MustCompile(`^([0-9]+)_.+\.sql$`)

// Seeder loads the demo shop into an empty database.
type Seeder struct {
	db      *sql.DB
	dialect database.Dialect
	logger  *slog.Logger
	fsys    fs.FS
}

type script struct {
	Version int64
	Name    string
	Body    string
}

func New(db *sql.DB, dialect database.Dialect, logger *slog.Logger) *Seeder {
	return NewWithFS(db, dialect, logger, embeddedFS)
}

func NewWithFS(db *sql.DB, dialect database.Dialect, logger *slog.Logger, fsys fs.FS) *Seeder {
	if logger == nil {
		logger = observability.DiscardLogger()
	}
	return &Seeder{db: db, dialect: dialect, logger: logger, fsys: fsys}
}

// Apply runs every script in version order and reports how many ran. A
// database that already has tables is left alone unless force is set.
func (s *Seeder) Apply(ctx context.Context, force bool) (int, error) {
	if s.db == nil {
		return 0, fmt.Errorf("database is required")
	}
	scripts, err := loadScripts(s.fsys)
	if err != nil {
		return 0, err
	}

	if !force {
		entries, err := schema.NewIntrospector(s.db, s.dialect).Introspect(ctx)
		if err != nil {
			return 0, fmt.Errorf("inspect existing tables: %w", err)
		}
		if len(entries) > 0 {
			s.logger.InfoContext(ctx, "database already has tables; skipping seed", slog.Int("tables", len(entries)))
			return 0, nil
		}
	}

	for i, item := range scripts {
		if err := s.applyScript(ctx, item); err != nil {
			return i, err
		}
		s.logger.InfoContext(ctx, "seed script applied", slog.String("script", item.Name))
	}
	return len(scripts), nil
}

func (s *Seeder) applyScript(ctx context.Context, item script) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, statement := range splitStatements(item.Body) {
		if _, err := tx.ExecContext(ctx, statement); err != nil {
			return fmt.Errorf("apply %s: %w", item.Name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", item.Name, err)
	}
	return nil
}

func loadScripts(fsys fs.FS) ([]script, error) {
	entries, err := fs.ReadDir(fsys, "sql")
	if err != nil {
		return nil, fmt.Errorf("read seed dir: %w", err)
	}

	scripts := make([]script, 0, len(entries))
	seen := map[int64]string{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := path.Base(entry.Name())
		matches := scriptNamePattern.FindStringSubmatch(name)
		if len(matches) != 2 {
			continue
		}
		version, err := strconv.ParseInt(matches[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse seed version for %q: %w", name, err)
		}
		if previous, ok := seen[version]; ok {
			return nil, fmt.Errorf("seed scripts %q and %q share version %d", previous, name, version)
		}
		seen[version] = name

		body, err := fs.ReadFile(fsys, path.Join("sql", entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read seed script %q: %w", name, err)
		}
		if strings.TrimSpace(string(body)) == "" {
			return nil, fmt.Errorf("seed script %q is empty", name)
		}
		scripts = append(scripts, script{Version: version, Name: name, Body: string(body)})
	}
	sort.Slice(scripts, func(i, j int) bool { return scripts[i].Version < scripts[j].Version })
	return scripts, nil
}

// splitStatements cuts a script at semicolons that end a line and drops
// full-line "--" comments. Seed data never contains such semicolons in literals.
func splitStatements(body string) []string {
	var (
		statements []string
		current    strings.Builder
	)
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		current.WriteString(line)
		current.WriteString("\n")
		if strings.HasSuffix(trimmed, ";") {
			statement := strings.TrimSuffix(strings.TrimSpace(current.String()), ";")
			statements = append(statements, statement)
			current.Reset()
		}
	}
	if rest := strings.TrimSpace(current.String()); rest != "" {
		statements = append(statements, rest)
	}
	return statements
}
