package artifact

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Entry is one catalog row.
type Entry struct {
	Name        string
	Basename    string
	Platform    string
	Subtype     string
	Version     string
	MD5         string
	Size        int64
	Rows        int
	Cols        int
	SoftErrors  int
	Location    string
	Meta        map[string]any
	PublishedAt time.Time
}

// EntryFor builds the catalog row of a published artifact.
func EntryFor(a Artifact, pub *Published) Entry {
	loc := pub.Path
	if len(pub.Objects) > 0 {
		loc = pub.Objects[0]
	}
	return Entry{
		Name:       pub.Name,
		Basename:   a.Basename,
		Platform:   a.Platform,
		Subtype:    a.Subtype,
		Version:    a.Version,
		MD5:        pub.MD5,
		Size:       pub.Size,
		Rows:       a.Rows,
		Cols:       a.Cols,
		SoftErrors: a.Errors.Len(),
		Location:   loc,
		Meta:       pub.Meta,
	}
}

// Recorder stores catalog entries.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
}

// Catalog is the postgres backed artifact catalog.
type Catalog struct {
	db *sql.DB
}

// OpenCatalog connects to the catalog database. driver is "pgx" or "postgres".
func OpenCatalog(ctx context.Context, driver, databaseURL string) (*Catalog, error) {
	if databaseURL == "" {
		return nil, wrapError(CodeCatalogFailed, false, errors.New("catalog database URL is required"))
	}
	if driver == "" {
		driver = "pgx"
	}
	db, err := sql.Open(driver, databaseURL)
	if err != nil {
		return nil, wrapError(CodeCatalogFailed, false, fmt.Errorf("open catalog: %w", err))
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, wrapError(CodeEndpointUnreachable, true, fmt.Errorf("ping catalog: %w", err))
	}
	return &Catalog{db: db}, nil
}

// Close closes the connection pool.
func (c *Catalog) Close() error { return c.db.Close() }

// Migrate applies the embedded schema migrations.
func (c *Catalog) Migrate() error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("load catalog migrations: %w", err)
	}
	driver, err := postgres.WithInstance(c.db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("catalog migration failed: %w", err)
	}
	return nil
}

const upsertEntry = `
INSERT INTO tcga_artifacts
    (name, basename, platform, subtype, version, md5, size_bytes, row_count, column_count, soft_errors, location, metadata, published_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now())
ON CONFLICT (basename, name, version) DO UPDATE SET
    platform = EXCLUDED.platform,
    subtype = EXCLUDED.subtype,
    md5 = EXCLUDED.md5,
    size_bytes = EXCLUDED.size_bytes,
    row_count = EXCLUDED.row_count,
    column_count = EXCLUDED.column_count,
    soft_errors = EXCLUDED.soft_errors,
    location = EXCLUDED.location,
    metadata = EXCLUDED.metadata,
    published_at = now()`

// Record upserts e.
func (c *Catalog) Record(ctx context.Context, e Entry) error {
	doc, err := json.Marshal(e.Meta)
	if err != nil {
		return wrapError(CodeCatalogFailed, false, fmt.Errorf("encode metadata: %w", err))
	}
	_, err = c.db.ExecContext(ctx, upsertEntry,
		e.Name, e.Basename, e.Platform, e.Subtype, e.Version, e.MD5,
		e.Size, e.Rows, e.Cols, e.SoftErrors, e.Location, string(doc))
	if err != nil {
		return wrapError(CodeCatalogFailed, true, fmt.Errorf("record %s: %w", e.Name, err))
	}
	return nil
}

// List returns the entries of basename, newest version first.
func (c *Catalog) List(ctx context.Context, basename string) ([]Entry, error) {
	rows, err := c.db.QueryContext(ctx, `
SELECT name, basename, platform, subtype, version, md5, size_bytes, row_count, column_count, soft_errors, location, metadata, published_at
FROM tcga_artifacts WHERE basename = $1 ORDER BY version DESC, name`, basename)
	if err != nil {
		return nil, wrapError(CodeCatalogFailed, true, fmt.Errorf("list %s: %w", basename, err))
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var doc []byte
		if err := rows.Scan(&e.Name, &e.Basename, &e.Platform, &e.Subtype, &e.Version, &e.MD5,
			&e.Size, &e.Rows, &e.Cols, &e.SoftErrors, &e.Location, &doc, &e.PublishedAt); err != nil {
			return nil, wrapError(CodeCatalogFailed, false, err)
		}
		if len(doc) > 0 {
			if err := json.Unmarshal(doc, &e.Meta); err != nil {
				return nil, wrapError(CodeCatalogFailed, false, fmt.Errorf("decode metadata of %s: %w", e.Name, err))
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Chain publishes through a sink and records every result in a catalog.
type Chain struct {
	Sink    Sink
	Catalog Recorder
	Logger  logrus.FieldLogger
}

// Publish implements Sink.
func (c Chain) Publish(ctx context.Context, a Artifact) (*Published, error) {
	pub, err := c.Sink.Publish(ctx, a)
	if err != nil {
		return nil, err
	}
	if c.Catalog == nil {
		return pub, nil
	}
	if err := c.Catalog.Record(ctx, EntryFor(a, pub)); err != nil {
		return pub, err
	}
	if c.Logger != nil {
		c.Logger.WithField("artifact", pub.Name).Debug("artifact cataloged")
	}
	return pub, nil
}
