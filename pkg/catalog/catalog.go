// Package catalog holds the map catalog: the sqlite-backed table of source
// rasters that sessions can be created from. Session state itself is never
// persisted; only the static map entries live here.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"os"

	_ "github.com/mattn/go-sqlite3"
)

var ErrNotFound = errors.New("map not found")

// MapEntry describes one playable map: a color raster and an equal-sized
// depth raster on the local filesystem.
type MapEntry struct {
	ID        string
	Name      string
	ColorPath string
	DepthPath string
}

type Catalog struct {
	db *sql.DB
}

// Open opens (or creates) the catalog database and ensures the schema and a
// default map row exist.
func Open(path string) (*Catalog, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	c := &Catalog{db: db}
	if err := c.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return c, nil
}

func (c *Catalog) init() error {
	if _, err := c.db.Exec(
		`CREATE TABLE IF NOT EXISTS maps (
		id text not null primary key,
		name text not null,
		color_path text not null,
		depth_path text not null
		)`,
	); err != nil {
		return fmt.Errorf("failed to create maps table: %w", err)
	}
	if _, err := c.db.Exec(
		`INSERT OR IGNORE INTO maps (id, name, color_path, depth_path) VALUES (?, ?, ?, ?)`,
		"meadow", "Meadow", "assets/meadow_color.png", "assets/meadow_depth.png",
	); err != nil {
		return fmt.Errorf("failed to seed default map: %w", err)
	}
	slog.Info("Ensured catalog tables exist")
	return nil
}

func (c *Catalog) Close() error {
	return c.db.Close()
}

// Put inserts or replaces a map entry.
func (c *Catalog) Put(ctx context.Context, e MapEntry) error {
	if _, err := c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO maps (id, name, color_path, depth_path) VALUES (?, ?, ?, ?)`,
		e.ID, e.Name, e.ColorPath, e.DepthPath,
	); err != nil {
		return fmt.Errorf("failed to upsert map %s: %w", e.ID, err)
	}
	return nil
}

func (c *Catalog) Get(ctx context.Context, id string) (MapEntry, error) {
	var e MapEntry
	if err := c.db.QueryRowContext(ctx,
		`SELECT id, name, color_path, depth_path FROM maps WHERE id = ?`, id,
	).Scan(&e.ID, &e.Name, &e.ColorPath, &e.DepthPath); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return MapEntry{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return MapEntry{}, fmt.Errorf("failed to query map %s: %w", id, err)
	}
	return e, nil
}

func (c *Catalog) List(ctx context.Context) ([]MapEntry, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT id, name, color_path, depth_path FROM maps ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query maps: %w", err)
	}
	defer rows.Close()
	var out []MapEntry
	for rows.Next() {
		var e MapEntry
		if err := rows.Scan(&e.ID, &e.Name, &e.ColorPath, &e.DepthPath); err != nil {
			return nil, fmt.Errorf("failed to scan map row: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Load resolves a map id to its decoded rasters. Any failure here is fatal
// to the session creation that asked for it and touches nothing else.
func (c *Catalog) Load(ctx context.Context, mapID string) (colorImg, depthImg image.Image, err error) {
	entry, err := c.Get(ctx, mapID)
	if err != nil {
		return nil, nil, err
	}
	if colorImg, err = decodeFile(entry.ColorPath); err != nil {
		return nil, nil, fmt.Errorf("failed to load color raster for %s: %w", mapID, err)
	}
	if depthImg, err = decodeFile(entry.DepthPath); err != nil {
		return nil, nil, fmt.Errorf("failed to load depth raster for %s: %w", mapID, err)
	}
	return colorImg, depthImg, nil
}

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return img, nil
}
