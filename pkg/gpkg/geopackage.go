// Package gpkg opens and creates GeoPackage files and ties together the
// pieces that work on them: the pinned connection, the DDL engine with the
// catalog collections registered, and table creation helpers.
package gpkg

import (
	"context"
	"database/sql"
	"os"

	"github.com/ha1tch/gpkgsql/pkg/catalog"
	"github.com/ha1tch/gpkgsql/pkg/config"
	"github.com/ha1tch/gpkgsql/pkg/ddl"
	"github.com/ha1tch/gpkgsql/pkg/errors"
	"github.com/ha1tch/gpkgsql/pkg/log"
	"github.com/ha1tch/gpkgsql/pkg/sqlutil"
)

const (
	// ApplicationID is "GPKG" as a big-endian 32-bit integer.
	ApplicationID = 0x47504B47
	// UserVersion is GeoPackage 1.3.0.
	UserVersion = 10300
)

// legacyApplicationIDs are the ids of GeoPackage 1.0 and 1.1 files, "GP10"
// and "GP11".
var legacyApplicationIDs = map[int64]bool{0x47503130: true, 0x47503131: true}

// GeoPackage is an open GeoPackage file.
type GeoPackage struct {
	path   string
	cfg    config.Config
	logger *log.Logger

	db     *sql.DB
	conn   *sqlutil.Conn
	engine *ddl.Engine
}

// Open opens an existing GeoPackage. A file is refused unless it carries a
// GeoPackage application id and the gpkg_spatial_ref_sys and gpkg_contents
// tables. The ids of 1.0 and 1.1 files are accepted with a warning.
func Open(ctx context.Context, path string, cfg config.Config, logger *log.Logger) (*GeoPackage, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, errors.Wrapf(err, errors.ErrCodeValidation, "cannot open %s", path).Err()
	}
	g, err := open(ctx, path, cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := g.checkFormat(ctx); err != nil {
		g.Close()
		return nil, err
	}
	return g, nil
}

func (g *GeoPackage) checkFormat(ctx context.Context) error {
	appID, err := g.conn.QueryInt(ctx, "PRAGMA application_id")
	if err != nil {
		return err
	}
	switch {
	case appID == ApplicationID:
	case legacyApplicationIDs[appID]:
		g.logger.System().Warn("file carries a pre-1.2 GeoPackage application id", "path", g.path, "application_id", appID)
	default:
		return errors.Validation("cannot open %s: not a GeoPackage (application_id %#x)", g.path, appID).Err()
	}

	n, err := g.conn.QueryInt(ctx,
		"SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name IN ('gpkg_spatial_ref_sys', 'gpkg_contents')")
	if err != nil {
		return err
	}
	if n != 2 {
		return errors.Validation("cannot open %s: not a GeoPackage (core tables missing)", g.path).Err()
	}
	return nil
}

// Create creates a new GeoPackage at path with the core catalog tables.
// path must not exist.
func Create(ctx context.Context, path string, cfg config.Config, logger *log.Logger) (*GeoPackage, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, errors.Validation("cannot create %s: file exists", path).Err()
	}
	g, err := open(ctx, path, cfg, logger)
	if err != nil {
		return nil, err
	}

	err = g.InTransaction(ctx, func(ctx context.Context, q *sqlutil.Conn) error {
		if err := q.Execute(ctx, "PRAGMA application_id = 1196444487"); err != nil {
			return err
		}
		if err := q.Execute(ctx, "PRAGMA user_version = 10300"); err != nil {
			return err
		}
		return catalog.CreateCore(ctx, q)
	})
	if err != nil {
		g.Close()
		os.Remove(path)
		return nil, err
	}
	g.logger.System().Info("created geopackage", "path", path)
	return g, nil
}

func open(ctx context.Context, path string, cfg config.Config, logger *log.Logger) (*GeoPackage, error) {
	if logger == nil {
		logger = log.Discard()
	}
	db, err := sql.Open("sqlite3", cfg.SQLite.DSN(path))
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrCodeExecFailed, "failed to open %s", path).Err()
	}
	if cfg.SQLite.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.SQLite.MaxOpenConns)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, errors.ErrCodeExecFailed, "failed to open %s", path).Err()
	}

	conn, err := sqlutil.Open(ctx, db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	engine := ddl.New(conn, logger,
		ddl.WithTempSuffix(cfg.Engine.TempSuffix),
		ddl.WithUpdaters(catalog.Collections()...))

	return &GeoPackage{
		path:   path,
		cfg:    cfg,
		logger: logger,
		db:     db,
		conn:   conn,
		engine: engine,
	}, nil
}

// Close releases the connection and the pool.
func (g *GeoPackage) Close() error {
	err := g.conn.Close()
	if dbErr := g.db.Close(); err == nil {
		err = dbErr
	}
	return err
}

// Path returns the file path.
func (g *GeoPackage) Path() string { return g.path }

// Conn returns the pinned connection. Callers must not use it while a
// DDL operation runs on another goroutine.
func (g *GeoPackage) Conn() *sqlutil.Conn { return g.conn }

// Engine returns the DDL engine bound to the connection.
func (g *GeoPackage) Engine() *ddl.Engine { return g.engine }

// Exec runs one statement, emulating the schema changes SQLite lacks.
func (g *GeoPackage) Exec(ctx context.Context, sql string, maxRows int) (*sqlutil.Result, error) {
	return g.engine.Exec(ctx, sql, maxRows)
}

// InTransaction runs fn in a transaction on the pinned connection, or in
// a savepoint when one is already open.
func (g *GeoPackage) InTransaction(ctx context.Context, fn func(ctx context.Context, q *sqlutil.Conn) error) error {
	tx, err := g.conn.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(ctx, g.conn); err != nil {
		if rbErr := tx.End(ctx, false); rbErr != nil {
			return errors.Join(err, rbErr)
		}
		return err
	}
	return tx.End(ctx, true)
}
