package gpkg

import (
	"context"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/ha1tch/gpkgsql/pkg/catalog"
	"github.com/ha1tch/gpkgsql/pkg/sqltext"
	"github.com/ha1tch/gpkgsql/pkg/sqlutil"
)

// TableSummary is one gpkg_contents table with its row count. Err is set
// when the table could not be counted, for example because it is listed
// but missing.
type TableSummary struct {
	Name       string
	DataType   string
	Identifier string
	Rows       int64
	Err        error
}

// Summary lists the tables in gpkg_contents with their row counts.
// Counting runs on separate read connections, at most
// Engine.ReadWorkers at a time, and falls back to the pinned connection
// when the pool has no room for readers.
func (g *GeoPackage) Summary(ctx context.Context) ([]TableSummary, error) {
	entries, err := catalog.ListContents(ctx, g.conn, "")
	if err != nil {
		return nil, err
	}
	out := make([]TableSummary, len(entries))
	for i, e := range entries {
		out[i] = TableSummary{Name: e.TableName, DataType: e.DataType, Identifier: e.Identifier}
	}

	workers := g.cfg.Engine.ReadWorkers
	if limit := g.cfg.SQLite.MaxOpenConns; limit > 0 && workers > limit-1 {
		workers = limit - 1
	}
	if workers < 1 {
		for i := range out {
			out[i].Rows, out[i].Err = countRows(ctx, g.conn, out[i].Name)
		}
		return out, nil
	}

	pool, err := ants.NewPool(workers, ants.WithPanicHandler(func(v any) {
		g.logger.System().Warn("summary worker panic", "panic", v)
	}))
	if err != nil {
		return nil, err
	}
	defer pool.Release()

	var wg sync.WaitGroup
	for i := range out {
		s := &out[i]
		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			s.Rows, s.Err = g.countOnReader(ctx, s.Name)
		}); err != nil {
			wg.Done()
			s.Err = err
		}
	}
	wg.Wait()
	return out, nil
}

func (g *GeoPackage) countOnReader(ctx context.Context, table string) (int64, error) {
	reader, err := sqlutil.Open(ctx, g.db, g.logger)
	if err != nil {
		return -1, err
	}
	defer reader.Close()
	return countRows(ctx, reader, table)
}

func countRows(ctx context.Context, q *sqlutil.Conn, table string) (int64, error) {
	return q.Count(ctx, "SELECT * FROM "+sqltext.Identifier(table))
}
