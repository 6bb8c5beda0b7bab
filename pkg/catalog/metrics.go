package catalog

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RowsTotal counts catalog rows changed by cascades.
var RowsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "gpkgsql_catalog_rows_total",
		Help: "Catalog rows changed by schema change cascades",
	},
	[]string{"collection", "action"},
)

func countRows(collection, action string, n int64) {
	if n > 0 {
		RowsTotal.WithLabelValues(collection, action).Add(float64(n))
	}
}
