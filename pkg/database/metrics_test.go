package database

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolStatsCollector_Describe(t *testing.T) {
	var c prometheus.Collector = NewPoolStatsCollector(nil, "storefront")

	ch := make(chan *prometheus.Desc, 10)
	c.Describe(ch)
	close(ch)

	var all []string
	for d := range ch {
		all = append(all, d.String())
	}
	require.Len(t, all, 6)

	joined := strings.Join(all, "\n")
	for _, want := range []string{
		"db_pool_acquired_connections",
		"db_pool_idle_connections",
		"db_pool_total_connections",
		"db_pool_max_connections",
		"db_pool_acquire_duration_seconds_total",
		"db_pool_empty_acquire_count_total",
	} {
		assert.Contains(t, joined, want)
	}
}
