package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPercentile(t *testing.T) {
	lat := []time.Duration{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	assert.Equal(t, time.Duration(5), percentile(lat, 50))
	assert.Equal(t, time.Duration(9), percentile(lat, 90))
	assert.Equal(t, time.Duration(10), percentile(lat, 99))
	assert.Equal(t, time.Duration(0), percentile(nil, 50))
	assert.Equal(t, time.Duration(0), stddev([]time.Duration{4, 4, 4}))
}

func TestBuildScenarios(t *testing.T) {
	scenarios, err := buildScenarios(64)
	require.NoError(t, err)
	for _, sc := range scenarios {
		if sc.Body == nil {
			continue
		}
		var v map[string]any
		require.NoError(t, json.Unmarshal(sc.Body, &v), sc.Name)
	}
	assert.Len(t, filterScenarios(scenarios, "toeplitz, stats"), 2)
	assert.Len(t, filterScenarios(scenarios, ""), len(scenarios))

	_, err = buildScenarios(8)
	assert.Error(t, err)
}

func TestRunLoadTest(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	scenarios, err := buildScenarios(32)
	require.NoError(t, err)
	stats, err := runLoadTest(context.Background(), Config{
		BaseURL:     srv.URL,
		Concurrency: 2,
		Duration:    100 * time.Millisecond,
		Scenarios:   filterScenarios(scenarios, "toeplitz,stats"),
	}, srv.Client())
	require.NoError(t, err)

	total := stats.totalRequests.Load()
	require.Positive(t, total)
	assert.Equal(t, total, stats.successCount.Load()+stats.errorCount.Load())
	assert.Positive(t, stats.errorCount.Load(), "429s count as errors")

	var buf bytes.Buffer
	assert.True(t, printReport(&buf, stats, 100*time.Millisecond))
	assert.Contains(t, buf.String(), "429:")
	assert.Contains(t, buf.String(), "toeplitz")

	assert.False(t, printReport(&bytes.Buffer{}, NewStats(), time.Second))
}
