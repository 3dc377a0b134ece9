package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LJTian/TickerNews/internal/collector"
	"github.com/LJTian/TickerNews/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		CacheTTL:       time.Minute,
		FetchBackend:   BackendHTTP,
		FetchTimeout:   time.Second,
		RequestTimeout: 2 * time.Second,
		EnrichWorkers:  2,
		RecencyWindow:  24 * time.Hour,
	}
}

func TestFetcherSetReusesInstances(t *testing.T) {
	fs := newFetcherSet(testConfig())

	a, err := fs.get("")
	require.NoError(t, err)
	b, err := fs.get("HTTP")
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.IsType(t, &collector.HTTPFetcher{}, a)

	c, err := fs.get(BackendColly)
	require.NoError(t, err)
	assert.IsType(t, &collector.CollyFetcher{}, c)

	_, err = fs.get("curl")
	assert.Error(t, err)
}

func TestNewWithoutDatabaseOrRedis(t *testing.T) {
	a, err := New(testConfig())
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.Store.DB)
	assert.Nil(t, a.Store.Redis)
	assert.Nil(t, a.WatchLister())
	assert.Len(t, a.News.Sources(), len(collector.DefaultSources()))
}

func TestNewRejectsMissingSourcesFile(t *testing.T) {
	cfg := testConfig()
	cfg.SourcesFile = t.TempDir() + "/missing.yaml"
	_, err := New(cfg)
	assert.Error(t, err)
}
