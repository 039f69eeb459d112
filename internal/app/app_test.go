package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/kpi-processor/internal/config"
)

func TestPipelineConfig(t *testing.T) {
	cfg := &config.Config{
		Pipeline: config.PipelineConfig{BatchSizeDays: 5, BatchDelayMS: 100, MaxConcurrentAggregators: 2, KeyConcurrency: 4},
		Schedule: config.ScheduleConfig{LookbackDays: 10},
	}

	pc := PipelineConfig(cfg)
	assert.Equal(t, 5, pc.BatchSizeDays)
	assert.Equal(t, 100*time.Millisecond, pc.BatchDelay)
	assert.Equal(t, 2, pc.MaxConcurrentAggregators)
	assert.Equal(t, 4, pc.KeyConcurrency)
	assert.Equal(t, 10, pc.LookbackDays)
}

func TestSnowflakeConfig(t *testing.T) {
	sc := SnowflakeConfig(config.SnowflakeConfig{
		ConnectionString: "ACCOUNT=acct;USER=reader;PASSWORD=old;DB=LAKE.SFMC;",
		Password:         "new",
		Warehouse:        "KPI_WH",
	})

	assert.Equal(t, "acct", sc.Account)
	assert.Equal(t, "reader", sc.User)
	assert.Equal(t, "new", sc.Password)
	assert.Equal(t, "LAKE", sc.Database)
	assert.Equal(t, "SFMC", sc.Schema)
	assert.Equal(t, "KPI_WH", sc.Warehouse)
}

func TestNew_RequiresDatabase(t *testing.T) {
	_, err := New(context.Background(), &config.Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestOpenRedis_Disabled(t *testing.T) {
	assert.Nil(t, openRedis(context.Background(), config.RedisConfig{}))
}
