package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8838", cfg.Port)
	assert.Equal(t, "bots_data", cfg.DataDir)
	assert.Equal(t, 800, cfg.ChunkSize)
	assert.Equal(t, 100, cfg.ChunkOverlap)
	assert.Equal(t, 0.5, cfg.DenseWeight)
	assert.Equal(t, 0.5, cfg.SparseWeight)
	assert.Equal(t, 30*time.Second, cfg.PlannerTimeout)
	assert.Equal(t, 8, cfg.PlannerMaxSteps)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("PLANNER_MAX_STEPS", "3")
	t.Setenv("DENSE_WEIGHT", "0.7")
	t.Setenv("PLANNER_TIMEOUT", "5s")

	cfg := Load()

	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, 3, cfg.PlannerMaxSteps)
	assert.Equal(t, 0.7, cfg.DenseWeight)
	assert.Equal(t, 5*time.Second, cfg.PlannerTimeout)
}

func TestLoadIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("CHUNK_SIZE", "not-a-number")
	t.Setenv("SPARSE_WEIGHT", "half")

	cfg := Load()

	assert.Equal(t, 800, cfg.ChunkSize)
	assert.Equal(t, 0.5, cfg.SparseWeight)
}
