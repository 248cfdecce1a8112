package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetListEnv(t *testing.T) {
	t.Setenv("TEST_LIST", "polygon, bsc ,,arbitrum")
	assert.Equal(t, []string{"polygon", "bsc", "arbitrum"}, GetListEnv("TEST_LIST", nil))
}

func TestGetListEnvFallsBackToDefault(t *testing.T) {
	fallback := []string{"polygon"}

	assert.Equal(t, fallback, GetListEnv("TEST_LIST_UNSET", fallback))

	// Set but parsing to nothing must not yield an empty list, or
	// callers indexing the result would blow up at startup.
	t.Setenv("TEST_LIST", " , ,")
	assert.Equal(t, fallback, GetListEnv("TEST_LIST", fallback))

	t.Setenv("TEST_LIST", "")
	assert.Equal(t, fallback, GetListEnv("TEST_LIST", fallback))
}
