package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetEnv(t *testing.T) {
	t.Setenv("TEST_STR", "value")
	assert.Equal(t, "value", GetEnv("TEST_STR", "def"))
	assert.Equal(t, "def", GetEnv("TEST_STR_UNSET", "def"))

	t.Setenv("TEST_STR_EMPTY", "")
	assert.Equal(t, "def", GetEnv("TEST_STR_EMPTY", "def"))
}

func TestGetEnvInt(t *testing.T) {
	t.Setenv("TEST_INT", "42")
	assert.Equal(t, 42, GetEnvInt("TEST_INT", 7))

	t.Setenv("TEST_INT_BAD", "forty-two")
	assert.Equal(t, 7, GetEnvInt("TEST_INT_BAD", 7))
	assert.Equal(t, 7, GetEnvInt("TEST_INT_UNSET", 7))
}

func TestGetEnvFloat(t *testing.T) {
	t.Setenv("TEST_FLOAT", "0.35")
	assert.Equal(t, 0.35, GetEnvFloat("TEST_FLOAT", 1.0))

	t.Setenv("TEST_FLOAT_BAD", "x")
	assert.Equal(t, 1.0, GetEnvFloat("TEST_FLOAT_BAD", 1.0))
}

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("TEST_DUR", "250ms")
	assert.Equal(t, 250*time.Millisecond, GetEnvDuration("TEST_DUR", time.Second))

	t.Setenv("TEST_DUR_BAD", "soon")
	assert.Equal(t, time.Second, GetEnvDuration("TEST_DUR_BAD", time.Second))
}
