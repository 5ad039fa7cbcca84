package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubstituteEnvVarsUsesValue(t *testing.T) {
	t.Setenv("AEGIS_TEST_VAR", "configured")
	assert.Equal(t, "configured", SubstituteEnvVars("${AEGIS_TEST_VAR}"))
}

func TestSubstituteEnvVarsFallsBackToDefault(t *testing.T) {
	assert.Equal(t, "fallback", SubstituteEnvVars("${AEGIS_UNSET_VAR:fallback}"))
}

func TestSubstituteEnvVarsLeavesPlainStringsAlone(t *testing.T) {
	assert.Equal(t, "plain-value", SubstituteEnvVars("plain-value"))
}

func TestGetEnvironmentDefaultsToDevelopment(t *testing.T) {
	t.Setenv("AEGIS_ENV", "")
	t.Setenv("ENVIRONMENT", "")
	assert.Equal(t, "development", GetEnvironment())
}

func TestGetEnvironmentPrefersAegisEnv(t *testing.T) {
	t.Setenv("AEGIS_ENV", "Production")
	t.Setenv("ENVIRONMENT", "staging")
	assert.Equal(t, "production", GetEnvironment())
	assert.True(t, IsProduction())
}
