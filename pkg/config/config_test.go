package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsReproduceHeuristicConstants(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())

	assert.Equal(t, 3, c.Scoring.Guardrails.MinComps)
	assert.Equal(t, 14, c.Scoring.Guardrails.MaxFreshDays)
	assert.EqualValues(t, 1200, c.Scoring.Guardrails.MaxVolatilityBp)
	assert.EqualValues(t, 200, c.Scoring.Guardrails.MinPriceCents)
	assert.Equal(t, []int{30, 90}, c.Scoring.Windows)
	assert.Equal(t, 0.6, c.Scoring.Weights.Edge)
	assert.Equal(t, 0.15, c.FairValue.UpperThreshold)
	assert.Equal(t, -0.15, c.FairValue.LowerThreshold)
	assert.Equal(t, 30.0, c.FairValue.PerQuoteConfidence)
	assert.Equal(t, 4, c.Pipeline.Workers)
	assert.Equal(t, []string{"websocket"}, c.Alerts.Backends)
}

func TestParseOverridesDefaults(t *testing.T) {
	c, err := Parse([]byte(`
environment: production
pipeline:
  workers: 8
  io:
    timeout: 2s
scoring:
  guardrails:
    min_comps: 5
fair_value:
  sources:
    - name: pricecharting
      url: http://quotes.local/pc
`))
	require.NoError(t, err)
	assert.Equal(t, "production", c.Environment)
	assert.Equal(t, 8, c.Pipeline.Workers)
	assert.Equal(t, "2s", c.Pipeline.IO.Timeout.String())
	assert.Equal(t, 2, c.Pipeline.IO.Retries)
	assert.Equal(t, 5, c.Scoring.Guardrails.MinComps)
	assert.Equal(t, 14, c.Scoring.Guardrails.MaxFreshDays)
	require.Len(t, c.FairValue.Sources, 1)
}

func TestValidateRejectsInconsistentBackends(t *testing.T) {
	_, err := Parse([]byte(`
alerts:
  backends: [kafka, redis, pigeon]
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kafka.brokers")
	assert.Contains(t, err.Error(), "redis.enabled")
	assert.Contains(t, err.Error(), "pigeon")
}

func TestApplyEnv(t *testing.T) {
	c := Default()
	env := map[string]string{
		"DATABASE_URL":   "postgres://u@db/cards",
		"KAFKA_BROKERS":  "k1:9092,k2:9092",
		"PROOF_BASE_URL": "https://cards.example/api/",
		"PORT":           "9090",
	}
	c.applyEnv(func(k string) string { return env[k] })

	assert.Equal(t, "postgres://u@db/cards", c.Postgres.DSN)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.Kafka.Brokers)
	assert.Equal(t, "https://cards.example/api", c.Server.ProofBaseURL)
	assert.Equal(t, 9090, c.Server.Port)
	assert.True(t, c.KafkaEnabled())
}
