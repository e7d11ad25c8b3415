package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQualify(t *testing.T) {
	rule := DefaultQualifyRule()

	q := rule.Qualify(128.5, 100, 0.9)
	assert.True(t, q.Qualified)
	assert.Equal(t, 22.2, q.DiscountPct)
	assert.Equal(t, 128.5, q.FairValue)

	q = rule.Qualify(128.5, 100, ReconcilerConfidence01(30))
	assert.False(t, q.Qualified, "one source is not enough confidence")

	q = rule.Qualify(100, 90, 1)
	assert.False(t, q.Qualified, "10% discount")

	q = rule.Qualify(0, 90, 1)
	assert.False(t, q.Qualified)
	assert.Equal(t, 0.0, q.DiscountPct)

	q = rule.Qualify(100, 85, 0.5)
	assert.True(t, q.Qualified, "boundaries are inclusive")
}
