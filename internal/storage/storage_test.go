package storage

import (
	"testing"
	"time"

	"github.com/spaceweb/impactsim/pkg/core"
	"github.com/stretchr/testify/assert"
)

func TestNewest(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	recs := []core.ImpactRecord{
		{LaunchedAt: base.Add(1 * time.Minute)},
		{LaunchedAt: base.Add(3 * time.Minute)},
		{LaunchedAt: base.Add(2 * time.Minute)},
	}

	out := Newest(recs, 0)
	assert.Equal(t, base.Add(3*time.Minute), out[0].LaunchedAt)
	assert.Equal(t, base.Add(1*time.Minute), out[2].LaunchedAt)

	out = Newest(recs, 2)
	assert.Len(t, out, 2)
	assert.Equal(t, base.Add(2*time.Minute), out[1].LaunchedAt)
}
