package state

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/herdsync/engine/internal/models"
)

func TestPregnancyStats(t *testing.T) {
	t.Run("empty session", func(t *testing.T) {
		stats := PregnancyStats(nil)
		assert.Equal(t, 0, stats.Total)
		assert.Nil(t, stats.ByStatus)
	})

	t.Run("counts statuses, due dates and calves", func(t *testing.T) {
		due := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
		stats := PregnancyStats([]*models.PregnancyRecord{
			{Tag: "A-1", PregnancyStatus: "pregnant", DueDate: due, CalfCount: 2},
			{Tag: "A-2", PregnancyStatus: "pregnant", DueDate: due.AddDate(0, 0, 7), CalfCount: 1},
			{Tag: "A-3", PregnancyStatus: "open"},
		})

		assert.Equal(t, 3, stats.Total)
		assert.Equal(t, 2, stats.ByStatus["pregnant"])
		assert.Equal(t, 1, stats.ByStatus["open"])
		assert.Len(t, stats.DueDates, 2)
		assert.Equal(t, 3, stats.TotalCalves)
	})

	t.Run("due dates come back in calendar order regardless of entry order", func(t *testing.T) {
		oct := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
		sep1 := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
		sep11 := time.Date(2026, 9, 11, 0, 0, 0, 0, time.UTC)

		stats := PregnancyStats([]*models.PregnancyRecord{
			{Tag: "A-1", PregnancyStatus: "pregnant", DueDate: oct},
			{Tag: "A-2", PregnancyStatus: "pregnant", DueDate: sep1},
			{Tag: "A-3", PregnancyStatus: "pregnant", DueDate: sep11},
		})

		assert.Equal(t, []time.Time{sep1, sep11, oct}, stats.DueDates)
	})
}

func TestWeightStats(t *testing.T) {
	stats := WeightStats([]*models.WeightRecord{
		{Tag: "A-1", Weight: 420},
		{Tag: "A-2", Weight: 380},
	})

	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 800.0, stats.TotalWeight)
	assert.Equal(t, 400.0, stats.AvgWeight)
}

func TestHeatStats(t *testing.T) {
	stats := HeatStats([]*models.HeatRecord{
		{Tag: "A-1", PregnancyStatus: "in_heat"},
		{Tag: "A-2", PregnancyStatus: "in_heat"},
		{Tag: "A-3"},
	})

	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.ByStatus["in_heat"])
}
