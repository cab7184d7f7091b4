package state

import (
	"sort"

	"github.com/herdsync/engine/internal/models"
)

// PregnancyStats aggregates an open pregnancy session: counts per status,
// due dates for confirmed pregnancies in calendar order and the running
// calf total.
func PregnancyStats(records []*models.PregnancyRecord) models.SessionStats {
	stats := models.SessionStats{Total: len(records)}
	if len(records) == 0 {
		return stats
	}

	stats.ByStatus = make(map[string]int)
	for _, rec := range records {
		if rec.PregnancyStatus != "" {
			stats.ByStatus[rec.PregnancyStatus]++
		}
		if !rec.DueDate.IsZero() {
			stats.DueDates = append(stats.DueDates, rec.DueDate)
		}
		stats.TotalCalves += rec.CalfCount
	}
	sort.Slice(stats.DueDates, func(i, j int) bool {
		return stats.DueDates[i].Before(stats.DueDates[j])
	})
	return stats
}

// WeightStats aggregates an open weighing session.
func WeightStats(records []*models.WeightRecord) models.SessionStats {
	stats := models.SessionStats{Total: len(records)}
	if len(records) == 0 {
		return stats
	}

	for _, rec := range records {
		stats.TotalWeight += rec.Weight
	}
	stats.AvgWeight = stats.TotalWeight / float64(len(records))
	return stats
}

// HeatStats aggregates an open heat-cycle session.
func HeatStats(records []*models.HeatRecord) models.SessionStats {
	stats := models.SessionStats{Total: len(records)}
	if len(records) == 0 {
		return stats
	}

	stats.ByStatus = make(map[string]int)
	for _, rec := range records {
		if rec.PregnancyStatus != "" {
			stats.ByStatus[rec.PregnancyStatus]++
		}
	}
	return stats
}

// PregnancyDraftFromCrumb rebuilds a blank draft when a breadcrumb reopens
// a session that never committed a record.
func PregnancyDraftFromCrumb(c *models.Breadcrumb) *models.PregnancyRecord {
	return &models.PregnancyRecord{
		Animal:          c.Animal,
		GestationDays:   c.GestationDays,
		DeviceSessionID: c.DeviceSessionID,
	}
}

func WeightDraftFromCrumb(c *models.Breadcrumb) *models.WeightRecord {
	return &models.WeightRecord{
		Animal:          c.Animal,
		DeviceSessionID: c.DeviceSessionID,
	}
}

func HeatDraftFromCrumb(c *models.Breadcrumb) *models.HeatRecord {
	return &models.HeatRecord{
		Animal:          c.Animal,
		GestationDays:   c.GestationDays,
		DeviceSessionID: c.DeviceSessionID,
	}
}
