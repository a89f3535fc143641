package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func utcSlots(times ...time.Time) map[string][]Slot {
	out := make(map[string][]Slot)
	for _, t := range times {
		date := t.Format("2006-01-02")
		out[date] = append(out[date], Slot{Time: t})
	}
	return out
}

func TestFormatAvailabilityCollapsesConsecutiveSlots(t *testing.T) {
	slots := utcSlots(
		time.Date(2026, 9, 10, 10, 0, 0, 0, time.UTC),
		time.Date(2026, 9, 10, 10, 15, 0, 0, time.UTC),
		time.Date(2026, 9, 10, 10, 30, 0, 0, time.UTC),
		time.Date(2026, 9, 10, 14, 0, 0, 0, time.UTC),
	)

	result := formatAvailability(slots, time.UTC)

	assert.Contains(t, result.Display, "Thu 10 Sep")
	assert.Contains(t, result.Display, "10:00am-10:45am")
	assert.Contains(t, result.Display, "2:00pm")
	assert.NotContains(t, result.Display, "10:15am")
}

func TestFormatAvailabilityTechnicalHasExactTimestamps(t *testing.T) {
	slots := utcSlots(time.Date(2026, 9, 10, 10, 0, 0, 0, time.UTC))

	result := formatAvailability(slots, time.UTC)

	assert.Contains(t, result.Technical, "2026-09-10T10:00:00.000Z")
	assert.NotContains(t, result.Display, "2026-09-10T10:00:00.000Z")
}

func TestFormatAvailabilityGroupsByLocalDate(t *testing.T) {
	// 23:30 UTC falls on the next day in a +10:00 zone.
	loc := time.FixedZone("AEST", 10*3600)
	slots := utcSlots(time.Date(2026, 9, 10, 23, 30, 0, 0, time.UTC))

	result := formatAvailability(slots, loc)

	assert.Contains(t, result.Display, "Fri 11 Sep")
	assert.Contains(t, result.Display, "9:30am")
	assert.Contains(t, result.Technical, "2026-09-10T23:30:00.000Z")
}

func TestFormatAvailabilityEmpty(t *testing.T) {
	result := formatAvailability(map[string][]Slot{}, time.UTC)

	require.NotEmpty(t, result.Display)
	assert.Empty(t, result.Technical)
	assert.Equal(t, result.Display, result.ForAgent())
}

func TestForAgentJoinsSections(t *testing.T) {
	result := AvailabilityResult{Display: "summary", Technical: "timestamps"}
	assert.Equal(t, "summary\n\n---\ntimestamps", result.ForAgent())
}
