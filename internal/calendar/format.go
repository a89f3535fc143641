package calendar

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

const slotLength = 15 * time.Minute

// AvailabilityResult splits the human-facing summary from the machine-facing
// timestamp table. The technical section exists only so the agent can copy
// exact UTC timestamps into a booking; keeping it a separate field enforces
// that separation in the type system rather than in prompt text.
type AvailabilityResult struct {
	Display   string
	Technical string
}

// ForAgent renders the result the way the agent consumes it: the display
// summary followed by the booking timestamp table.
func (r AvailabilityResult) ForAgent() string {
	if r.Technical == "" {
		return r.Display
	}
	return r.Display + "\n\n---\n" + r.Technical
}

// formatAvailability regroups UTC slots by local date in the display
// timezone and renders consecutive slots as ranges.
func formatAvailability(slots map[string][]Slot, loc *time.Location) AvailabilityResult {
	times := make([]time.Time, 0)
	for _, daySlots := range slots {
		for _, s := range daySlots {
			times = append(times, s.Time)
		}
	}
	if len(times) == 0 {
		return AvailabilityResult{
			Display: "No available slots found in the requested date range. Please try different dates.",
		}
	}
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })

	byDate := make(map[string][]time.Time)
	var dates []string
	for _, t := range times {
		date := t.In(loc).Format("2006-01-02")
		if _, ok := byDate[date]; !ok {
			dates = append(dates, date)
		}
		byDate[date] = append(byDate[date], t)
	}
	sort.Strings(dates)

	var display strings.Builder
	display.WriteString("I have availability in the requested window:\n\n")
	var technical strings.Builder
	technical.WriteString("Technical details (for booking) - use these EXACT UTC timestamps:\n\n")

	for _, date := range dates {
		dayTimes := byDate[date]
		dayName := dayTimes[0].In(loc).Format("Mon 2 Jan")

		fmt.Fprintf(&display, "**%s**: %s\n", dayName, formatRanges(dayTimes, loc))

		fmt.Fprintf(&technical, "%s:\n", dayName)
		for _, t := range dayTimes {
			fmt.Fprintf(&technical, "  %s = %s\n",
				t.In(loc).Format("3:04pm"),
				t.UTC().Format("2006-01-02T15:04:05.000Z"))
		}
	}
	display.WriteString("\nWhich day and time works best for you?")

	return AvailabilityResult{
		Display:   display.String(),
		Technical: technical.String(),
	}
}

// formatRanges collapses consecutive slots into "10:00am-11:00am" spans.
func formatRanges(times []time.Time, loc *time.Location) string {
	var ranges []string
	rangeStart := times[0]
	rangeEnd := times[0]

	flush := func() {
		start := rangeStart.In(loc).Format("3:04pm")
		if rangeStart.Equal(rangeEnd) {
			ranges = append(ranges, start)
			return
		}
		end := rangeEnd.Add(slotLength).In(loc).Format("3:04pm")
		ranges = append(ranges, start+"-"+end)
	}

	for _, t := range times[1:] {
		if t.Sub(rangeEnd) == slotLength {
			rangeEnd = t
			continue
		}
		flush()
		rangeStart = t
		rangeEnd = t
	}
	flush()
	return strings.Join(ranges, ", ")
}
