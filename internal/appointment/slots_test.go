package appointment

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func window(day time.Weekday, start, end string, duration int, ct ConsultationType) AvailabilityWindow {
	s, err := ParseClock(start)
	if err != nil {
		panic(err)
	}
	e, err := ParseClock(end)
	if err != nil {
		panic(err)
	}
	return AvailabilityWindow{
		ID:               uuid.New(),
		DayOfWeek:        day,
		StartTime:        s,
		EndTime:          e,
		SlotDuration:     duration,
		ConsultationType: ct,
		Active:           true,
	}
}

func TestGenerateSlotsFullDay(t *testing.T) {
	slots := GenerateSlots(window(time.Monday, "09:00", "17:00", 30, ConsultationBoth))

	require.Len(t, slots, 16)
	assert.Equal(t, "09:00", slots[0].StartTime.String())
	assert.Equal(t, "09:30", slots[0].EndTime.String())
	assert.Equal(t, "16:30", slots[15].StartTime.String())
	assert.Equal(t, "17:00", slots[15].EndTime.String())
}

func TestGenerateSlotsAreContiguousAndExact(t *testing.T) {
	for _, duration := range []int{5, 15, 20, 25, 45, 60, 90} {
		w := window(time.Tuesday, "08:10", "15:55", duration, ConsultationInPerson)
		slots := GenerateSlots(w)
		require.NotEmpty(t, slots)

		assert.Equal(t, w.StartTime, slots[0].StartTime)
		for i, s := range slots {
			assert.Equal(t, duration, int(s.EndTime-s.StartTime), "duration %d slot %d", duration, i)
			assert.LessOrEqual(t, s.EndTime, w.EndTime)
			if i > 0 {
				assert.Equal(t, slots[i-1].EndTime, s.StartTime)
			}
		}
		// no room left for one more
		assert.Greater(t, slots[len(slots)-1].EndTime.Add(duration), w.EndTime)
	}
}

func TestGenerateSlotsBoundary(t *testing.T) {
	exact := GenerateSlots(window(time.Monday, "09:00", "10:00", 30, ConsultationBoth))
	require.Len(t, exact, 2)
	assert.Equal(t, "10:00", exact[1].EndTime.String())

	short := GenerateSlots(window(time.Monday, "09:00", "09:59", 30, ConsultationBoth))
	require.Len(t, short, 1)
	assert.Equal(t, "09:30", short[0].EndTime.String())

	none := GenerateSlots(window(time.Monday, "09:00", "09:29", 30, ConsultationBoth))
	assert.Empty(t, none)
}

func TestGenerateSlotsDegenerateWindows(t *testing.T) {
	assert.Nil(t, GenerateSlots(window(time.Monday, "10:00", "10:00", 30, ConsultationBoth)))
	assert.Nil(t, GenerateSlots(window(time.Monday, "11:00", "10:00", 30, ConsultationBoth)))
	assert.Nil(t, GenerateSlots(window(time.Monday, "09:00", "10:00", 0, ConsultationBoth)))
}

func TestMatchingWindows(t *testing.T) {
	inPerson := window(time.Monday, "09:00", "12:00", 30, ConsultationInPerson)
	remote := window(time.Monday, "13:00", "15:00", 30, ConsultationRemote)
	both := window(time.Monday, "15:00", "17:00", 30, ConsultationBoth)
	inactive := window(time.Monday, "17:00", "18:00", 30, ConsultationBoth)
	inactive.Active = false

	all := []AvailabilityWindow{inPerson, remote, both, inactive}

	assert.Equal(t, []AvailabilityWindow{inPerson, both}, MatchingWindows(all, ConsultationInPerson))
	assert.Equal(t, []AvailabilityWindow{remote, both}, MatchingWindows(all, ConsultationRemote))
	assert.Equal(t, []AvailabilityWindow{inPerson, remote, both}, MatchingWindows(all, ""))
}

func TestFindWindowFor(t *testing.T) {
	windows := []AvailabilityWindow{
		window(time.Monday, "09:00", "10:00", 30, ConsultationBoth),
		window(time.Monday, "14:00", "16:00", 45, ConsultationBoth),
	}

	_, end, ok := FindWindowFor(windows, NewClock(9, 30))
	require.True(t, ok)
	assert.Equal(t, NewClock(10, 0), end)

	// off-grid start is accepted as long as the slot fits
	_, end, ok = FindWindowFor(windows, NewClock(14, 10))
	require.True(t, ok)
	assert.Equal(t, NewClock(14, 55), end)

	_, _, ok = FindWindowFor(windows, NewClock(9, 45))
	assert.False(t, ok, "09:45 + 30 overruns the window end")

	_, _, ok = FindWindowFor(windows, NewClock(10, 0))
	assert.False(t, ok, "window end is exclusive")

	_, _, ok = FindWindowFor(windows, NewClock(8, 0))
	assert.False(t, ok)
}

func TestBuildSlotsMergesOverlappingWindows(t *testing.T) {
	windows := []AvailabilityWindow{
		window(time.Monday, "10:00", "11:00", 30, ConsultationRemote),
		window(time.Monday, "09:00", "11:00", 30, ConsultationInPerson),
	}

	slots := BuildSlots(windows)
	require.Len(t, slots, 4)
	for i, want := range []string{"09:00", "09:30", "10:00", "10:30"} {
		assert.Equal(t, want, slots[i].StartTime.String())
	}
}

func TestBuildSlotsKeepsDistinctDurations(t *testing.T) {
	windows := []AvailabilityWindow{
		window(time.Monday, "09:00", "10:00", 60, ConsultationBoth),
		window(time.Monday, "09:00", "10:00", 30, ConsultationBoth),
	}

	slots := BuildSlots(windows)
	require.Len(t, slots, 3)
	assert.Equal(t, NewClock(9, 30), slots[0].EndTime)
	assert.Equal(t, NewClock(10, 0), slots[1].EndTime)
	assert.Equal(t, NewClock(9, 30), slots[2].StartTime)
}

func TestMarkAvailability(t *testing.T) {
	date := Date{Year: 2030, Month: time.March, Day: 4}
	slots := BuildSlots([]AvailabilityWindow{window(date.Weekday(), "09:00", "11:00", 30, ConsultationBoth)})

	existing := []Appointment{
		{StartTime: NewClock(9, 0), EndTime: NewClock(9, 30), Status: StatusPending},
		{StartTime: NewClock(10, 0), EndTime: NewClock(10, 30), Status: StatusCancelledByPatient},
	}
	now := time.Date(2030, time.March, 1, 12, 0, 0, 0, time.UTC)

	marked := MarkAvailability(slots, date, existing, now)
	require.Len(t, marked, 4)
	assert.False(t, marked[0].Available, "09:00 overlaps a pending appointment")
	assert.True(t, marked[1].Available, "09:30 is back-to-back")
	assert.True(t, marked[2].Available, "cancelled appointments free their time")
	assert.True(t, marked[3].Available)
}

func TestMarkAvailabilityToday(t *testing.T) {
	date := Date{Year: 2030, Month: time.March, Day: 4}
	slots := BuildSlots([]AvailabilityWindow{window(date.Weekday(), "09:00", "11:00", 30, ConsultationBoth)})
	now := time.Date(2030, time.March, 4, 9, 30, 0, 0, time.UTC)

	marked := MarkAvailability(slots, date, nil, now)
	require.Len(t, marked, 4, "past slots are still returned")
	assert.False(t, marked[0].Available)
	assert.False(t, marked[1].Available, "a slot starting now has already started")
	assert.True(t, marked[2].Available)

	past := MarkAvailability(BuildSlots([]AvailabilityWindow{window(date.Weekday(), "09:00", "10:00", 30, ConsultationBoth)}),
		date, nil, now.AddDate(0, 0, 1))
	for _, s := range past {
		assert.False(t, s.Available)
	}
}

func TestBuildSlotsIsRepeatable(t *testing.T) {
	windows := []AvailabilityWindow{
		window(time.Friday, "13:00", "15:00", 20, ConsultationBoth),
		window(time.Friday, "08:00", "12:00", 30, ConsultationInPerson),
	}
	assert.Equal(t, BuildSlots(windows), BuildSlots(windows))
}
