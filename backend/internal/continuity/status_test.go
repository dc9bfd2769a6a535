package continuity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func alert(week, weekday int, status AlertStatus) MissedAbsenceAlert {
	return MissedAbsenceAlert{CourseCode: "474 MIS", Section: "128", Week: week, Weekday: weekday, Status: status}
}

func colors(grid WeeklyGrid) []WeekColor {
	out := make([]WeekColor, 0, len(grid))
	for _, ws := range grid {
		out = append(out, ws.Status)
	}
	return out
}

func TestComputeWeeklyStatus_NoScheduleAllGray(t *testing.T) {
	last := sub(10, 1)
	alerts := []MissedAbsenceAlert{alert(2, 1, AlertPending)}

	for _, schedule := range []*ScheduleEntry{nil, {CourseCode: "474 MIS", Section: "128"}} {
		grid := ComputeWeeklyStatus(schedule, &last, alerts)
		for i, ws := range grid {
			assert.Equal(t, i+1, ws.Week)
			assert.Equal(t, StatusGray, ws.Status)
			assert.Equal(t, ReasonNoSchedule, ws.Reason)
		}
	}
}

func TestComputeWeeklyStatus_Scenario(t *testing.T) {
	schedule := &ScheduleEntry{CourseCode: "474 MIS", Section: "128", Weekdays: []int{1, 3}}
	last := sub(6, 1)
	alerts := []MissedAbsenceAlert{
		alert(5, 3, AlertPending),
		alert(3, 1, AlertIgnored),
	}

	grid := ComputeWeeklyStatus(schedule, &last, alerts)

	want := []WeekColor{
		StatusGreen, StatusGreen, StatusYellow, StatusGreen, StatusRed, StatusGreen,
	}
	for i := 6; i < TermWeeks; i++ {
		want = append(want, StatusGray)
	}
	assert.Equal(t, want, colors(grid))
	assert.Equal(t, 1, grid[4].PendingCount)
	assert.Equal(t, 1, grid[2].IgnoredCount)
	assert.Equal(t, ReasonPending, grid[4].Reason)
	assert.Equal(t, ReasonIgnored, grid[2].Reason)
	assert.Equal(t, ReasonComplete, grid[5].Reason)
	assert.Equal(t, ReasonNotDue, grid[16].Reason)
}

func TestComputeWeeklyStatus_RedDominatesYellow(t *testing.T) {
	schedule := &ScheduleEntry{Weekdays: []int{1, 3}}
	last := sub(9, 5)

	grid := ComputeWeeklyStatus(schedule, &last, []MissedAbsenceAlert{
		alert(4, 1, AlertIgnored),
		alert(4, 3, AlertPending),
	})

	assert.Equal(t, StatusRed, grid[3].Status)
	assert.Equal(t, 1, grid[3].PendingCount)
	assert.Equal(t, 1, grid[3].IgnoredCount)
}

func TestComputeWeeklyStatus_AlertsBeyondLastWeekStillColor(t *testing.T) {
	schedule := &ScheduleEntry{Weekdays: []int{2}}

	grid := ComputeWeeklyStatus(schedule, nil, []MissedAbsenceAlert{alert(12, 2, AlertIgnored)})

	assert.Equal(t, StatusYellow, grid[11].Status)
	assert.Equal(t, StatusGray, grid[0].Status)
}

func TestState_StatusFor(t *testing.T) {
	last := sub(5, 1)
	st := stateWith([]int{1, 3}, &last)
	RecordSubmission(st, sub(6, 3))
	_, err := st.Dismiss(AlertID{CourseCode: "474 MIS", Section: "128", Week: 6, Weekday: 1})
	require.NoError(t, err)

	grid := st.StatusFor(misKey)

	assert.Equal(t, StatusGreen, grid[3].Status)
	assert.Equal(t, StatusRed, grid[4].Status)
	assert.Equal(t, StatusYellow, grid[5].Status)
	assert.Equal(t, StatusGray, grid[6].Status)
}
