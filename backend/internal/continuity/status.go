package continuity

// WeekColor 周状态颜色
type WeekColor string

const (
	StatusRed    WeekColor = "red"    // 存在未处理的缺失记录
	StatusYellow WeekColor = "yellow" // 缺失记录均已忽略
	StatusGreen  WeekColor = "green"  // 已完成
	StatusGray   WeekColor = "gray"   // 尚未到期 / 上课日未确定
)

// WeekReason 周状态成因，供展示层本地化说明文字
type WeekReason string

const (
	ReasonNoSchedule WeekReason = "no_schedule" // 上课日未确定
	ReasonPending    WeekReason = "pending"     // 有待处理缺失
	ReasonIgnored    WeekReason = "ignored"     // 缺失均已忽略
	ReasonComplete   WeekReason = "complete"    // 已完成
	ReasonNotDue     WeekReason = "not_due"     // 尚未到期
)

// WeekStatus 单周状态
type WeekStatus struct {
	Week         int        `json:"week"`
	Status       WeekColor  `json:"status"`
	Reason       WeekReason `json:"reason"`
	PendingCount int       `json:"pending_count"`
	IgnoredCount int       `json:"ignored_count"`
}

// WeeklyGrid 整学期的周状态序列
type WeeklyGrid [TermWeeks]WeekStatus

// ComputeWeeklyStatus 计算 1-17 周的状态。
//
// 课表缺失或为空时全部为 gray（上课日未确定），与其他数据无关。
// 否则优先级严格为 red > yellow > green > gray：
// 同一周同时存在 pending 与 ignored 告警时仍为 red；
// 无告警且 week <= last.Week 时为 green。
// alerts 应只包含该课程-班级的告警。
func ComputeWeeklyStatus(schedule *ScheduleEntry, last *SubmissionRecord, alerts []MissedAbsenceAlert) WeeklyGrid {
	var grid WeeklyGrid

	if schedule == nil || len(schedule.Weekdays) == 0 {
		for i := range grid {
			grid[i] = WeekStatus{Week: i + 1, Status: StatusGray, Reason: ReasonNoSchedule}
		}
		return grid
	}

	lastWeek := 0
	if last != nil {
		lastWeek = last.Week
	}

	pending := make(map[int]int)
	ignored := make(map[int]int)
	for _, a := range alerts {
		switch a.Status {
		case AlertPending:
			pending[a.Week]++
		case AlertIgnored:
			ignored[a.Week]++
		}
	}

	for i := range grid {
		week := i + 1
		ws := WeekStatus{Week: week, PendingCount: pending[week], IgnoredCount: ignored[week]}
		switch {
		case ws.PendingCount > 0:
			ws.Status, ws.Reason = StatusRed, ReasonPending
		case ws.IgnoredCount > 0:
			ws.Status, ws.Reason = StatusYellow, ReasonIgnored
		case week <= lastWeek:
			ws.Status, ws.Reason = StatusGreen, ReasonComplete
		default:
			ws.Status, ws.Reason = StatusGray, ReasonNotDue
		}
		grid[i] = ws
	}
	return grid
}

// StatusFor 从文档中取出课程-班级的数据并计算周状态
func (s *State) StatusFor(key Key) WeeklyGrid {
	var schedule *ScheduleEntry
	if e, ok := s.Schedule(key); ok {
		schedule = &e
	}
	return ComputeWeeklyStatus(schedule, lastPtr(s, key), s.AlertsFor(key))
}
