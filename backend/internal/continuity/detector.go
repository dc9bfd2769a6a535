package continuity

// Outcome 一次提交的缺口检测结果类型
type Outcome string

const (
	// OutcomeNoSchedule 未登记课表，跳过缺口检测（仍记录本次提交）
	OutcomeNoSchedule Outcome = "no_schedule"
	// OutcomeBaseline 该课程首次提交，作为基线
	OutcomeBaseline Outcome = "baseline"
	// OutcomeChecked 已与上一次提交比对
	OutcomeChecked Outcome = "checked"
)

// RecordResult RecordSubmission 的返回值
type RecordResult struct {
	Outcome   Outcome
	Previous  *SubmissionRecord // 比对前的最近一次提交，基线/无课表时可能为 nil
	NewAlerts []MissedAbsenceAlert
}

// RecordSubmission 记录一次考勤提交并发现上一次提交之后漏掉的上课日。
//
// 候选时段：严格晚于 last、严格早于 sub，按 周次→上课日 顺序枚举：
//   - w 从 last.Week 到 sub.Week
//   - 首周从 last.Weekday+1 开始，其余周从 1 开始
//   - 末周到 sub.Weekday-1 为止，其余周到 5 为止
//
// 命中课表且尚无告警的时段生成 pending 告警。无论结果如何，sub 都会覆盖 last。
// 输入须已通过 Submission.Validate；单次调用最多检查 17×5 个时段。
func RecordSubmission(s *State, sub Submission) RecordResult {
	s.normalize()
	key := sub.Key()
	sub.CourseCode, sub.Section = key.CourseCode, key.Section

	schedule, ok := s.Schedule(key)
	if !ok || len(schedule.Weekdays) == 0 {
		prev := lastPtr(s, key)
		s.SetLast(sub)
		return RecordResult{Outcome: OutcomeNoSchedule, Previous: prev}
	}

	last, ok := s.Last(key)
	if !ok {
		s.SetLast(sub)
		return RecordResult{Outcome: OutcomeBaseline}
	}

	var created []MissedAbsenceAlert
	for w := last.Week; w <= sub.Week; w++ {
		startDay := 1
		if w == last.Week {
			startDay = last.Weekday + 1
		}
		endDay := WeekdaysPerWeek
		if w == sub.Week {
			endDay = sub.Weekday - 1
		}
		for d := startDay; d <= endDay; d++ {
			if !schedule.Has(d) {
				continue
			}
			id := AlertID{CourseCode: key.CourseCode, Section: key.Section, Week: w, Weekday: d}
			if alert, added := s.addAlert(id); added {
				created = append(created, alert)
			}
		}
	}

	s.SetLast(sub)
	return RecordResult{Outcome: OutcomeChecked, Previous: &last, NewAlerts: created}
}

func lastPtr(s *State, key Key) *SubmissionRecord {
	if r, ok := s.Last(key); ok {
		return &r
	}
	return nil
}
