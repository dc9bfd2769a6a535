package continuity

import "sort"

// SetSchedule 将 weekdays 并入 key 对应的上课日集合（不存在则创建）。
// 上课日只做并集，不做替换：同一课程的理论课/实验课多次导入可以正确累积。
// 1-5 以外的取值被丢弃；没有有效取值时不做任何修改。
// 返回合并后的条目以及集合是否发生变化。
func (s *State) SetSchedule(key Key, weekdays []int) (ScheduleEntry, bool) {
	s.normalize()
	existing, ok := s.Schedules[key.String()]

	valid := validWeekdays(weekdays)
	if len(valid) == 0 {
		return existing, false
	}

	merged := mergeWeekdays(existing.Weekdays, valid)
	changed := !ok || len(merged) != len(existing.Weekdays)

	entry := ScheduleEntry{
		CourseCode: key.CourseCode,
		Section:    key.Section,
		Weekdays:   merged,
	}
	s.Schedules[key.String()] = entry
	return entry, changed
}

// Schedule 查询课表，不存在时 ok=false
func (s *State) Schedule(key Key) (ScheduleEntry, bool) {
	e, ok := s.Schedules[key.String()]
	return e, ok
}

// ScheduleEntries 返回全部课表，按键排序
func (s *State) ScheduleEntries() []ScheduleEntry {
	entries := make([]ScheduleEntry, 0, len(s.Schedules))
	for _, e := range s.Schedules {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Key().String() < entries[j].Key().String()
	})
	return entries
}

func validWeekdays(days []int) []int {
	out := make([]int, 0, len(days))
	for _, d := range days {
		if d >= 1 && d <= WeekdaysPerWeek {
			out = append(out, d)
		}
	}
	return out
}

// mergeWeekdays 并集 + 去重 + 升序
func mergeWeekdays(a, b []int) []int {
	set := make(map[int]struct{}, len(a)+len(b))
	for _, d := range a {
		set[d] = struct{}{}
	}
	for _, d := range b {
		set[d] = struct{}{}
	}
	out := make([]int, 0, len(set))
	for d := range set {
		out = append(out, d)
	}
	sort.Ints(out)
	return out
}

func sortKeys(keys []Key) {
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].String() < keys[j].String()
	})
}
