package continuity

import "sort"

// hasAlert 判断告警是否已存在（不区分状态）
func (s *State) hasAlert(id AlertID) bool {
	_, ok := s.alertIndex()[normalizeID(id)]
	return ok
}

// Dismiss 将告警标记为 ignored。
// 已是 ignored 时为幂等空操作（changed=false）；找不到时返回 ErrAlertNotFound 且不修改文档。
// pending → ignored 是唯一的状态迁移，没有反向迁移。
func (s *State) Dismiss(id AlertID) (bool, error) {
	i, ok := s.alertIndex()[normalizeID(id)]
	if !ok {
		return false, ErrAlertNotFound
	}
	if s.MissedAbsences[i].Status == AlertIgnored {
		return false, nil
	}
	s.MissedAbsences[i].Status = AlertIgnored
	return true, nil
}

// AlertsFor 返回某课程-班级的全部告警，按周次、上课日排序
func (s *State) AlertsFor(key Key) []MissedAbsenceAlert {
	var out []MissedAbsenceAlert
	for _, a := range s.MissedAbsences {
		if a.Key() == key {
			out = append(out, a)
		}
	}
	sortAlerts(out)
	return out
}

// PendingAlertsFor 仅返回待处理告警
func (s *State) PendingAlertsFor(key Key) []MissedAbsenceAlert {
	var out []MissedAbsenceAlert
	for _, a := range s.AlertsFor(key) {
		if a.Status == AlertPending {
			out = append(out, a)
		}
	}
	return out
}

// addAlert 追加一条 pending 告警；已存在时返回 false
func (s *State) addAlert(id AlertID) (MissedAbsenceAlert, bool) {
	if s.hasAlert(id) {
		return MissedAbsenceAlert{}, false
	}
	alert := MissedAbsenceAlert{
		CourseCode: id.CourseCode,
		Section:    id.Section,
		Week:       id.Week,
		Weekday:    id.Weekday,
		Status:     AlertPending,
	}
	idx := s.alertIndex()
	s.MissedAbsences = append(s.MissedAbsences, alert)
	idx[id] = len(s.MissedAbsences) - 1
	return alert, true
}

func (s *State) alertIndex() map[AlertID]int {
	if s.index != nil && len(s.index) == len(s.MissedAbsences) {
		return s.index
	}
	s.index = make(map[AlertID]int, len(s.MissedAbsences))
	for i, a := range s.MissedAbsences {
		id := a.ID()
		if _, dup := s.index[id]; !dup {
			s.index[id] = i
		}
	}
	return s.index
}

func normalizeID(id AlertID) AlertID {
	k := NewKey(id.CourseCode, id.Section)
	id.CourseCode, id.Section = k.CourseCode, k.Section
	return id
}

func sortAlerts(alerts []MissedAbsenceAlert) {
	sort.SliceStable(alerts, func(i, j int) bool {
		if alerts[i].Week != alerts[j].Week {
			return alerts[i].Week < alerts[j].Week
		}
		return alerts[i].Weekday < alerts[j].Weekday
	})
}

// AllAlerts 返回全部告警的副本，按课程-班级、周次、上课日排序
func (s *State) AllAlerts() []MissedAbsenceAlert {
	out := make([]MissedAbsenceAlert, len(s.MissedAbsences))
	copy(out, s.MissedAbsences)
	sort.SliceStable(out, func(i, j int) bool {
		ki, kj := out[i].Key().String(), out[j].Key().String()
		if ki != kj {
			return ki < kj
		}
		if out[i].Week != out[j].Week {
			return out[i].Week < out[j].Week
		}
		return out[i].Weekday < out[j].Weekday
	})
	return out
}
