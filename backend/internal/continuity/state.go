package continuity

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// ── 考勤连续性追踪：领域模型 ──────────────────────────────────
//
// 一个教师（owner）对应一份 State 文档，三个"存储"都是它的视图：
//   - Schedules      课程-班级 → 每周上课日集合（ScheduleRegistry）
//   - LastRecorded   课程-班级 → 最近一次考勤提交（SubmissionLedger）
//   - MissedAbsences 缺失考勤告警列表（AlertStore）
//
// 本包不做任何 I/O：调用方负责 加载 → 修改 → 整体写回。
// ─────────────────────────────────────────────────────────────

const (
	// TermWeeks 学期固定周数
	TermWeeks = 17
	// WeekdaysPerWeek 每周教学日数（1=第一个教学日 … 5=最后一个）
	WeekdaysPerWeek = 5
)

// Key 课程-班级组合键
type Key struct {
	CourseCode string
	Section    string
}

// NewKey 创建组合键（去除首尾空白）
func NewKey(courseCode, section string) Key {
	return Key{
		CourseCode: strings.TrimSpace(courseCode),
		Section:    strings.TrimSpace(section),
	}
}

// String 返回持久化使用的键格式 courseCode_section
func (k Key) String() string {
	return k.CourseCode + "_" + k.Section
}

// ScheduleEntry 某课程-班级的周期性上课日
type ScheduleEntry struct {
	CourseCode string `json:"course_code"`
	Section    string `json:"section"`
	Weekdays   []int  `json:"weekdays"` // 升序、去重，取值 1-5
}

// Key 返回组合键
func (e ScheduleEntry) Key() Key { return NewKey(e.CourseCode, e.Section) }

// Has 判断 weekday 是否为上课日
func (e ScheduleEntry) Has(weekday int) bool {
	for _, d := range e.Weekdays {
		if d == weekday {
			return true
		}
	}
	return false
}

// SubmissionRecord 一次考勤提交（也是"最近一次提交"的存储形态）
type SubmissionRecord struct {
	CourseCode string `json:"course_code"`
	Section    string `json:"section"`
	Week       int    `json:"week"`    // 1-17
	Weekday    int    `json:"weekday"` // 1-5
	Date       string `json:"date"`    // 不透明字符串，引擎不解析
}

// Submission 外部保存动作上报的一次提交
type Submission = SubmissionRecord

// Key 返回组合键
func (r SubmissionRecord) Key() Key { return NewKey(r.CourseCode, r.Section) }

// Validate 校验周次与上课日范围。GapDetector 假设输入已通过校验。
func (r SubmissionRecord) Validate() error {
	if strings.TrimSpace(r.CourseCode) == "" {
		return fmt.Errorf("%w: course_code 不能为空", ErrInvalidSubmission)
	}
	if strings.TrimSpace(r.Section) == "" {
		return fmt.Errorf("%w: section 不能为空", ErrInvalidSubmission)
	}
	if r.Week < 1 || r.Week > TermWeeks {
		return fmt.Errorf("%w: week=%d 超出范围 1-%d", ErrInvalidSubmission, r.Week, TermWeeks)
	}
	if r.Weekday < 1 || r.Weekday > WeekdaysPerWeek {
		return fmt.Errorf("%w: weekday=%d 超出范围 1-%d", ErrInvalidSubmission, r.Weekday, WeekdaysPerWeek)
	}
	return nil
}

// AlertStatus 告警状态
type AlertStatus string

const (
	AlertPending AlertStatus = "pending"
	AlertIgnored AlertStatus = "ignored"
)

// AlertID 告警唯一标识
type AlertID struct {
	CourseCode string `json:"course_code"`
	Section    string `json:"section"`
	Week       int    `json:"week"`
	Weekday    int    `json:"weekday"`
}

// MissedAbsenceAlert 缺失考勤告警
type MissedAbsenceAlert struct {
	CourseCode string      `json:"course_code"`
	Section    string      `json:"section"`
	Week       int         `json:"week"`
	Weekday    int         `json:"weekday"`
	Status     AlertStatus `json:"status"`
}

// ID 返回告警唯一标识
func (a MissedAbsenceAlert) ID() AlertID {
	return AlertID{
		CourseCode: strings.TrimSpace(a.CourseCode),
		Section:    strings.TrimSpace(a.Section),
		Week:       a.Week,
		Weekday:    a.Weekday,
	}
}

// Key 返回组合键
func (a MissedAbsenceAlert) Key() Key { return NewKey(a.CourseCode, a.Section) }

// State 单个 owner 的完整连续性文档
type State struct {
	Schedules      map[string]ScheduleEntry    `json:"schedules"`
	LastRecorded   map[string]SubmissionRecord `json:"last_recorded"`
	MissedAbsences []MissedAbsenceAlert        `json:"missed_absences"`

	// 告警去重索引，按需从 MissedAbsences 重建
	index map[AlertID]int
}

// NewState 返回空文档 {schedules:{}, last_recorded:{}, missed_absences:[]}
func NewState() *State {
	return &State{
		Schedules:      make(map[string]ScheduleEntry),
		LastRecorded:   make(map[string]SubmissionRecord),
		MissedAbsences: []MissedAbsenceAlert{},
	}
}

// Decode 解析持久化文档。空内容或 null 视为空文档。
func Decode(data []byte) (*State, error) {
	st := NewState()
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return st, nil
	}
	if err := json.Unmarshal(trimmed, st); err != nil {
		return nil, fmt.Errorf("解析连续性文档失败: %w", err)
	}
	st.normalize()
	return st, nil
}

// Encode 序列化为持久化文档
func (s *State) Encode() ([]byte, error) {
	s.normalize()
	return json.Marshal(s)
}

// Keys 返回文档中出现过的全部课程-班级（课表或提交记录），按键排序
func (s *State) Keys() []Key {
	seen := make(map[string]Key)
	for _, e := range s.Schedules {
		k := e.Key()
		seen[k.String()] = k
	}
	for _, r := range s.LastRecorded {
		k := r.Key()
		seen[k.String()] = k
	}
	keys := make([]Key, 0, len(seen))
	for _, k := range seen {
		keys = append(keys, k)
	}
	sortKeys(keys)
	return keys
}

// normalize 补齐缺失的集合字段并规整课表上课日
func (s *State) normalize() {
	if s.Schedules == nil {
		s.Schedules = make(map[string]ScheduleEntry)
	}
	if s.LastRecorded == nil {
		s.LastRecorded = make(map[string]SubmissionRecord)
	}
	if s.MissedAbsences == nil {
		s.MissedAbsences = []MissedAbsenceAlert{}
	}
	for k, e := range s.Schedules {
		e.Weekdays = mergeWeekdays(nil, e.Weekdays)
		s.Schedules[k] = e
	}
}
