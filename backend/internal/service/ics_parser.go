package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"

	"github.com/alamriomar/moeen/backend/internal/continuity"
)

// ── ICS 解析器 ──────────────────────────────────────────────
//
// 职责：将 iCalendar (RFC 5545) 课表转换为 课程-班级 → 教学日集合。
//
// 规则：
//   - SUMMARY 形如 "474 MIS (128)" 或 "474 MIS | 128"，分别取课程代码与班级
//   - RRULE 带 BYDAY 时取 BYDAY 全部星期，否则取 DTSTART 所在星期
//   - 自然星期按 first_weekday 换算为教学日序号，落在 1-5 之外的跳过
//   - 同一课程-班级的多个事件（理论课 + 实验课）取并集
// ─────────────────────────────────────────────────────────────

const (
	icsMaxFileSize  = 5 * 1024 * 1024 // 5MB
	icsFetchTimeout = 30 * time.Second
)

var (
	// ErrICSParseFailed 日历内容不符合 RFC 5545
	ErrICSParseFailed = errors.New("ICS 格式解析失败")
	// ErrICSNoCourses 日历中没有可识别的课程事件
	ErrICSNoCourses = errors.New("日历中没有可识别的课程")
)

// ICSSchedule ICS 解析结果
type ICSSchedule struct {
	CourseCode string
	Section    string
	Weekdays   []int
}

// FetchICSContent 从 URL 获取 ICS 内容，调用方负责 Close
func FetchICSContent(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	// webcal:// → https://
	u := rawURL
	if strings.HasPrefix(u, "webcal://") {
		u = "https://" + strings.TrimPrefix(u, "webcal://")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("获取 ICS 失败: %w", err)
	}
	client := &http.Client{Timeout: icsFetchTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("获取 ICS 失败: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("获取 ICS 失败: HTTP %d", resp.StatusCode)
	}
	// 限制响应体大小，防止恶意 URL 返回超大内容导致 OOM
	return struct {
		io.Reader
		io.Closer
	}{
		Reader: io.LimitReader(resp.Body, icsMaxFileSize),
		Closer: resp.Body,
	}, nil
}

// ParseScheduleICS 解析 ICS 内容，返回按课程-班级排序的上课日集合
func ParseScheduleICS(reader io.Reader, first time.Weekday, loc *time.Location) ([]ICSSchedule, error) {
	cal, err := ics.ParseCalendar(reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrICSParseFailed, err)
	}
	if loc == nil {
		loc = time.UTC
	}

	merged := make(map[continuity.Key]map[int]struct{})
	for _, evt := range cal.Events() {
		key, days, ok := parseCourseEvent(evt, first, loc)
		if !ok {
			continue
		}
		set, exists := merged[key]
		if !exists {
			set = make(map[int]struct{})
			merged[key] = set
		}
		for _, d := range days {
			set[d] = struct{}{}
		}
	}

	result := make([]ICSSchedule, 0, len(merged))
	for key, set := range merged {
		days := make([]int, 0, len(set))
		for d := range set {
			days = append(days, d)
		}
		sort.Ints(days)
		result = append(result, ICSSchedule{CourseCode: key.CourseCode, Section: key.Section, Weekdays: days})
	}
	if len(result) == 0 {
		return nil, ErrICSNoCourses
	}
	sort.Slice(result, func(i, j int) bool {
		return continuity.NewKey(result[i].CourseCode, result[i].Section).String() <
			continuity.NewKey(result[j].CourseCode, result[j].Section).String()
	})
	return result, nil
}

// parseCourseEvent 解析单个 VEVENT：课程-班级 + 教学日序号
func parseCourseEvent(evt *ics.VEvent, first time.Weekday, loc *time.Location) (continuity.Key, []int, bool) {
	summary := evt.GetProperty(ics.ComponentPropertySummary)
	if summary == nil {
		return continuity.Key{}, nil, false
	}
	key, ok := parseCourseSummary(summary.Value)
	if !ok {
		return continuity.Key{}, nil, false
	}

	var weekdays []time.Weekday
	if rruleProp := evt.GetProperty(ics.ComponentPropertyRrule); rruleProp != nil {
		weekdays = parseRRule(rruleProp.Value).byDay
	}
	if len(weekdays) == 0 {
		dtStart, err := parseICSDateTime(evt, ics.ComponentPropertyDtStart, loc)
		if err != nil {
			return continuity.Key{}, nil, false
		}
		weekdays = []time.Weekday{dtStart.Weekday()}
	}

	var days []int
	for _, wd := range weekdays {
		if d := AcademicWeekday(wd, first); d <= continuity.WeekdaysPerWeek {
			days = append(days, d)
		}
	}
	if len(days) == 0 {
		return continuity.Key{}, nil, false
	}
	return key, days, true
}

var (
	summaryParenPattern = regexp.MustCompile(`^(.+?)\s*[(（]\s*([^()（）]+?)\s*[)）]\s*$`)
	summaryPipePattern  = regexp.MustCompile(`^(.+?)\s*\|\s*(.+?)\s*$`)
)

// parseCourseSummary 从 SUMMARY 中提取课程代码与班级
func parseCourseSummary(summary string) (continuity.Key, bool) {
	s := strings.TrimSpace(summary)
	for _, p := range []*regexp.Regexp{summaryParenPattern, summaryPipePattern} {
		if m := p.FindStringSubmatch(s); m != nil {
			key := continuity.NewKey(m[1], m[2])
			if key.CourseCode != "" && key.Section != "" {
				return key, true
			}
		}
	}
	return continuity.Key{}, false
}

// rruleParams RRULE 解析结果（只关心周重复的星期）
type rruleParams struct {
	freq  string
	byDay []time.Weekday
}

var icsDayCodes = map[string]time.Weekday{
	"SU": time.Sunday, "MO": time.Monday, "TU": time.Tuesday, "WE": time.Wednesday,
	"TH": time.Thursday, "FR": time.Friday, "SA": time.Saturday,
}

// parseRRule 解析 RRULE 字符串（如 FREQ=WEEKLY;BYDAY=SU,TU;COUNT=17）
func parseRRule(value string) rruleParams {
	var r rruleParams
	for _, part := range strings.Split(value, ";") {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToUpper(kv[0]) {
		case "FREQ":
			r.freq = strings.ToUpper(kv[1])
		case "BYDAY":
			for _, code := range strings.Split(kv[1], ",") {
				// 去掉 "1MO"、"-1FR" 中的序数前缀
				code = strings.ToUpper(strings.TrimLeft(strings.TrimSpace(code), "+-0123456789"))
				if wd, ok := icsDayCodes[code]; ok {
					r.byDay = append(r.byDay, wd)
				}
			}
		}
	}
	if r.freq != "" && r.freq != "WEEKLY" {
		r.byDay = nil
	}
	return r
}

// parseICSDateTime 从 VEVENT 中解析日期时间属性
func parseICSDateTime(evt *ics.VEvent, propName ics.ComponentProperty, loc *time.Location) (time.Time, error) {
	prop := evt.GetProperty(propName)
	if prop == nil {
		return time.Time{}, fmt.Errorf("missing property %s", propName)
	}
	val := prop.Value

	// 尝试多种 ICS 日期格式
	formats := []string{
		"20060102T150405Z",
		"20060102T150405",
		"20060102",
	}

	// 检查 TZID 参数
	tzid := ""
	for k, v := range prop.ICalParameters {
		if strings.ToUpper(k) == "TZID" && len(v) > 0 {
			tzid = v[0]
		}
	}

	for _, layout := range formats {
		if t, err := time.Parse(layout, val); err == nil {
			if strings.HasSuffix(layout, "Z") {
				return t.In(loc), nil
			}
			if tzid != "" {
				if tzLoc, err := time.LoadLocation(tzid); err == nil {
					return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, tzLoc).In(loc), nil
				}
			}
			return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, loc), nil
		}
	}

	return time.Time{}, fmt.Errorf("无法解析日期: %s", val)
}
