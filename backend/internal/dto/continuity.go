package dto

// ── 考勤连续性模块 DTO ──

// IngestScheduleRequest 登记课程-班级上课日（与已有上课日取并集）
// weekdays 与 weekdays_text 至少提供一个；weekdays_text 支持阿拉伯-印度数字
type IngestScheduleRequest struct {
	CourseCode   string `json:"course_code"   binding:"required,max=64"`
	Section      string `json:"section"       binding:"required,max=32"`
	Weekdays     []int  `json:"weekdays"      binding:"omitempty,max=5,dive,min=1,max=5"`
	WeekdaysText string `json:"weekdays_text" binding:"omitempty,max=64"`
}

// ImportScheduleURLRequest 通过 URL 导入 ICS 课表
type ImportScheduleURLRequest struct {
	URL string `json:"url" binding:"required,url"`
}

// ScheduleResponse 课表条目
type ScheduleResponse struct {
	CourseCode   string   `json:"course_code"`
	Section      string   `json:"section"`
	Weekdays     []int    `json:"weekdays"`
	WeekdayNames []string `json:"weekday_names"`
	Changed      bool     `json:"changed,omitempty"`
}

// ImportScheduleResponse ICS 导入结果
type ImportScheduleResponse struct {
	Imported  int                `json:"imported"` // 识别出的课程-班级数
	Changed   int                `json:"changed"`  // 上课日集合发生变化的条目数
	Schedules []ScheduleResponse `json:"schedules"`
}

// RecordSubmissionRequest 上报一次考勤提交
// weekday 与 day_name 至少提供一个
type RecordSubmissionRequest struct {
	CourseCode string `json:"course_code" binding:"required,max=64"`
	Section    string `json:"section"     binding:"required,max=32"`
	Week       int    `json:"week"        binding:"required,min=1,max=17"`
	Weekday    int    `json:"weekday"     binding:"omitempty,min=1,max=5"`
	DayName    string `json:"day_name"    binding:"omitempty,max=32"`
	Date       string `json:"date"        binding:"omitempty,max=32"`
}

// SubmissionBrief 提交记录
type SubmissionBrief struct {
	Week        int    `json:"week"`
	Weekday     int    `json:"weekday"`
	WeekdayName string `json:"weekday_name"`
	Date        string `json:"date"`
}

// RecordSubmissionResponse 提交结果
// outcome: no_schedule | baseline | checked
type RecordSubmissionResponse struct {
	Outcome   string           `json:"outcome"`
	Previous  *SubmissionBrief `json:"previous,omitempty"`
	NewAlerts []AlertResponse  `json:"new_alerts"`
}

// AlertResponse 缺失考勤告警
type AlertResponse struct {
	CourseCode  string `json:"course_code"`
	Section     string `json:"section"`
	Week        int    `json:"week"`
	Weekday     int    `json:"weekday"`
	WeekdayName string `json:"weekday_name"`
	Status      string `json:"status"`
}

// AlertListRequest 告警列表查询参数；course_code/section 同时为空时返回全部
type AlertListRequest struct {
	CourseCode string `form:"course_code" binding:"required_with=Section,max=64"`
	Section    string `form:"section"     binding:"required_with=CourseCode,max=32"`
	Status     string `form:"status"      binding:"omitempty,oneof=pending ignored"`
}

// DismissAlertRequest 忽略告警
type DismissAlertRequest struct {
	CourseCode string `json:"course_code" binding:"required,max=64"`
	Section    string `json:"section"     binding:"required,max=32"`
	Week       int    `json:"week"        binding:"required,min=1,max=17"`
	Weekday    int    `json:"weekday"     binding:"required,min=1,max=5"`
}

// DismissAlertResponse 忽略结果；已是 ignored 时 changed=false
type DismissAlertResponse struct {
	Changed bool          `json:"changed"`
	Alert   AlertResponse `json:"alert"`
}

// CourseStatusRequest 周状态查询参数
type CourseStatusRequest struct {
	CourseCode string `form:"course_code" binding:"required,max=64"`
	Section    string `form:"section"     binding:"required,max=32"`
}

// WeekStatusResponse 单周状态
type WeekStatusResponse struct {
	Week         int    `json:"week"`
	Status       string `json:"status"` // red | yellow | green | gray
	Reason       string `json:"reason"` // no_schedule | pending | ignored | complete | not_due
	Explanation  string `json:"explanation"`
	PendingCount int    `json:"pending_count"`
	IgnoredCount int    `json:"ignored_count"`
}

// CourseStatusResponse 课程-班级 17 周状态
type CourseStatusResponse struct {
	CourseCode string               `json:"course_code"`
	Section    string               `json:"section"`
	Weeks      []WeekStatusResponse `json:"weeks"`
}

// CourseOverview 首页单个课程-班级概览
type CourseOverview struct {
	CourseCode   string               `json:"course_code"`
	Section      string               `json:"section"`
	Weekdays     []int                `json:"weekdays"`
	WeekdayNames []string             `json:"weekday_names"`
	Last         *SubmissionBrief     `json:"last,omitempty"`
	PendingCount int                  `json:"pending_count"`
	IgnoredCount int                  `json:"ignored_count"`
	Weeks        []WeekStatusResponse `json:"weeks"`
}

// OverviewResponse 首页概览
type OverviewResponse struct {
	Courses      []CourseOverview `json:"courses"`
	PendingTotal int              `json:"pending_total"`
}

// UsageResponse 存储占用
type UsageResponse struct {
	Bytes int64  `json:"bytes"`
	Human string `json:"human"`
}
