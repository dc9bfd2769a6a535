package service

import (
	"fmt"

	"github.com/alamriomar/moeen/backend/internal/continuity"
)

// weekExplanations 周状态说明模板，按语言与成因索引
// 模板参数依次为：周次、该周相关告警数
var weekExplanations = map[string]map[continuity.WeekReason]string{
	"ar": {
		continuity.ReasonNoSchedule: "الأسبوع %d: أيام المحاضرات غير محددة",
		continuity.ReasonPending:    "الأسبوع %d: %d محاضرة بدون تسجيل حضور بانتظار المعالجة",
		continuity.ReasonIgnored:    "الأسبوع %d: تم تجاهل %d محاضرة بدون تسجيل حضور",
		continuity.ReasonComplete:   "الأسبوع %d: مكتمل",
		continuity.ReasonNotDue:     "الأسبوع %d: لم يحن موعده بعد",
	},
	"zh": {
		continuity.ReasonNoSchedule: "第%d周：上课日未确定",
		continuity.ReasonPending:    "第%d周：%d 个上课日缺少考勤记录，待处理",
		continuity.ReasonIgnored:    "第%d周：%d 个缺失记录已确认忽略",
		continuity.ReasonComplete:   "第%d周：已完成",
		continuity.ReasonNotDue:     "第%d周：尚未到期",
	},
	"en": {
		continuity.ReasonNoSchedule: "Week %d: lecture days not set",
		continuity.ReasonPending:    "Week %d: %d lecture(s) missing attendance, pending review",
		continuity.ReasonIgnored:    "Week %d: %d missing record(s) dismissed",
		continuity.ReasonComplete:   "Week %d: complete",
		continuity.ReasonNotDue:     "Week %d: not yet due",
	},
}

// WeekExplanation 按 tracker.locale 生成单周状态说明，未知语言回退阿拉伯语
func WeekExplanation(locale string, ws continuity.WeekStatus) string {
	tmpl, ok := weekExplanations[localeBase(locale)][ws.Reason]
	if !ok {
		return string(ws.Status)
	}
	switch ws.Reason {
	case continuity.ReasonPending:
		return fmt.Sprintf(tmpl, ws.Week, ws.PendingCount)
	case continuity.ReasonIgnored:
		return fmt.Sprintf(tmpl, ws.Week, ws.IgnoredCount)
	default:
		return fmt.Sprintf(tmpl, ws.Week)
	}
}
