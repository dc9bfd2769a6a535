package service

import (
	"errors"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/alamriomar/moeen/backend/internal/continuity"
)

// ── 上课日文本解析 ──────────────────────────────────────────
//
// 课表导入时上课日可能以阿拉伯-印度数字（٠-٩）、波斯数字（۰-۹）
// 或星期名称给出；这里统一换算为教学日序号 1-5。
// 教学日序号相对 tracker.first_weekday：默认周日为第 1 个教学日。
// ─────────────────────────────────────────────────────────────

// ErrInvalidWeekday 无法识别的上课日
var ErrInvalidWeekday = errors.New("无法识别的上课日")

// foldDigit 将阿拉伯-印度数字与波斯数字折叠为 ASCII 数字
func foldDigit(r rune) rune {
	switch {
	case r >= '٠' && r <= '٩':
		return '0' + (r - '٠')
	case r >= '۰' && r <= '۹':
		return '0' + (r - '۰')
	}
	return r
}

// ParseWeekdayText 解析 "١ ٣"、"1,3"、"۲-۴" 等上课日文本。
// 非数字片段与非正数被忽略；超出 1-5 的取值留给 SetSchedule 丢弃。
func ParseWeekdayText(text string) []int {
	folded, _, err := transform.String(runes.Map(foldDigit), text)
	if err != nil {
		return nil
	}
	fields := strings.FieldsFunc(folded, func(r rune) bool { return r < '0' || r > '9' })

	var days []int
	for _, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil || n <= 0 {
			continue
		}
		days = append(days, n)
	}
	return days
}

// foldArabicLetter 统一 alef/yaa/taa marbuta 的书写变体
func foldArabicLetter(r rune) rune {
	switch r {
	case 'أ', 'إ', 'آ':
		return 'ا'
	case 'ى':
		return 'ي'
	case 'ة':
		return 'ه'
	}
	return r
}

// newDayNameNormalizer 每次调用新建：transform 链持有内部状态，不能并发复用
func newDayNameNormalizer() transform.Transformer {
	return transform.Chain(
		norm.NFC,
		runes.Remove(runes.Predicate(func(r rune) bool {
			return unicode.Is(unicode.White_Space, r) || r == 'ـ' // 空白与 tatweel
		})),
		runes.Map(foldArabicLetter),
	)
}

var dayNameIndex = map[string]time.Weekday{
	// 阿拉伯语（已去除冠词 ال 并完成字母折叠）
	"احد": time.Sunday, "اثنين": time.Monday, "ثلاثاء": time.Tuesday,
	"اربعاء": time.Wednesday, "خميس": time.Thursday, "جمعه": time.Friday, "سبت": time.Saturday,
	// 英语
	"sunday": time.Sunday, "sun": time.Sunday, "monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday, "wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday, "friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
	// 中文
	"周日": time.Sunday, "星期日": time.Sunday, "星期天": time.Sunday,
	"周一": time.Monday, "星期一": time.Monday, "周二": time.Tuesday, "星期二": time.Tuesday,
	"周三": time.Wednesday, "星期三": time.Wednesday, "周四": time.Thursday, "星期四": time.Thursday,
	"周五": time.Friday, "星期五": time.Friday, "周六": time.Saturday, "星期六": time.Saturday,
}

// ParseDayName 将星期名称（阿拉伯语/英语/中文）或单个数字换算为教学日序号 1-5
func ParseDayName(name string, first time.Weekday) (int, error) {
	normalized, _, err := transform.String(newDayNameNormalizer(), name)
	if err != nil || normalized == "" {
		return 0, ErrInvalidWeekday
	}
	normalized = cases.Lower(language.Und).String(normalized)

	if n, err := strconv.Atoi(foldASCII(normalized)); err == nil {
		if n < 1 || n > continuity.WeekdaysPerWeek {
			return 0, ErrInvalidWeekday
		}
		return n, nil
	}

	wd, ok := dayNameIndex[normalized]
	if !ok {
		wd, ok = dayNameIndex[strings.TrimPrefix(normalized, "ال")]
	}
	if !ok {
		return 0, ErrInvalidWeekday
	}

	d := AcademicWeekday(wd, first)
	if d > continuity.WeekdaysPerWeek {
		return 0, ErrInvalidWeekday
	}
	return d, nil
}

func foldASCII(s string) string {
	out, _, _ := transform.String(runes.Map(foldDigit), s)
	return out
}

// AcademicWeekday 将自然星期换算为教学日序号（1 起，可能大于 5 表示非教学日）
func AcademicWeekday(wd, first time.Weekday) int {
	return (int(wd)-int(first)+7)%7 + 1
}

// CalendarWeekday 教学日序号对应的自然星期
func CalendarWeekday(d int, first time.Weekday) time.Weekday {
	return time.Weekday((int(first) + d - 1) % 7)
}

var weekdayDisplayNames = map[string][7]string{
	"ar": {"الأحد", "الاثنين", "الثلاثاء", "الأربعاء", "الخميس", "الجمعة", "السبت"},
	"zh": {"周日", "周一", "周二", "周三", "周四", "周五", "周六"},
	"en": {"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"},
}

// localeBase 提取语言基础标签（ar-SA → ar），未知语言回退 ar
func localeBase(locale string) string {
	tag, err := language.Parse(locale)
	if err != nil {
		return "ar"
	}
	base, _ := tag.Base()
	if _, ok := weekdayDisplayNames[base.String()]; !ok {
		return "ar"
	}
	return base.String()
}

// WeekdayName 教学日序号的本地化名称
func WeekdayName(locale string, first time.Weekday, d int) string {
	if d < 1 || d > 7 {
		return strconv.Itoa(d)
	}
	return weekdayDisplayNames[localeBase(locale)][CalendarWeekday(d, first)]
}

// WeekdayNames 批量换算
func WeekdayNames(locale string, first time.Weekday, days []int) []string {
	names := make([]string, 0, len(days))
	for _, d := range days {
		names = append(names, WeekdayName(locale, first, d))
	}
	return names
}
