package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/alamriomar/moeen/backend/config"
	"github.com/alamriomar/moeen/backend/internal/continuity"
)

// ── 导出模块业务错误 ──

var (
	ErrExportNoData       = errors.New("暂无可导出的课程数据")
	ErrExportGenerateFail = errors.New("生成 Excel 文件失败")
)

// ExportService 导出业务接口
//
// 设计说明：
//   - 导出以 bytes.Buffer 返回，由 Handler 层设置 HTTP 响应头后写入 Response
//   - Sheet "周状态"：每个课程-班级一行，第 1-17 周各一列，单元格按状态着色
//   - Sheet "缺失记录"：全部告警明细
type ExportService interface {
	// ExportContinuity 导出考勤连续性周状态为 Excel
	ExportContinuity(ctx context.Context, ownerID string) (*bytes.Buffer, string, error)
}

type exportService struct {
	continuity ContinuityService
	first      time.Weekday
	locale     string
	logger     *zap.Logger
}

// NewExportService 创建 ExportService 实例
func NewExportService(cfg *config.TrackerConfig, continuitySvc ContinuityService, logger *zap.Logger) ExportService {
	first, err := cfg.Weekday()
	if err != nil {
		first = time.Sunday
	}
	return &exportService{continuity: continuitySvc, first: first, locale: cfg.Locale, logger: logger}
}

var statusFills = map[continuity.WeekColor]string{
	continuity.StatusRed:    "#F8CBAD",
	continuity.StatusYellow: "#FFE699",
	continuity.StatusGreen:  "#C6EFCE",
	continuity.StatusGray:   "#D9D9D9",
}

var statusLabels = map[continuity.WeekColor]string{
	continuity.StatusRed:    "待处理",
	continuity.StatusYellow: "已忽略",
	continuity.StatusGreen:  "已完成",
	continuity.StatusGray:   "-",
}

const (
	gridSheet   = "周状态"
	alertsSheet = "缺失记录"
)

// ═══════════════════════════════════════════════════════════
// ExportContinuity 导出周状态为 Excel
// ═══════════════════════════════════════════════════════════
//
// 输出格式：
//   - 表头：课程 | 班级 | 上课日 | 第1周 … 第17周
//   - 单元格：状态文字 + 待处理/已忽略数量，背景色对应 red/yellow/green/gray
//
// 返回值：buf（Excel 内容）, filename（建议文件名）, error

func (s *exportService) ExportContinuity(ctx context.Context, ownerID string) (*bytes.Buffer, string, error) {
	st, err := s.continuity.Snapshot(ctx, ownerID)
	if err != nil {
		return nil, "", err
	}
	keys := st.Keys()
	if len(keys) == 0 {
		return nil, "", ErrExportNoData
	}

	f := excelize.NewFile()
	defer f.Close()

	idx, _ := f.NewSheet(gridSheet)
	f.SetActiveSheet(idx)
	// 删除默认 Sheet1
	f.DeleteSheet("Sheet1")

	if err := s.writeGridSheet(f, st, keys); err != nil {
		s.logger.Error("写入周状态 Sheet 失败", zap.Error(err))
		return nil, "", ErrExportGenerateFail
	}
	if err := s.writeAlertsSheet(f, st); err != nil {
		s.logger.Error("写入缺失记录 Sheet 失败", zap.Error(err))
		return nil, "", ErrExportGenerateFail
	}

	// 写入 buffer
	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		s.logger.Error("写入 Excel 失败", zap.Error(err))
		return nil, "", ErrExportGenerateFail
	}

	filename := fmt.Sprintf("考勤连续性_%s.xlsx", time.Now().Format("20060102"))
	return buf, filename, nil
}

func (s *exportService) writeGridSheet(f *excelize.File, st *continuity.State, keys []continuity.Key) error {
	f.SetColWidth(gridSheet, "A", "A", 14)
	f.SetColWidth(gridSheet, "B", "B", 10)
	f.SetColWidth(gridSheet, "C", "C", 24)
	f.SetColWidth(gridSheet, colName(3), colName(2+continuity.TermWeeks), 12)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return err
	}
	statusStyles := make(map[continuity.WeekColor]int, len(statusFills))
	for color, fill := range statusFills {
		id, err := f.NewStyle(&excelize.Style{
			Fill:      excelize.Fill{Type: "pattern", Color: []string{fill}, Pattern: 1},
			Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		})
		if err != nil {
			return err
		}
		statusStyles[color] = id
	}

	// 表头
	row := 1
	f.SetCellValue(gridSheet, cell("A", row), "课程")
	f.SetCellValue(gridSheet, cell("B", row), "班级")
	f.SetCellValue(gridSheet, cell("C", row), "上课日")
	for w := 1; w <= continuity.TermWeeks; w++ {
		f.SetCellValue(gridSheet, cell(colName(2+w), row), fmt.Sprintf("第%d周", w))
	}
	f.SetCellStyle(gridSheet, "A1", cell(colName(2+continuity.TermWeeks), row), headerStyle)

	// 数据行
	for _, key := range keys {
		row++
		f.SetCellValue(gridSheet, cell("A", row), key.CourseCode)
		f.SetCellValue(gridSheet, cell("B", row), key.Section)
		if e, ok := st.Schedule(key); ok {
			f.SetCellValue(gridSheet, cell("C", row), strings.Join(WeekdayNames(s.locale, s.first, e.Weekdays), "، "))
		}

		for _, ws := range st.StatusFor(key) {
			c := cell(colName(2+ws.Week), row)
			f.SetCellValue(gridSheet, c, weekCellText(ws))
			f.SetCellStyle(gridSheet, c, c, statusStyles[ws.Status])
		}
	}
	return nil
}

func (s *exportService) writeAlertsSheet(f *excelize.File, st *continuity.State) error {
	if _, err := f.NewSheet(alertsSheet); err != nil {
		return err
	}
	headers := []string{"课程", "班级", "周次", "上课日", "状态"}
	for i, h := range headers {
		f.SetCellValue(alertsSheet, cell(colName(i), 1), h)
	}

	row := 1
	for _, a := range st.AllAlerts() {
		row++
		status := statusLabels[continuity.StatusRed]
		if a.Status == continuity.AlertIgnored {
			status = statusLabels[continuity.StatusYellow]
		}
		f.SetCellValue(alertsSheet, cell("A", row), a.CourseCode)
		f.SetCellValue(alertsSheet, cell("B", row), a.Section)
		f.SetCellValue(alertsSheet, cell("C", row), a.Week)
		f.SetCellValue(alertsSheet, cell("D", row), WeekdayName(s.locale, s.first, a.Weekday))
		f.SetCellValue(alertsSheet, cell("E", row), status)
	}
	return nil
}

func weekCellText(ws continuity.WeekStatus) string {
	switch ws.Status {
	case continuity.StatusRed:
		return fmt.Sprintf("%s (%d)", statusLabels[ws.Status], ws.PendingCount)
	case continuity.StatusYellow:
		return fmt.Sprintf("%s (%d)", statusLabels[ws.Status], ws.IgnoredCount)
	default:
		return statusLabels[ws.Status]
	}
}

// ── 辅助函数 ──

// colName 0 起的列序号 → 列名（0 → A）
func colName(idx int) string {
	name, _ := excelize.ColumnNumberToName(idx + 1)
	return name
}

func cell(col string, row int) string {
	return fmt.Sprintf("%s%d", col, row)
}
