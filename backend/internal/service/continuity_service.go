package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gorm.io/datatypes"

	"github.com/alamriomar/moeen/backend/config"
	"github.com/alamriomar/moeen/backend/internal/continuity"
	"github.com/alamriomar/moeen/backend/internal/dto"
	"github.com/alamriomar/moeen/backend/internal/model"
	"github.com/alamriomar/moeen/backend/internal/repository"
	"github.com/alamriomar/moeen/backend/pkg/metrics"
)

// ── 考勤连续性模块业务错误 ──

var (
	// ErrPersistenceFailure 文档读写失败，本次操作未生效
	ErrPersistenceFailure = errors.New("考勤数据读写失败")
	ErrEmptyOwner         = errors.New("owner_id 不能为空")
)

// ContinuityService 考勤连续性业务接口
//
// 写操作：加锁 → 加载文档 → 引擎修改 → 整体写回，一次调用对应一次写入。
// 读操作：同一 owner 的并发加载经 singleflight 合并，返回只读快照。
type ContinuityService interface {
	IngestSchedule(ctx context.Context, ownerID string, req *dto.IngestScheduleRequest) (*dto.ScheduleResponse, error)
	IngestScheduleICS(ctx context.Context, ownerID string, r io.Reader) (*dto.ImportScheduleResponse, error)
	ListSchedules(ctx context.Context, ownerID string) ([]dto.ScheduleResponse, error)
	RecordSubmission(ctx context.Context, ownerID string, req *dto.RecordSubmissionRequest) (*dto.RecordSubmissionResponse, error)
	DismissAlert(ctx context.Context, ownerID string, req *dto.DismissAlertRequest) (*dto.DismissAlertResponse, error)
	ListAlerts(ctx context.Context, ownerID string, req *dto.AlertListRequest) ([]dto.AlertResponse, error)
	GetStatusGrid(ctx context.Context, ownerID string, req *dto.CourseStatusRequest) (*dto.CourseStatusResponse, error)
	GetOverview(ctx context.Context, ownerID string) (*dto.OverviewResponse, error)
	GetUsage(ctx context.Context, ownerID string) (*dto.UsageResponse, error)
	ClearOwner(ctx context.Context, ownerID string) error
	// Snapshot 只读快照，调用方不得修改
	Snapshot(ctx context.Context, ownerID string) (*continuity.State, error)
}

type continuityService struct {
	repo     *repository.Repository
	locker   OwnerLocker
	group    singleflight.Group
	first    time.Weekday
	locale   string
	location *time.Location
	logger   *zap.Logger
}

// NewContinuityService 创建 ContinuityService 实例
func NewContinuityService(cfg *config.TrackerConfig, repo *repository.Repository, locker OwnerLocker, logger *zap.Logger) ContinuityService {
	first, err := cfg.Weekday()
	if err != nil {
		first = time.Sunday
	}
	return &continuityService{
		repo:     repo,
		locker:   locker,
		first:    first,
		locale:   cfg.Locale,
		location: cfg.Location(),
		logger:   logger,
	}
}

// ────────────────────── IngestSchedule ──────────────────────

func (s *continuityService) IngestSchedule(ctx context.Context, ownerID string, req *dto.IngestScheduleRequest) (*dto.ScheduleResponse, error) {
	weekdays := append([]int(nil), req.Weekdays...)
	if req.WeekdaysText != "" {
		weekdays = append(weekdays, ParseWeekdayText(req.WeekdaysText)...)
	}
	if !hasValidWeekday(weekdays) {
		return nil, ErrInvalidWeekday
	}

	key := continuity.NewKey(req.CourseCode, req.Section)
	var (
		entry   continuity.ScheduleEntry
		changed bool
	)
	err := s.mutate(ctx, ownerID, func(st *continuity.State) (bool, error) {
		entry, changed = st.SetSchedule(key, weekdays)
		return changed, nil
	})
	if err != nil {
		return nil, err
	}

	metrics.ScheduleIngested("api")
	s.logger.Info("课表已登记",
		zap.String("owner_id", ownerID),
		zap.String("course", key.String()),
		zap.Ints("weekdays", entry.Weekdays),
		zap.Bool("changed", changed),
	)

	resp := s.toScheduleResponse(entry)
	resp.Changed = changed
	return &resp, nil
}

// ────────────────────── IngestScheduleICS ──────────────────────

func (s *continuityService) IngestScheduleICS(ctx context.Context, ownerID string, r io.Reader) (*dto.ImportScheduleResponse, error) {
	parsed, err := ParseScheduleICS(io.LimitReader(r, icsMaxFileSize), s.first, s.location)
	if err != nil {
		return nil, err
	}

	resp := &dto.ImportScheduleResponse{Imported: len(parsed)}
	err = s.mutate(ctx, ownerID, func(st *continuity.State) (bool, error) {
		resp.Changed = 0
		resp.Schedules = resp.Schedules[:0]
		for _, p := range parsed {
			entry, changed := st.SetSchedule(continuity.NewKey(p.CourseCode, p.Section), p.Weekdays)
			item := s.toScheduleResponse(entry)
			item.Changed = changed
			if changed {
				resp.Changed++
			}
			resp.Schedules = append(resp.Schedules, item)
		}
		return resp.Changed > 0, nil
	})
	if err != nil {
		return nil, err
	}

	metrics.ScheduleIngested("ics")
	s.logger.Info("ICS 课表已导入",
		zap.String("owner_id", ownerID),
		zap.Int("imported", resp.Imported),
		zap.Int("changed", resp.Changed),
	)
	return resp, nil
}

// ────────────────────── ListSchedules ──────────────────────

func (s *continuityService) ListSchedules(ctx context.Context, ownerID string) ([]dto.ScheduleResponse, error) {
	st, err := s.Snapshot(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	entries := st.ScheduleEntries()
	result := make([]dto.ScheduleResponse, 0, len(entries))
	for _, e := range entries {
		result = append(result, s.toScheduleResponse(e))
	}
	return result, nil
}

// ────────────────────── RecordSubmission ──────────────────────

func (s *continuityService) RecordSubmission(ctx context.Context, ownerID string, req *dto.RecordSubmissionRequest) (*dto.RecordSubmissionResponse, error) {
	weekday := req.Weekday
	if weekday == 0 && req.DayName != "" {
		d, err := ParseDayName(req.DayName, s.first)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", continuity.ErrInvalidSubmission, err)
		}
		weekday = d
	}

	sub := continuity.Submission{
		CourseCode: req.CourseCode,
		Section:    req.Section,
		Week:       req.Week,
		Weekday:    weekday,
		Date:       req.Date,
	}
	if err := sub.Validate(); err != nil {
		return nil, err
	}

	var res continuity.RecordResult
	err := s.mutate(ctx, ownerID, func(st *continuity.State) (bool, error) {
		res = continuity.RecordSubmission(st, sub)
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	metrics.SubmissionRecorded(string(res.Outcome), len(res.NewAlerts))
	s.logger.Info("考勤提交已记录",
		zap.String("owner_id", ownerID),
		zap.String("course", sub.Key().String()),
		zap.Int("week", sub.Week),
		zap.Int("weekday", sub.Weekday),
		zap.String("outcome", string(res.Outcome)),
		zap.Int("new_alerts", len(res.NewAlerts)),
	)

	resp := &dto.RecordSubmissionResponse{
		Outcome:   string(res.Outcome),
		NewAlerts: s.toAlertResponses(res.NewAlerts),
	}
	if res.Previous != nil {
		resp.Previous = s.toSubmissionBrief(*res.Previous)
	}
	return resp, nil
}

// ────────────────────── DismissAlert ──────────────────────

func (s *continuityService) DismissAlert(ctx context.Context, ownerID string, req *dto.DismissAlertRequest) (*dto.DismissAlertResponse, error) {
	id := continuity.AlertID{
		CourseCode: req.CourseCode,
		Section:    req.Section,
		Week:       req.Week,
		Weekday:    req.Weekday,
	}

	var changed bool
	err := s.mutate(ctx, ownerID, func(st *continuity.State) (bool, error) {
		var err error
		changed, err = st.Dismiss(id)
		return changed, err
	})
	if err != nil {
		return nil, err
	}

	if changed {
		metrics.AlertDismissed()
		s.logger.Info("缺失考勤告警已忽略",
			zap.String("owner_id", ownerID),
			zap.String("course", continuity.NewKey(id.CourseCode, id.Section).String()),
			zap.Int("week", id.Week),
			zap.Int("weekday", id.Weekday),
		)
	}

	key := continuity.NewKey(id.CourseCode, id.Section)
	return &dto.DismissAlertResponse{
		Changed: changed,
		Alert: s.toAlertResponse(continuity.MissedAbsenceAlert{
			CourseCode: key.CourseCode,
			Section:    key.Section,
			Week:       id.Week,
			Weekday:    id.Weekday,
			Status:     continuity.AlertIgnored,
		}),
	}, nil
}

// ────────────────────── ListAlerts ──────────────────────

func (s *continuityService) ListAlerts(ctx context.Context, ownerID string, req *dto.AlertListRequest) ([]dto.AlertResponse, error) {
	st, err := s.Snapshot(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	var alerts []continuity.MissedAbsenceAlert
	if req.CourseCode != "" {
		alerts = st.AlertsFor(continuity.NewKey(req.CourseCode, req.Section))
	} else {
		alerts = st.AllAlerts()
	}

	filtered := alerts[:0:0]
	for _, a := range alerts {
		if req.Status == "" || string(a.Status) == req.Status {
			filtered = append(filtered, a)
		}
	}
	return s.toAlertResponses(filtered), nil
}

// ────────────────────── GetStatusGrid ──────────────────────

func (s *continuityService) GetStatusGrid(ctx context.Context, ownerID string, req *dto.CourseStatusRequest) (*dto.CourseStatusResponse, error) {
	st, err := s.Snapshot(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	key := continuity.NewKey(req.CourseCode, req.Section)
	return &dto.CourseStatusResponse{
		CourseCode: key.CourseCode,
		Section:    key.Section,
		Weeks:      s.toWeekStatusResponses(st.StatusFor(key)),
	}, nil
}

// ────────────────────── GetOverview ──────────────────────

func (s *continuityService) GetOverview(ctx context.Context, ownerID string) (*dto.OverviewResponse, error) {
	st, err := s.Snapshot(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	resp := &dto.OverviewResponse{Courses: make([]dto.CourseOverview, 0)}
	for _, key := range st.Keys() {
		item := dto.CourseOverview{
			CourseCode:   key.CourseCode,
			Section:      key.Section,
			Weekdays:     []int{},
			WeekdayNames: []string{},
			Weeks:        s.toWeekStatusResponses(st.StatusFor(key)),
		}
		if e, ok := st.Schedule(key); ok {
			item.Weekdays = e.Weekdays
			item.WeekdayNames = WeekdayNames(s.locale, s.first, e.Weekdays)
		}
		if last, ok := st.Last(key); ok {
			item.Last = s.toSubmissionBrief(last)
		}
		alerts := st.AlertsFor(key)
		item.PendingCount = len(st.PendingAlertsFor(key))
		item.IgnoredCount = len(alerts) - item.PendingCount
		resp.PendingTotal += item.PendingCount
		resp.Courses = append(resp.Courses, item)
	}
	return resp, nil
}

// ────────────────────── GetUsage / ClearOwner ──────────────────────

func (s *continuityService) GetUsage(ctx context.Context, ownerID string) (*dto.UsageResponse, error) {
	if ownerID == "" {
		return nil, ErrEmptyOwner
	}
	size, err := s.repo.Continuity.Size(ctx, ownerID)
	if err != nil {
		s.logger.Error("查询存储占用失败", zap.String("owner_id", ownerID), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrPersistenceFailure, err)
	}
	return &dto.UsageResponse{Bytes: size, Human: humanBytes(size)}, nil
}

func (s *continuityService) ClearOwner(ctx context.Context, ownerID string) error {
	if ownerID == "" {
		return ErrEmptyOwner
	}
	unlock, err := s.locker.Lock(ctx, ownerID)
	if err != nil {
		return err
	}
	defer unlock()

	start := time.Now()
	err = s.repo.Continuity.Delete(ctx, ownerID)
	metrics.ObservePersistence("delete", start, err)
	if err != nil {
		s.logger.Error("清空考勤数据失败", zap.String("owner_id", ownerID), zap.Error(err))
		return fmt.Errorf("%w: %w", ErrPersistenceFailure, err)
	}
	s.logger.Info("考勤数据已清空", zap.String("owner_id", ownerID))
	return nil
}

// ────────────────────── Snapshot ──────────────────────

func (s *continuityService) Snapshot(ctx context.Context, ownerID string) (*continuity.State, error) {
	if ownerID == "" {
		return nil, ErrEmptyOwner
	}
	// 共享加载不随单个调用方取消
	shared := context.WithoutCancel(ctx)
	ch := s.group.DoChan(ownerID, func() (interface{}, error) {
		_, st, err := s.load(shared, ownerID)
		return st, err
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*continuity.State), nil
	}
}

// ── 内部实现 ──

// mutate 串行执行 加载 → fn → 写回；fn 返回 changed=false 时不写回
func (s *continuityService) mutate(ctx context.Context, ownerID string, fn func(st *continuity.State) (bool, error)) error {
	if ownerID == "" {
		return ErrEmptyOwner
	}
	unlock, err := s.locker.Lock(ctx, ownerID)
	if err != nil {
		s.logger.Warn("获取 owner 写锁失败", zap.String("owner_id", ownerID), zap.Error(err))
		return err
	}
	defer unlock()

	doc, st, err := s.load(ctx, ownerID)
	if err != nil {
		return err
	}

	changed, err := fn(st)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	payload, err := st.Encode()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersistenceFailure, err)
	}
	doc.Payload = datatypes.JSON(payload)

	start := time.Now()
	err = s.repo.Continuity.Save(ctx, doc)
	metrics.ObservePersistence("save", start, err)
	if err != nil {
		s.logger.Error("保存考勤文档失败",
			zap.String("owner_id", ownerID),
			zap.Int("version", doc.Version),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %w", ErrPersistenceFailure, err)
	}
	return nil
}

func (s *continuityService) load(ctx context.Context, ownerID string) (*model.ContinuityDocument, *continuity.State, error) {
	start := time.Now()
	doc, err := s.repo.Continuity.Load(ctx, ownerID)
	metrics.ObservePersistence("load", start, err)
	if err != nil {
		s.logger.Error("加载考勤文档失败", zap.String("owner_id", ownerID), zap.Error(err))
		return nil, nil, fmt.Errorf("%w: %w", ErrPersistenceFailure, err)
	}

	st, err := continuity.Decode(doc.Payload)
	if err != nil {
		s.logger.Error("考勤文档内容损坏", zap.String("owner_id", ownerID), zap.Error(err))
		return nil, nil, fmt.Errorf("%w: %w", ErrPersistenceFailure, err)
	}
	return doc, st, nil
}

func hasValidWeekday(days []int) bool {
	for _, d := range days {
		if d >= 1 && d <= continuity.WeekdaysPerWeek {
			return true
		}
	}
	return false
}

func humanBytes(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.2f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.2f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}

// ── 转换 ──

func (s *continuityService) toScheduleResponse(e continuity.ScheduleEntry) dto.ScheduleResponse {
	weekdays := e.Weekdays
	if weekdays == nil {
		weekdays = []int{}
	}
	return dto.ScheduleResponse{
		CourseCode:   e.CourseCode,
		Section:      e.Section,
		Weekdays:     weekdays,
		WeekdayNames: WeekdayNames(s.locale, s.first, weekdays),
	}
}

func (s *continuityService) toSubmissionBrief(r continuity.SubmissionRecord) *dto.SubmissionBrief {
	return &dto.SubmissionBrief{
		Week:        r.Week,
		Weekday:     r.Weekday,
		WeekdayName: WeekdayName(s.locale, s.first, r.Weekday),
		Date:        r.Date,
	}
}

func (s *continuityService) toAlertResponse(a continuity.MissedAbsenceAlert) dto.AlertResponse {
	return dto.AlertResponse{
		CourseCode:  a.CourseCode,
		Section:     a.Section,
		Week:        a.Week,
		Weekday:     a.Weekday,
		WeekdayName: WeekdayName(s.locale, s.first, a.Weekday),
		Status:      string(a.Status),
	}
}

func (s *continuityService) toAlertResponses(alerts []continuity.MissedAbsenceAlert) []dto.AlertResponse {
	result := make([]dto.AlertResponse, 0, len(alerts))
	for _, a := range alerts {
		result = append(result, s.toAlertResponse(a))
	}
	return result
}

func (s *continuityService) toWeekStatusResponses(grid continuity.WeeklyGrid) []dto.WeekStatusResponse {
	result := make([]dto.WeekStatusResponse, 0, len(grid))
	for _, ws := range grid {
		result = append(result, dto.WeekStatusResponse{
			Week:         ws.Week,
			Status:       string(ws.Status),
			Reason:       string(ws.Reason),
			Explanation:  WeekExplanation(s.locale, ws),
			PendingCount: ws.PendingCount,
			IgnoredCount: ws.IgnoredCount,
		})
	}
	return result
}
