package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/alamriomar/moeen/backend/config"
	"github.com/alamriomar/moeen/backend/internal/continuity"
	"github.com/alamriomar/moeen/backend/internal/dto"
	"github.com/alamriomar/moeen/backend/internal/repository"
	pkgerrors "github.com/alamriomar/moeen/backend/pkg/errors"
)

// ── 测试辅助 ──

const testOwner = "lecturer-1"

func testTrackerConfig() *config.TrackerConfig {
	return &config.TrackerConfig{
		Storage:      "memory",
		FirstWeekday: "sunday",
		Timezone:     "UTC",
		Locale:       "ar",
		LockTTL:      time.Second,
		LockWait:     time.Second,
	}
}

func setupTestContinuityService() (ContinuityService, *mockContinuityRepo) {
	mockRepo := newMockContinuityRepo()
	repo := &repository.Repository{Continuity: mockRepo}
	svc := NewContinuityService(testTrackerConfig(), repo, NewLocalLocker(time.Second), zap.NewNop())
	return svc, mockRepo
}

func ingest(t *testing.T, svc ContinuityService, weekdays ...int) {
	t.Helper()
	_, err := svc.IngestSchedule(context.Background(), testOwner, &dto.IngestScheduleRequest{
		CourseCode: "474 MIS", Section: "128", Weekdays: weekdays,
	})
	if err != nil {
		t.Fatalf("IngestSchedule 应成功: %v", err)
	}
}

func submit(t *testing.T, svc ContinuityService, week, weekday int) *dto.RecordSubmissionResponse {
	t.Helper()
	resp, err := svc.RecordSubmission(context.Background(), testOwner, &dto.RecordSubmissionRequest{
		CourseCode: "474 MIS", Section: "128", Week: week, Weekday: weekday, Date: "2025-02-02",
	})
	if err != nil {
		t.Fatalf("RecordSubmission(%d,%d) 应成功: %v", week, weekday, err)
	}
	return resp
}

// ── IngestSchedule 测试 ──

func TestContinuityService_IngestSchedule_Union(t *testing.T) {
	svc, mockRepo := setupTestContinuityService()

	ingest(t, svc, 1, 3)
	resp, err := svc.IngestSchedule(context.Background(), testOwner, &dto.IngestScheduleRequest{
		CourseCode: " 474 MIS ", Section: "128", WeekdaysText: "٥",
	})
	if err != nil {
		t.Fatalf("IngestSchedule 应成功: %v", err)
	}
	if got := resp.Weekdays; len(got) != 3 || got[0] != 1 || got[1] != 3 || got[2] != 5 {
		t.Errorf("期望上课日 [1 3 5]，实际=%v", got)
	}
	if !resp.Changed {
		t.Error("并入新上课日应标记 changed")
	}
	if resp.WeekdayNames[0] != "الأحد" || resp.WeekdayNames[2] != "الخميس" {
		t.Errorf("上课日名称不正确: %v", resp.WeekdayNames)
	}
	if mockRepo.saveCount() != 2 {
		t.Errorf("期望写入 2 次，实际=%d", mockRepo.saveCount())
	}
}

func TestContinuityService_IngestSchedule_NoChangeSkipsSave(t *testing.T) {
	svc, mockRepo := setupTestContinuityService()

	ingest(t, svc, 1, 3)
	ingest(t, svc, 3)

	if mockRepo.saveCount() != 1 {
		t.Errorf("上课日未变化时不应写回，实际写入=%d", mockRepo.saveCount())
	}
}

func TestContinuityService_IngestSchedule_InvalidWeekdays(t *testing.T) {
	svc, mockRepo := setupTestContinuityService()

	_, err := svc.IngestSchedule(context.Background(), testOwner, &dto.IngestScheduleRequest{
		CourseCode: "474 MIS", Section: "128", WeekdaysText: "٧ ٠",
	})
	if !errors.Is(err, ErrInvalidWeekday) {
		t.Errorf("期望 ErrInvalidWeekday，实际: %v", err)
	}
	if mockRepo.saveCount() != 0 {
		t.Error("无效上课日不应写入")
	}
}

// ── RecordSubmission 测试 ──

func TestContinuityService_RecordSubmission_Scenarios(t *testing.T) {
	svc, _ := setupTestContinuityService()
	ingest(t, svc, 1, 3)

	if resp := submit(t, svc, 5, 1); resp.Outcome != "baseline" || len(resp.NewAlerts) != 0 {
		t.Fatalf("首次提交应为 baseline，实际=%+v", resp)
	}

	// 同周提交：上界不包含提交本身
	if resp := submit(t, svc, 5, 3); len(resp.NewAlerts) != 0 {
		t.Errorf("同周上课日提交不应产生告警，实际=%d", len(resp.NewAlerts))
	}

	resp := submit(t, svc, 6, 5)
	if resp.Outcome != "checked" {
		t.Errorf("期望 outcome=checked，实际=%s", resp.Outcome)
	}
	if len(resp.NewAlerts) != 2 {
		t.Fatalf("期望 2 条新告警，实际=%d", len(resp.NewAlerts))
	}
	if resp.NewAlerts[0].Week != 6 || resp.NewAlerts[0].Weekday != 1 || resp.NewAlerts[0].Status != "pending" {
		t.Errorf("告警内容不正确: %+v", resp.NewAlerts[0])
	}
	if resp.Previous == nil || resp.Previous.Week != 5 || resp.Previous.Weekday != 3 {
		t.Errorf("previous 应为第5周第3天，实际=%+v", resp.Previous)
	}
}

func TestContinuityService_RecordSubmission_NoSchedule(t *testing.T) {
	svc, mockRepo := setupTestContinuityService()

	resp := submit(t, svc, 9, 2)
	if resp.Outcome != "no_schedule" {
		t.Errorf("期望 outcome=no_schedule，实际=%s", resp.Outcome)
	}
	if !strings.Contains(mockRepo.payload(testOwner), `"week":9`) {
		t.Error("无课表时仍应记录最近一次提交")
	}
}

func TestContinuityService_RecordSubmission_DayName(t *testing.T) {
	svc, _ := setupTestContinuityService()
	ingest(t, svc, 1, 3)
	submit(t, svc, 2, 1)

	resp, err := svc.RecordSubmission(context.Background(), testOwner, &dto.RecordSubmissionRequest{
		CourseCode: "474 MIS", Section: "128", Week: 3, DayName: "الإثنين",
	})
	if err != nil {
		t.Fatalf("day_name 提交应成功: %v", err)
	}
	// 第2周周二(3) 与 第3周周日(1) 缺失
	if len(resp.NewAlerts) != 2 {
		t.Errorf("期望 2 条新告警，实际=%d", len(resp.NewAlerts))
	}
}

func TestContinuityService_RecordSubmission_Invalid(t *testing.T) {
	svc, mockRepo := setupTestContinuityService()

	cases := []*dto.RecordSubmissionRequest{
		{CourseCode: "474 MIS", Section: "128", Week: 18, Weekday: 1},
		{CourseCode: "474 MIS", Section: "128", Week: 1},
		{CourseCode: "474 MIS", Section: "128", Week: 1, DayName: "الجمعة"},
		{CourseCode: "", Section: "128", Week: 1, Weekday: 1},
	}
	for _, req := range cases {
		_, err := svc.RecordSubmission(context.Background(), testOwner, req)
		if !errors.Is(err, continuity.ErrInvalidSubmission) {
			t.Errorf("期望 ErrInvalidSubmission，请求=%+v 实际: %v", req, err)
		}
	}
	if mockRepo.saveCount() != 0 {
		t.Error("无效提交不应写入")
	}
}

func TestContinuityService_RecordSubmission_PersistenceFailure(t *testing.T) {
	svc, mockRepo := setupTestContinuityService()
	ingest(t, svc, 1, 3)
	submit(t, svc, 1, 1)
	before := mockRepo.payload(testOwner)

	mockRepo.failSave = true
	_, err := svc.RecordSubmission(context.Background(), testOwner, &dto.RecordSubmissionRequest{
		CourseCode: "474 MIS", Section: "128", Week: 4, Weekday: 1,
	})
	if !errors.Is(err, ErrPersistenceFailure) {
		t.Errorf("期望 ErrPersistenceFailure，实际: %v", err)
	}
	if mockRepo.payload(testOwner) != before {
		t.Error("写入失败时文档不应部分提交")
	}

	mockRepo.failSave = false
	mockRepo.failLoad = true
	_, err = svc.RecordSubmission(context.Background(), testOwner, &dto.RecordSubmissionRequest{
		CourseCode: "474 MIS", Section: "128", Week: 4, Weekday: 1,
	})
	if !errors.Is(err, ErrPersistenceFailure) {
		t.Errorf("加载失败期望 ErrPersistenceFailure，实际: %v", err)
	}
}

func TestContinuityService_RecordSubmission_OptimisticLock(t *testing.T) {
	svc, mockRepo := setupTestContinuityService()
	ingest(t, svc, 1)

	mockRepo.conflicts = 1
	_, err := svc.RecordSubmission(context.Background(), testOwner, &dto.RecordSubmissionRequest{
		CourseCode: "474 MIS", Section: "128", Week: 1, Weekday: 1,
	})
	if !errors.Is(err, pkgerrors.ErrOptimisticLock) {
		t.Errorf("期望 ErrOptimisticLock，实际: %v", err)
	}
}

func TestContinuityService_RecordSubmission_ConcurrentSerialized(t *testing.T) {
	svc, mockRepo := setupTestContinuityService()
	ingest(t, svc, 1, 2, 3, 4, 5)

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(week int) {
			defer wg.Done()
			_, err := svc.RecordSubmission(context.Background(), testOwner, &dto.RecordSubmissionRequest{
				CourseCode: "474 MIS", Section: "128", Week: week, Weekday: 1,
			})
			errs <- err
		}(i + 1)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("串行化后不应出现冲突: %v", err)
		}
	}
	if mockRepo.saveCount() != 11 {
		t.Errorf("期望 11 次写入（1 次课表 + 10 次提交），实际=%d", mockRepo.saveCount())
	}
}

// ── DismissAlert 测试 ──

func TestContinuityService_DismissAlert(t *testing.T) {
	svc, mockRepo := setupTestContinuityService()
	ingest(t, svc, 1, 3)
	submit(t, svc, 5, 1)
	submit(t, svc, 6, 3)

	req := &dto.DismissAlertRequest{CourseCode: "474 MIS", Section: "128", Week: 5, Weekday: 3}
	resp, err := svc.DismissAlert(context.Background(), testOwner, req)
	if err != nil {
		t.Fatalf("DismissAlert 应成功: %v", err)
	}
	if !resp.Changed || resp.Alert.Status != "ignored" {
		t.Errorf("期望 changed=true status=ignored，实际=%+v", resp)
	}
	saves := mockRepo.saveCount()

	resp, err = svc.DismissAlert(context.Background(), testOwner, req)
	if err != nil {
		t.Fatalf("重复忽略应成功: %v", err)
	}
	if resp.Changed {
		t.Error("重复忽略应为空操作")
	}
	if mockRepo.saveCount() != saves {
		t.Error("空操作不应写回")
	}

	pending, _ := svc.ListAlerts(context.Background(), testOwner, &dto.AlertListRequest{Status: "pending"})
	if len(pending) != 1 || pending[0].Week != 6 {
		t.Errorf("期望剩余 1 条第6周 pending 告警，实际=%+v", pending)
	}
}

func TestContinuityService_DismissAlert_NotFound(t *testing.T) {
	svc, mockRepo := setupTestContinuityService()
	ingest(t, svc, 1)

	_, err := svc.DismissAlert(context.Background(), testOwner, &dto.DismissAlertRequest{
		CourseCode: "474 MIS", Section: "128", Week: 9, Weekday: 1,
	})
	if !errors.Is(err, continuity.ErrAlertNotFound) {
		t.Errorf("期望 ErrAlertNotFound，实际: %v", err)
	}
	if mockRepo.saveCount() != 1 {
		t.Error("告警不存在时不应写回")
	}
}

// ── 查询测试 ──

func TestContinuityService_GetStatusGrid(t *testing.T) {
	svc, _ := setupTestContinuityService()
	ingest(t, svc, 1, 3)
	submit(t, svc, 5, 1)
	submit(t, svc, 6, 3)
	_, _ = svc.DismissAlert(context.Background(), testOwner, &dto.DismissAlertRequest{
		CourseCode: "474 MIS", Section: "128", Week: 6, Weekday: 1,
	})

	grid, err := svc.GetStatusGrid(context.Background(), testOwner, &dto.CourseStatusRequest{CourseCode: "474 MIS", Section: "128"})
	if err != nil {
		t.Fatalf("GetStatusGrid 应成功: %v", err)
	}
	if len(grid.Weeks) != continuity.TermWeeks {
		t.Fatalf("期望 17 周，实际=%d", len(grid.Weeks))
	}
	want := map[int]string{1: "green", 5: "red", 6: "yellow", 7: "gray", 17: "gray"}
	for week, status := range want {
		if grid.Weeks[week-1].Status != status {
			t.Errorf("第%d周期望 %s，实际=%s", week, status, grid.Weeks[week-1].Status)
		}
	}
}

func TestContinuityService_GetStatusGrid_UnknownCourseAllGray(t *testing.T) {
	svc, _ := setupTestContinuityService()

	grid, err := svc.GetStatusGrid(context.Background(), testOwner, &dto.CourseStatusRequest{CourseCode: "X", Section: "1"})
	if err != nil {
		t.Fatalf("GetStatusGrid 应成功: %v", err)
	}
	for _, w := range grid.Weeks {
		if w.Status != "gray" {
			t.Fatalf("无课表时应全部为 gray，第%d周=%s", w.Week, w.Status)
		}
	}
}

func TestContinuityService_GetOverview(t *testing.T) {
	svc, _ := setupTestContinuityService()
	ingest(t, svc, 1, 3)
	submit(t, svc, 2, 1)
	submit(t, svc, 4, 1)
	_, _ = svc.RecordSubmission(context.Background(), testOwner, &dto.RecordSubmissionRequest{
		CourseCode: "101 CS", Section: "7", Week: 1, Weekday: 2,
	})

	ov, err := svc.GetOverview(context.Background(), testOwner)
	if err != nil {
		t.Fatalf("GetOverview 应成功: %v", err)
	}
	if len(ov.Courses) != 2 {
		t.Fatalf("期望 2 个课程，实际=%d", len(ov.Courses))
	}
	if ov.Courses[0].CourseCode != "101 CS" || len(ov.Courses[0].Weekdays) != 0 {
		t.Errorf("无课表课程应排在前面且上课日为空: %+v", ov.Courses[0])
	}
	mis := ov.Courses[1]
	// 第2周周二、第3周周日/周二 缺失
	if mis.PendingCount != 3 || ov.PendingTotal != 3 {
		t.Errorf("期望 pending=3，实际=%d total=%d", mis.PendingCount, ov.PendingTotal)
	}
	if mis.Last == nil || mis.Last.Week != 4 || mis.Last.WeekdayName != "الأحد" {
		t.Errorf("最近一次提交不正确: %+v", mis.Last)
	}

	// 忽略一条后，待处理与已忽略计数同步变化
	if _, err := svc.DismissAlert(context.Background(), testOwner, &dto.DismissAlertRequest{
		CourseCode: "474 MIS", Section: "128", Week: 3, Weekday: 1,
	}); err != nil {
		t.Fatalf("DismissAlert 应成功: %v", err)
	}
	ov, _ = svc.GetOverview(context.Background(), testOwner)
	if got := ov.Courses[1]; got.PendingCount != 2 || got.IgnoredCount != 1 || ov.PendingTotal != 2 {
		t.Errorf("期望 pending=2 ignored=1，实际=%d/%d total=%d", got.PendingCount, got.IgnoredCount, ov.PendingTotal)
	}
}

func TestContinuityService_StatusGridFollowsLocale(t *testing.T) {
	cfg := testTrackerConfig()
	cfg.Locale = "en"
	repo := &repository.Repository{Continuity: newMockContinuityRepo()}
	svc := NewContinuityService(cfg, repo, NewLocalLocker(time.Second), zap.NewNop())
	ingest(t, svc, 1, 3)
	submit(t, svc, 5, 1)
	submit(t, svc, 6, 3)

	grid, err := svc.GetStatusGrid(context.Background(), testOwner, &dto.CourseStatusRequest{CourseCode: "474 MIS", Section: "128"})
	if err != nil {
		t.Fatalf("GetStatusGrid 应成功: %v", err)
	}
	week5 := grid.Weeks[4]
	if week5.Reason != "pending" || week5.Explanation != "Week 5: 1 lecture(s) missing attendance, pending review" {
		t.Errorf("第 5 周说明应为英文: %+v", week5)
	}
	if grid.Weeks[16].Explanation != "Week 17: not yet due" {
		t.Errorf("第 17 周说明应为英文: %q", grid.Weeks[16].Explanation)
	}
}

// ── Usage / Clear 测试 ──

func TestContinuityService_UsageAndClear(t *testing.T) {
	svc, mockRepo := setupTestContinuityService()
	ingest(t, svc, 1)

	usage, err := svc.GetUsage(context.Background(), testOwner)
	if err != nil {
		t.Fatalf("GetUsage 应成功: %v", err)
	}
	if usage.Bytes <= 0 || !strings.HasSuffix(usage.Human, "B") {
		t.Errorf("存储占用不正确: %+v", usage)
	}

	if err := svc.ClearOwner(context.Background(), testOwner); err != nil {
		t.Fatalf("ClearOwner 应成功: %v", err)
	}
	usage, _ = svc.GetUsage(context.Background(), testOwner)
	if usage.Bytes != 0 {
		t.Errorf("清空后占用应为 0，实际=%d", usage.Bytes)
	}

	mockRepo.failSize = true
	if _, err := svc.GetUsage(context.Background(), testOwner); !errors.Is(err, ErrPersistenceFailure) {
		t.Errorf("期望 ErrPersistenceFailure，实际: %v", err)
	}
}

func TestContinuityService_EmptyOwner(t *testing.T) {
	svc, _ := setupTestContinuityService()

	if _, err := svc.Snapshot(context.Background(), ""); !errors.Is(err, ErrEmptyOwner) {
		t.Errorf("期望 ErrEmptyOwner，实际: %v", err)
	}
	if err := svc.ClearOwner(context.Background(), ""); !errors.Is(err, ErrEmptyOwner) {
		t.Errorf("期望 ErrEmptyOwner，实际: %v", err)
	}
}

// ── ICS 导入测试 ──

func TestContinuityService_IngestScheduleICS(t *testing.T) {
	svc, _ := setupTestContinuityService()
	ingest(t, svc, 5)

	resp, err := svc.IngestScheduleICS(context.Background(), testOwner, strings.NewReader(sampleICS))
	if err != nil {
		t.Fatalf("IngestScheduleICS 应成功: %v", err)
	}
	if resp.Imported != 2 || resp.Changed != 2 {
		t.Errorf("期望 imported=2 changed=2，实际=%+v", resp)
	}

	schedules, _ := svc.ListSchedules(context.Background(), testOwner)
	if len(schedules) != 2 {
		t.Fatalf("期望 2 个课表，实际=%d", len(schedules))
	}
	mis := schedules[1]
	if mis.CourseCode != "474 MIS" || len(mis.Weekdays) != 3 {
		t.Errorf("ICS 上课日应与已有上课日合并为 [1 3 5]，实际=%+v", mis)
	}
}
