package service

import (
	"context"
	"errors"
	"testing"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// ── 测试辅助 ──

func setupTestExportService() (ExportService, ContinuityService, *mockContinuityRepo) {
	continuitySvc, mockRepo := setupTestContinuityService()
	svc := NewExportService(testTrackerConfig(), continuitySvc, zap.NewNop())
	return svc, continuitySvc, mockRepo
}

// ── ExportContinuity 测试 ──

func TestExportService_ExportContinuity_NoData(t *testing.T) {
	svc, _, _ := setupTestExportService()

	_, _, err := svc.ExportContinuity(context.Background(), testOwner)
	if !errors.Is(err, ErrExportNoData) {
		t.Errorf("期望 ErrExportNoData，实际: %v", err)
	}
}

func TestExportService_ExportContinuity_LoadFailure(t *testing.T) {
	svc, _, mockRepo := setupTestExportService()
	mockRepo.failLoad = true

	_, _, err := svc.ExportContinuity(context.Background(), testOwner)
	if !errors.Is(err, ErrPersistenceFailure) {
		t.Errorf("期望 ErrPersistenceFailure，实际: %v", err)
	}
}

func TestExportService_ExportContinuity_Success(t *testing.T) {
	svc, continuitySvc, _ := setupTestExportService()
	ingest(t, continuitySvc, 1, 3)
	submit(t, continuitySvc, 5, 1)
	submit(t, continuitySvc, 6, 3)

	buf, filename, err := svc.ExportContinuity(context.Background(), testOwner)
	if err != nil {
		t.Fatalf("ExportContinuity 应成功: %v", err)
	}
	if buf == nil || buf.Len() == 0 {
		t.Fatal("导出的 Excel buffer 不应为空")
	}
	if filename == "" {
		t.Error("文件名不应为空")
	}
	// Excel .xlsx 文件以 PK (0x504B) 开头
	header := buf.Bytes()[:2]
	if header[0] != 0x50 || header[1] != 0x4B {
		t.Error("输出内容不是有效的 xlsx 文件格式（应以 PK 开头）")
	}

	f, err := excelize.OpenReader(buf)
	if err != nil {
		t.Fatalf("重新打开 xlsx 失败: %v", err)
	}
	defer f.Close()

	if v, _ := f.GetCellValue(gridSheet, "A2"); v != "474 MIS" {
		t.Errorf("A2 期望 474 MIS，实际 %q", v)
	}
	// 第5周 → 列 H
	if v, _ := f.GetCellValue(gridSheet, "H2"); v != "待处理 (1)" {
		t.Errorf("第5周单元格期望 待处理 (1)，实际 %q", v)
	}
	if v, _ := f.GetCellValue(gridSheet, "D2"); v != "已完成" {
		t.Errorf("第1周单元格期望 已完成，实际 %q", v)
	}

	rows, err := f.GetRows(alertsSheet)
	if err != nil {
		t.Fatalf("读取缺失记录 Sheet 失败: %v", err)
	}
	if len(rows) != 3 {
		t.Errorf("期望 1 行表头 + 2 行告警，实际 %d 行", len(rows))
	}
}
