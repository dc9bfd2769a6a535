package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/alamriomar/moeen/backend/internal/continuity"
	"github.com/alamriomar/moeen/backend/internal/dto"
	"github.com/alamriomar/moeen/backend/internal/service"
	pkgerrors "github.com/alamriomar/moeen/backend/pkg/errors"
	"github.com/alamriomar/moeen/backend/pkg/response"
)

// ContinuityHandler 考勤连续性模块 HTTP 处理器
type ContinuityHandler struct {
	svc service.ContinuityService
}

// NewContinuityHandler 创建 ContinuityHandler
func NewContinuityHandler(svc service.ContinuityService) *ContinuityHandler {
	return &ContinuityHandler{svc: svc}
}

// IngestSchedule 登记课程上课日
// PUT /api/v1/continuity/schedules
func (h *ContinuityHandler) IngestSchedule(c *gin.Context) {
	var req dto.IngestScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}
	if len(req.Weekdays) == 0 && req.WeekdaysText == "" {
		response.BadRequest(c, 10001, "weekdays 与 weekdays_text 至少提供一个")
		return
	}

	ownerID, ok := MustGetOwnerID(c)
	if !ok {
		return
	}

	resp, err := h.svc.IngestSchedule(c.Request.Context(), ownerID, &req)
	if err != nil {
		handleContinuityError(c, err)
		return
	}
	response.OK(c, resp)
}

// ImportSchedules 导入 ICS 课表
// POST /api/v1/continuity/schedules/import
//
// 支持两种方式：
//   - 文件上传: multipart/form-data, field="file"
//   - URL 导入: application/json, body={"url": "..."}
func (h *ContinuityHandler) ImportSchedules(c *gin.Context) {
	ownerID, ok := MustGetOwnerID(c)
	if !ok {
		return
	}

	// 尝试文件上传方式
	file, _, err := c.Request.FormFile("file")
	if err == nil {
		defer file.Close()
		resp, err := h.svc.IngestScheduleICS(c.Request.Context(), ownerID, file)
		if err != nil {
			handleContinuityError(c, err)
			return
		}
		response.OK(c, resp)
		return
	}

	// 尝试 URL 方式
	var req dto.ImportScheduleURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 17000, "请上传 ICS 文件或提供 ICS URL")
		return
	}

	body, err := service.FetchICSContent(c.Request.Context(), req.URL)
	if err != nil {
		response.ErrorWithDetails(c, http.StatusBadRequest, 17006, "ICS URL 获取失败", err.Error())
		return
	}
	defer body.Close()

	resp, err := h.svc.IngestScheduleICS(c.Request.Context(), ownerID, body)
	if err != nil {
		handleContinuityError(c, err)
		return
	}
	response.OK(c, resp)
}

// ListSchedules 获取全部课表
// GET /api/v1/continuity/schedules
func (h *ContinuityHandler) ListSchedules(c *gin.Context) {
	ownerID, ok := MustGetOwnerID(c)
	if !ok {
		return
	}

	list, err := h.svc.ListSchedules(c.Request.Context(), ownerID)
	if err != nil {
		handleContinuityError(c, err)
		return
	}
	response.OK(c, gin.H{"list": list})
}

// RecordSubmission 上报考勤提交并检测缺失
// POST /api/v1/continuity/submissions
func (h *ContinuityHandler) RecordSubmission(c *gin.Context) {
	var req dto.RecordSubmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}
	if req.Weekday == 0 && req.DayName == "" {
		response.BadRequest(c, 10001, "weekday 与 day_name 至少提供一个")
		return
	}

	ownerID, ok := MustGetOwnerID(c)
	if !ok {
		return
	}

	resp, err := h.svc.RecordSubmission(c.Request.Context(), ownerID, &req)
	if err != nil {
		handleContinuityError(c, err)
		return
	}
	response.Created(c, resp)
}

// ListAlerts 获取缺失考勤告警
// GET /api/v1/continuity/alerts?course_code=&section=&status=
func (h *ContinuityHandler) ListAlerts(c *gin.Context) {
	var req dto.AlertListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	ownerID, ok := MustGetOwnerID(c)
	if !ok {
		return
	}

	list, err := h.svc.ListAlerts(c.Request.Context(), ownerID, &req)
	if err != nil {
		handleContinuityError(c, err)
		return
	}
	response.OK(c, gin.H{"list": list})
}

// DismissAlert 忽略缺失考勤告警
// POST /api/v1/continuity/alerts/dismiss
func (h *ContinuityHandler) DismissAlert(c *gin.Context) {
	var req dto.DismissAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	ownerID, ok := MustGetOwnerID(c)
	if !ok {
		return
	}

	resp, err := h.svc.DismissAlert(c.Request.Context(), ownerID, &req)
	if err != nil {
		handleContinuityError(c, err)
		return
	}
	response.OK(c, resp)
}

// GetCourseStatus 获取课程-班级 17 周状态
// GET /api/v1/continuity/courses/status?course_code=&section=
func (h *ContinuityHandler) GetCourseStatus(c *gin.Context) {
	var req dto.CourseStatusRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	ownerID, ok := MustGetOwnerID(c)
	if !ok {
		return
	}

	resp, err := h.svc.GetStatusGrid(c.Request.Context(), ownerID, &req)
	if err != nil {
		handleContinuityError(c, err)
		return
	}
	response.OK(c, resp)
}

// GetOverview 首页概览
// GET /api/v1/continuity/overview
func (h *ContinuityHandler) GetOverview(c *gin.Context) {
	ownerID, ok := MustGetOwnerID(c)
	if !ok {
		return
	}

	resp, err := h.svc.GetOverview(c.Request.Context(), ownerID)
	if err != nil {
		handleContinuityError(c, err)
		return
	}
	response.OK(c, resp)
}

// GetUsage 存储占用
// GET /api/v1/continuity/usage
func (h *ContinuityHandler) GetUsage(c *gin.Context) {
	ownerID, ok := MustGetOwnerID(c)
	if !ok {
		return
	}

	resp, err := h.svc.GetUsage(c.Request.Context(), ownerID)
	if err != nil {
		handleContinuityError(c, err)
		return
	}
	response.OK(c, resp)
}

// ClearAll 清空当前教师的全部考勤连续性数据
// DELETE /api/v1/continuity
func (h *ContinuityHandler) ClearAll(c *gin.Context) {
	ownerID, ok := MustGetOwnerID(c)
	if !ok {
		return
	}

	if err := h.svc.ClearOwner(c.Request.Context(), ownerID); err != nil {
		handleContinuityError(c, err)
		return
	}
	response.OK(c, nil)
}

// ── 错误映射 ──

func handleContinuityError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidWeekday):
		response.BadRequest(c, 17001, "无法识别的上课日")
	case errors.Is(err, continuity.ErrInvalidSubmission):
		response.ErrorWithDetails(c, http.StatusBadRequest, 17002, "考勤提交参数无效", err.Error())
	case errors.Is(err, continuity.ErrAlertNotFound):
		response.NotFound(c, 17003, "缺失考勤告警不存在")
	case errors.Is(err, service.ErrICSNoCourses):
		response.BadRequest(c, 17004, "ICS 文件中无可识别的课程")
	case errors.Is(err, service.ErrICSParseFailed):
		response.ErrorWithDetails(c, http.StatusBadRequest, 17005, "ICS 文件解析失败", err.Error())
	case errors.Is(err, pkgerrors.ErrOptimisticLock):
		response.Conflict(c, 17010, "数据已被其他操作修改，请刷新后重试")
	case errors.Is(err, service.ErrOwnerBusy):
		response.Conflict(c, 17011, "数据正在被其他请求修改，请稍后重试")
	case errors.Is(err, service.ErrEmptyOwner):
		response.Unauthorized(c, 10002, "未认证")
	case errors.Is(err, service.ErrPersistenceFailure):
		response.Error(c, http.StatusInternalServerError, 17009, "考勤数据读写失败，本次操作未生效")
	default:
		response.InternalError(c)
	}
}
