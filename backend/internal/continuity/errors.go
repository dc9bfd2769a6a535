package continuity

import "errors"

// ── 引擎业务错误 ──

var (
	ErrAlertNotFound     = errors.New("缺失考勤告警不存在")
	ErrInvalidSubmission = errors.New("考勤提交参数无效")
)
