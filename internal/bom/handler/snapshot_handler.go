package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/erozee1/bomkit/internal/bom/diff"
	"github.com/erozee1/bomkit/internal/bom/ingest"
	"github.com/erozee1/bomkit/internal/bom/service"
	"github.com/erozee1/bomkit/internal/bom/store"
)

// SnapshotHandler 快照接口
type SnapshotHandler struct {
	svc *service.SnapshotService
}

// NewSnapshotHandler 创建快照接口
func NewSnapshotHandler(svc *service.SnapshotService) *SnapshotHandler {
	return &SnapshotHandler{svc: svc}
}

// IngestSnapshotInput 摄取请求
type IngestSnapshotInput struct {
	OrgID            string                `json:"org_id" binding:"required"`
	AssemblyID       string                `json:"assembly_id"`
	AssemblyName     string                `json:"assembly_name"`
	ParentSnapshotID *string               `json:"parent_snapshot_id"`
	Source           string                `json:"source"`
	Debug            bool                  `json:"debug"`
	Rows             []ingest.NormalizedRow `json:"rows"`
	// RawRows 原始键值行，提供时服务端归一化（与Rows二选一）
	RawRows []map[string]string `json:"raw_rows"`
}

// IngestSnapshot POST /snapshots
func (h *SnapshotHandler) IngestSnapshot(c *gin.Context) {
	var input IngestSnapshotInput
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, "Invalid request: "+err.Error())
		return
	}

	rows := input.Rows
	if len(rows) == 0 && len(input.RawRows) > 0 {
		rows = make([]ingest.NormalizedRow, 0, len(input.RawRows))
		for i, raw := range input.RawRows {
			rows = append(rows, ingest.RowFromMap(raw, i))
		}
	}

	result, err := h.svc.Ingest(c.Request.Context(), input.OrgID, rows, ingest.Options{
		AssemblyID:       input.AssemblyID,
		AssemblyName:     input.AssemblyName,
		ParentSnapshotID: input.ParentSnapshotID,
		Source:           input.Source,
		Debug:            input.Debug,
	})
	if err != nil {
		switch {
		case errors.Is(err, ingest.ErrNoRows),
			errors.Is(err, ingest.ErrAssemblyRefRequired),
			errors.Is(err, ingest.ErrAssemblyRefConflict):
			BadRequest(c, err.Error())
		case errors.Is(err, store.ErrNotFound):
			NotFound(c, "assembly not found")
		default:
			InternalError(c, err.Error())
		}
		return
	}

	Created(c, result)
}

// GetSnapshot GET /snapshots/:id
func (h *SnapshotHandler) GetSnapshot(c *gin.Context) {
	info, err := h.svc.GetSnapshot(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			NotFound(c, "snapshot not found")
			return
		}
		InternalError(c, err.Error())
		return
	}
	Success(c, info)
}

// GetSnapshotItems GET /snapshots/:id/items
func (h *SnapshotHandler) GetSnapshotItems(c *gin.Context) {
	items, err := h.svc.GetSnapshotItems(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			NotFound(c, "snapshot not found")
			return
		}
		InternalError(c, err.Error())
		return
	}
	Success(c, gin.H{"items": items, "count": len(items)})
}

// DiffInput 对比请求
type DiffInput struct {
	SnapshotAID string `json:"snapshot_a_id" binding:"required"`
	SnapshotBID string `json:"snapshot_b_id" binding:"required"`
}

// DiffSnapshots POST /diff
func (h *SnapshotHandler) DiffSnapshots(c *gin.Context) {
	var input DiffInput
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, "Invalid request: "+err.Error())
		return
	}

	result, err := h.svc.Diff(c.Request.Context(), input.SnapshotAID, input.SnapshotBID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			NotFound(c, "snapshot not found")
			return
		}
		InternalError(c, err.Error())
		return
	}
	Success(c, result)
}

// ClassifySnapshots POST /diff/classify
// 可选query参数severity/domain/event_type过滤事件
func (h *SnapshotHandler) ClassifySnapshots(c *gin.Context) {
	var input DiffInput
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, "Invalid request: "+err.Error())
		return
	}

	result, err := h.svc.Classify(c.Request.Context(), input.SnapshotAID, input.SnapshotBID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			NotFound(c, "snapshot not found")
			return
		}
		InternalError(c, err.Error())
		return
	}

	events := result.Events
	if sev := c.Query("severity"); sev != "" {
		events = filterEvents(events, func(e diff.ChangeEvent) bool {
			return string(e.Severity) == sev
		})
	}
	if domain := c.Query("domain"); domain != "" {
		events = filterEvents(events, func(e diff.ChangeEvent) bool {
			for _, d := range e.Domains {
				if string(d) == domain {
					return true
				}
			}
			return false
		})
	}
	if et := c.Query("event_type"); et != "" {
		events = filterEvents(events, func(e diff.ChangeEvent) bool {
			return string(e.EventType) == et
		})
	}

	Success(c, gin.H{
		"snapshot_a_id": result.SnapshotAID,
		"snapshot_b_id": result.SnapshotBID,
		"events":        events,
		"count":         len(events),
	})
}

func filterEvents(events []diff.ChangeEvent, keep func(diff.ChangeEvent) bool) []diff.ChangeEvent {
	out := []diff.ChangeEvent{}
	for _, e := range events {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}
