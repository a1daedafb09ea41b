package service

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/garyjia/approval-engine/internal/domain/entity"
	"github.com/garyjia/approval-engine/internal/domain/workflow"
)

const (
	requestsSheet = "Requests"
	auditSheet    = "Audit"
)

var (
	requestColumns = []string{"ID", "Type", "Stage", "Stage Label", "Submitted By", "Group", "Submitted At", "Updated At", "Document", "Payload"}
	auditColumns   = []string{"Request ID", "Stage", "Result Stage", "Actor", "Action", "Notes", "Timestamp"}
)

// ExportService writes the requests an actor can see, with their audit
// history, to an XLSX workbook
type ExportService struct {
	workflow WorkflowService
	registry *workflow.Registry
	logger   Logger
}

// NewExportService creates a new ExportService
func NewExportService(wf WorkflowService, registry *workflow.Registry, logger Logger) *ExportService {
	if logger == nil {
		logger = nopLogger{}
	}
	return &ExportService{workflow: wf, registry: registry, logger: logger}
}

// Export writes a workbook with a Requests sheet and an Audit sheet.
// Only records visible to the actor are included.
func (s *ExportService) Export(ctx context.Context, actor entity.Actor, requestType workflow.RequestType, filter ListFilter, w io.Writer) error {
	def, err := s.registry.Get(requestType)
	if err != nil {
		return denied(err.Error())
	}

	recs, err := s.workflow.ListVisible(ctx, actor, requestType, filter)
	if err != nil {
		return err
	}

	file := excelize.NewFile()
	defer file.Close()

	if err := file.SetSheetName("Sheet1", requestsSheet); err != nil {
		return fmt.Errorf("failed to rename sheet: %w", err)
	}
	if _, err := file.NewSheet(auditSheet); err != nil {
		return fmt.Errorf("failed to create audit sheet: %w", err)
	}

	if err := writeRow(file, requestsSheet, 1, toCells(requestColumns)); err != nil {
		return err
	}
	if err := writeRow(file, auditSheet, 1, toCells(auditColumns)); err != nil {
		return err
	}

	auditRow := 2
	for i, rec := range recs {
		row := []interface{}{
			rec.ID,
			string(rec.RequestType),
			string(rec.CurrentStage),
			def.Label(rec.CurrentStage),
			rec.SubmittedBy,
			rec.GroupKey,
			formatTime(rec.SubmittedAt),
			formatTime(rec.UpdatedAt),
			rec.DocumentRef,
			string(rec.Payload),
		}
		if err := writeRow(file, requestsSheet, i+2, row); err != nil {
			return err
		}

		entries, err := s.workflow.History(ctx, rec.ID, actor)
		if err != nil {
			return err
		}
		for _, e := range entries {
			row := []interface{}{
				e.RequestID,
				string(e.StageID),
				string(e.ResultStage),
				e.ActorID,
				string(e.Action),
				e.Notes,
				formatTime(e.Timestamp),
			}
			if err := writeRow(file, auditSheet, auditRow, row); err != nil {
				return err
			}
			auditRow++
		}
	}

	if _, err := file.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}

	s.logger.Info("Exported requests",
		"request_type", requestType,
		"actor_id", actor.ID,
		"request_count", len(recs),
		"audit_count", auditRow-2)
	return nil
}

func writeRow(file *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("failed to resolve cell for row %d: %w", row, err)
	}
	if err := file.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("failed to write %s row %d: %w", sheet, row, err)
	}
	return nil
}

func toCells(headers []string) []interface{} {
	out := make([]interface{}, len(headers))
	for i, h := range headers {
		out[i] = h
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
