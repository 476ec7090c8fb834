package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/docsync/backend/internal/domain/procurement"
	"github.com/docsync/backend/internal/infrastructure/monday"
	"github.com/docsync/backend/internal/infrastructure/polog"
	"github.com/docsync/backend/internal/infrastructure/scheduler"
	"github.com/docsync/backend/internal/infrastructure/telemetry"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ArgPath is the job argument holding a storage path
const ArgPath = "path"

// ErrMissingPath is returned by a PO log job without a path argument
var ErrMissingPath = errors.New("pipeline: po log job without path")

// POLogBoard is the part of the board the PO log import needs
type POLogBoard interface {
	FindItemByProjectAndPO(ctx context.Context, projectID, poNumber string) (*monday.Item, error)
	ListSubitems(ctx context.Context, parentID int64) ([]monday.Item, error)
	UpdateSubitemColumns(ctx context.Context, subitemID int64, cols monday.ColumnValues) error
}

// POLogImporter checks PO log rows ready for payment against board subitems
type POLogImporter struct {
	files  Storage
	board  POLogBoard
	logs   procurement.POLogRepository
	audit  procurement.AuditLogRepository
	logger *zap.Logger
}

// NewPOLogImporter creates an importer
func NewPOLogImporter(files Storage, board POLogBoard, logs procurement.POLogRepository, logger *zap.Logger) *POLogImporter {
	return &POLogImporter{
		files:  files,
		board:  board,
		logs:   logs,
		logger: logger.With(zap.String("component", "polog")),
	}
}

// SetAuditLog records finished imports in the audit log
func (i *POLogImporter) SetAuditLog(audit procurement.AuditLogRepository) {
	i.audit = audit
}

// Execute runs a po_log_import job
func (i *POLogImporter) Execute(ctx context.Context, job *scheduler.Job) error {
	p := job.Args[ArgPath]
	if p == "" {
		return ErrMissingPath
	}
	_, err := i.Import(ctx, p)
	return err
}

// Import downloads and applies one PO log. The returned run is stored even
// when the import fails.
func (i *POLogImporter) Import(ctx context.Context, filePath string) (run *procurement.POLog, err error) {
	ctx, span := telemetry.StartSpan(ctx, "polog.import", "path", filePath)
	defer func() {
		telemetry.RecordError(span, err)
		span.End()
	}()

	run = procurement.NewPOLog(polog.ProjectIDFromPath(filePath), filePath)
	if err := run.Start(); err != nil {
		return nil, err
	}
	if err := i.logs.Save(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to save po log run: %w", err)
	}

	matched, entries, err := i.apply(ctx, run.ProjectNumber, filePath)
	if err != nil {
		run.Fail(err)
	} else {
		run.Complete(entries, matched)
	}
	if saveErr := i.logs.Save(ctx, run); saveErr != nil {
		i.logger.Error("Failed to save po log run", zap.String("run_id", run.ID.String()), zap.Error(saveErr))
	}
	if i.audit != nil {
		detail := fmt.Sprintf("%d of %d entries matched", run.MatchedCount, run.EntryCount)
		if err != nil {
			detail = err.Error()
		}
		if auditErr := i.audit.Append(ctx, procurement.NewAuditLog("po_log", run.ID.String(), strings.ToLower(string(run.Status)), detail)); auditErr != nil {
			i.logger.Warn("Failed to append audit log", zap.Error(auditErr))
		}
	}
	if err != nil {
		return run, err
	}
	i.logger.Info("Imported PO log",
		zap.String("path", filePath),
		zap.String("project", run.ProjectNumber),
		zap.Int("entries", entries),
		zap.Int("matched", matched),
	)
	return run, nil
}

func (i *POLogImporter) apply(ctx context.Context, projectID, filePath string) (int, int, error) {
	raw, err := i.files.Download(ctx, filePath)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to download po log: %w", err)
	}
	entries, skipped, err := polog.Parse(path.Base(filePath), raw)
	if err != nil {
		return 0, 0, err
	}
	if skipped > 0 {
		i.logger.Warn("Skipped PO log rows with invalid amounts", zap.Int("count", skipped))
	}

	matched := 0
	for _, e := range entries {
		ok, err := i.applyEntry(ctx, projectID, e)
		if err != nil {
			i.logger.Error("Failed to apply PO log entry",
				zap.String("project", projectID),
				zap.String("po", e.PONumber),
				zap.Error(err),
			)
			continue
		}
		if ok {
			matched++
		}
	}
	return matched, len(entries), nil
}

// applyEntry sets the open subitems of one PO to RTP when their total matches
// the actualized amount, else to PO Log Mismatch. It reports whether the
// amounts matched.
func (i *POLogImporter) applyEntry(ctx context.Context, projectID string, e polog.Entry) (bool, error) {
	item, err := i.board.FindItemByProjectAndPO(ctx, projectID, e.PONumber)
	if errors.Is(err, monday.ErrNotFound) {
		i.logger.Warn("PO log entry without board item", zap.String("project", projectID), zap.String("po", e.PONumber))
		return false, nil
	}
	if err != nil {
		return false, err
	}
	subitems, err := i.board.ListSubitems(ctx, item.ID)
	if err != nil {
		return false, err
	}

	var open []monday.Item
	total := decimal.Zero
	for _, s := range subitems {
		status := strings.ToUpper(s.Text(monday.SubitemColumnStatus))
		if status == monday.SubitemStatusPaid || status == monday.SubitemStatusRTP {
			continue
		}
		open = append(open, s)
		total = total.Add(SubitemAmount(&s))
	}
	if len(open) == 0 {
		return false, nil
	}

	matched := procurement.AmountsMatch(total, e.Actual, procurement.POLogTolerance)
	label := monday.SubitemStatusPOLogMismatch
	if matched {
		label = monday.SubitemStatusRTP
	}
	for _, s := range open {
		cols := monday.ColumnValues{}.Status(monday.SubitemColumnStatus, label)
		if err := i.board.UpdateSubitemColumns(ctx, s.ID, cols); err != nil {
			return matched, fmt.Errorf("failed to update subitem %d: %w", s.ID, err)
		}
	}
	return matched, nil
}

// SubitemAmount is rate times quantity of a subitem. A missing rate counts as
// zero and a missing quantity as one.
func SubitemAmount(s *monday.Item) decimal.Decimal {
	rate := parseBoardNumber(s.Text(monday.SubitemColumnRate), decimal.Zero)
	qty := parseBoardNumber(s.Text(monday.SubitemColumnQuantity), decimal.NewFromInt(1))
	return rate.Mul(qty)
}

func parseBoardNumber(v string, def decimal.Decimal) decimal.Decimal {
	v = strings.NewReplacer("$", "", ",", "").Replace(strings.TrimSpace(v))
	if v == "" {
		return def
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return def
	}
	return d
}
