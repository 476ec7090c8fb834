// Package router turns storage change notifications into recorded file events.
package router

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/docsync/backend/internal/domain/fileevent"
	"github.com/docsync/backend/internal/domain/shared"
	"github.com/docsync/backend/internal/infrastructure/dropbox"
	"github.com/docsync/backend/internal/infrastructure/polog"
	"github.com/docsync/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultDedupTTL = 5 * time.Minute

// ChangeFeed is the part of the storage client the router reads from
type ChangeFeed interface {
	ListFolder(ctx context.Context, path string, recursive bool) (*dropbox.ListFolderResult, error)
	ListFolderContinue(ctx context.Context, cursor string) (*dropbox.ListFolderResult, error)
	MemberID() string
}

// CursorStore persists the change-feed cursor per team member
type CursorStore interface {
	Load(ctx context.Context, memberID string) (string, bool, error)
	Save(ctx context.Context, memberID, cursor string) error
}

// EventRecorder stores file events
type EventRecorder interface {
	Add(ctx context.Context, event *fileevent.FileEvent) (uuid.UUID, bool, error)
}

// POLogQueue receives PO log exports seen in the change feed
type POLogQueue interface {
	EnqueuePOLog(ctx context.Context, path string) error
}

// Router reconciles change-feed entries into file events
type Router struct {
	feed     ChangeFeed
	cursors  CursorStore
	events   EventRecorder
	dedup    shared.IdempotencyStore
	pologs   POLogQueue
	dedupTTL time.Duration
	metrics  *telemetry.PipelineMetrics
	logger   *zap.Logger

	// syncs share one cursor and must not interleave
	mu sync.Mutex
}

// NewRouter creates a router
func NewRouter(feed ChangeFeed, cursors CursorStore, events EventRecorder, logger *zap.Logger) *Router {
	return &Router{
		feed:     feed,
		cursors:  cursors,
		events:   events,
		dedupTTL: defaultDedupTTL,
		logger:   logger.With(zap.String("component", "router")),
	}
}

// SetDeduplication enables webhook de-duplication by body checksum
func (r *Router) SetDeduplication(store shared.IdempotencyStore, ttl time.Duration) {
	r.dedup = store
	if ttl > 0 {
		r.dedupTTL = ttl
	}
}

// SetPOLogQueue routes PO log exports to an importer instead of ignoring them
func (r *Router) SetPOLogQueue(q POLogQueue) {
	r.pologs = q
}

// SetMetrics enables pipeline metrics
func (r *Router) SetMetrics(m *telemetry.PipelineMetrics) {
	r.metrics = m
}

// Accept reports whether a notification body has not been seen within the
// de-duplication window. Store errors let the notification through.
func (r *Router) Accept(ctx context.Context, body []byte) bool {
	if r.dedup == nil {
		r.metrics.RecordNotification(ctx, false)
		return true
	}
	key := fmt.Sprintf("dropbox:webhook:%016x", xxhash.Sum64(body))
	fresh, err := r.dedup.MarkProcessed(ctx, key, r.dedupTTL)
	if err != nil {
		r.logger.Warn("Webhook de-duplication unavailable", zap.Error(err))
		fresh = true
	}
	r.metrics.RecordNotification(ctx, !fresh)
	return fresh
}

// Sync reads all changes since the stored cursor and records them. On first
// run the cursor is initialised and nothing is recorded.
func (r *Router) Sync(ctx context.Context) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "router.sync")
	defer func() {
		telemetry.RecordError(span, err)
		span.End()
	}()

	r.mu.Lock()
	defer r.mu.Unlock()

	member := r.feed.MemberID()
	cursor, ok, err := r.cursors.Load(ctx, member)
	if err != nil {
		return fmt.Errorf("failed to load cursor: %w", err)
	}
	if !ok {
		return r.initCursor(ctx, member)
	}

	var entries []dropbox.Metadata
	defer func() {
		if saveErr := r.cursors.Save(ctx, member, cursor); saveErr != nil {
			r.logger.Error("Failed to save cursor", zap.Error(saveErr))
			if err == nil {
				err = fmt.Errorf("failed to save cursor: %w", saveErr)
			}
		}
	}()

	for {
		res, err := r.feed.ListFolderContinue(ctx, cursor)
		if err != nil {
			return fmt.Errorf("failed to list changes: %w", err)
		}
		entries = append(entries, res.Entries...)
		if res.Cursor != "" {
			cursor = res.Cursor
		}
		if !res.HasMore {
			break
		}
	}

	telemetry.SetAttributes(span, "entries", len(entries))
	r.route(ctx, entries)
	return nil
}

// initCursor lists the whole namespace once so the saved cursor points at
// the head of the feed
func (r *Router) initCursor(ctx context.Context, member string) error {
	res, err := r.feed.ListFolder(ctx, "", true)
	if err != nil {
		return fmt.Errorf("failed to initialise cursor: %w", err)
	}
	for res.HasMore {
		next, err := r.feed.ListFolderContinue(ctx, res.Cursor)
		if err != nil {
			return fmt.Errorf("failed to initialise cursor: %w", err)
		}
		res = next
	}
	if err := r.cursors.Save(ctx, member, res.Cursor); err != nil {
		return fmt.Errorf("failed to save cursor: %w", err)
	}
	r.logger.Info("Initialised change cursor", zap.String("member", member))
	return nil
}

// match is a deletion paired with an addition at the same timestamp
type match struct {
	deleted dropbox.Metadata
	added   dropbox.Metadata
	moved   bool
}

func (r *Router) route(ctx context.Context, entries []dropbox.Metadata) {
	var additions, deletions []dropbox.Metadata
	for _, e := range entries {
		switch {
		case e.IsFile(), e.IsFolder():
			additions = append(additions, e)
		case e.IsDeleted():
			deletions = append(deletions, e)
		default:
			r.logger.Warn("Skipping unknown change entry", zap.String("tag", e.Tag), zap.String("path", e.Path()))
		}
	}

	matches, addedLeft, deletedLeft := pair(additions, deletions)
	for _, m := range matches {
		r.recordMatch(ctx, m)
	}
	for _, e := range addedLeft {
		if e.IsFile() {
			r.recordFile(ctx, e)
		} else {
			r.recordFolder(ctx, e)
		}
	}
	for _, e := range deletedLeft {
		r.logger.Info("Deletion recorded without event", zap.String("path", e.Path()))
	}
}

// pair matches deletions with additions that share their timestamp. Same
// parent and different name is a rename; same name and different parent is
// a move. Each side is used at most once.
func pair(additions, deletions []dropbox.Metadata) ([]match, []dropbox.Metadata, []dropbox.Metadata) {
	used := make([]bool, len(additions))
	var (
		matches     []match
		deletedLeft []dropbox.Metadata
	)
	for _, d := range deletions {
		dt, ok := d.Modified()
		if !ok {
			deletedLeft = append(deletedLeft, d)
			continue
		}
		found := false
		for i, a := range additions {
			if used[i] {
				continue
			}
			at, ok := a.Modified()
			if !ok || !at.Equal(dt) {
				continue
			}
			sameParent := strings.EqualFold(fileevent.ParentPath(d.Path()), fileevent.ParentPath(a.Path()))
			sameName := strings.EqualFold(d.Name, a.Name)
			if sameParent == sameName {
				continue
			}
			used[i] = true
			matches = append(matches, match{deleted: d, added: a, moved: sameName})
			found = true
			break
		}
		if !found {
			deletedLeft = append(deletedLeft, d)
		}
	}

	var addedLeft []dropbox.Metadata
	for i, a := range additions {
		if !used[i] {
			addedLeft = append(addedLeft, a)
		}
	}
	return matches, addedLeft, deletedLeft
}

func (r *Router) recordMatch(ctx context.Context, m match) {
	var eventType fileevent.EventType
	switch {
	case m.added.IsFile() && m.moved:
		eventType = fileevent.EventTypeFileMoved
	case m.added.IsFile():
		eventType = fileevent.EventTypeFileRenamed
	case m.moved:
		eventType = fileevent.EventTypeFolderMoved
	default:
		eventType = fileevent.EventTypeFolderRenamed
	}

	ev, err := newEvent(eventType, m.added)
	if err != nil {
		r.logger.Error("Invalid change entry", zap.String("path", m.added.Path()), zap.Error(err))
		return
	}
	ev.OldPath = m.deleted.Path()
	if m.added.IsFile() {
		if info, ok := fileevent.ParseFilename(m.added.Name); ok {
			ev.ApplyFileInfo(info)
		}
	}
	if info, ok := fileevent.ParseFolderPath(m.added.Path()); ok {
		ev.ApplyFolderInfo(info)
	}
	r.record(ctx, ev)
}

func (r *Router) recordFile(ctx context.Context, e dropbox.Metadata) {
	if polog.IsPOLogPath(e.Path()) && r.pologs != nil {
		if err := r.pologs.EnqueuePOLog(ctx, e.Path()); err != nil {
			r.logger.Error("Failed to queue PO log import", zap.String("path", e.Path()), zap.Error(err))
		}
		return
	}

	file, ok := fileevent.ParseFilename(e.Name)
	if !ok {
		r.logger.Debug("File outside naming convention", zap.String("path", e.Path()))
		return
	}
	folder, ok := fileevent.ParseFolderPath(fileevent.ParentPath(e.Path()))
	if !ok {
		r.logger.Warn("File is not inside a PO folder", zap.String("path", e.Path()))
		return
	}
	if file.ProjectID != folder.ProjectID || file.PONumber != folder.PONumber {
		r.logger.Error("File name does not match its PO folder",
			zap.String("path", e.Path()),
			zap.String("file_project", file.ProjectID),
			zap.String("folder_project", folder.ProjectID),
			zap.String("file_po", file.PONumber),
			zap.String("folder_po", folder.PONumber),
		)
		return
	}

	ev, err := newEvent(fileevent.EventTypeFileAdded, e)
	if err != nil {
		r.logger.Error("Invalid change entry", zap.String("path", e.Path()), zap.Error(err))
		return
	}
	ev.ApplyFileInfo(file)
	ev.ApplyFolderInfo(folder)
	r.record(ctx, ev)
}

func (r *Router) recordFolder(ctx context.Context, e dropbox.Metadata) {
	if !fileevent.IsPOFolder(e.Path()) {
		return
	}
	info, ok := fileevent.ParseFolderPath(e.Path())
	if !ok {
		return
	}
	ev, err := newEvent(fileevent.EventTypeFolderAdded, e)
	if err != nil {
		r.logger.Error("Invalid change entry", zap.String("path", e.Path()), zap.Error(err))
		return
	}
	ev.ApplyFolderInfo(info)
	r.record(ctx, ev)
}

func (r *Router) record(ctx context.Context, ev *fileevent.FileEvent) {
	id, duplicate, err := r.events.Add(ctx, ev)
	if err != nil {
		r.logger.Error("Failed to record file event",
			zap.String("path", ev.Path),
			zap.String("event_type", string(ev.EventType)),
			zap.Error(err),
		)
		return
	}
	r.metrics.RecordEvent(ctx, string(ev.EventType), duplicate)
	r.logger.Info("Recorded file event",
		zap.String("event_id", id.String()),
		zap.String("event_type", string(ev.EventType)),
		zap.String("path", ev.Path),
		zap.Bool("duplicate", duplicate),
	)
}

func newEvent(eventType fileevent.EventType, e dropbox.Metadata) (*fileevent.FileEvent, error) {
	ts, _ := e.Modified()
	return fileevent.NewFileEvent(eventType, e.ID, e.Name, e.Path(), ts)
}
