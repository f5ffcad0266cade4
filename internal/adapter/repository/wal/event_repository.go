package wal

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/V4T54L/alert-feed/internal/domain"
)

const (
	segmentPrefix = "segment-"
	segmentSuffix = ".log"
	filePerm      = 0644
	// maxLineSize bounds a single encoded event when scanning segments back.
	maxLineSize = 4 * 1024 * 1024
)

// ErrClosed is returned by operations on a closed repository.
var ErrClosed = errors.New("event log is closed")

// EventRepository is a domain.EventStore over segmented JSON-lines files.
// Segments are rotated by size and the oldest ones are pruned once the
// directory exceeds its disk budget.
type EventRepository struct {
	dir            string
	maxSegmentSize int64
	maxTotalSize   int64
	logger         *slog.Logger

	mu             sync.Mutex
	currentSegment *os.File
	currentPath    string
	currentSize    int64
	nextIndex      uint64
	closed         bool
}

// NewEventRepository opens (or creates) the event log in dir.
func NewEventRepository(dir string, maxSegmentSize, maxTotalSize int64, logger *slog.Logger) (*EventRepository, error) {
	if maxSegmentSize <= 0 {
		return nil, fmt.Errorf("segment size must be positive, got %d", maxSegmentSize)
	}
	if maxTotalSize < maxSegmentSize {
		return nil, fmt.Errorf("max disk size %d is smaller than segment size %d", maxTotalSize, maxSegmentSize)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create event log directory %s: %w", dir, err)
	}

	w := &EventRepository{
		dir:            dir,
		maxSegmentSize: maxSegmentSize,
		maxTotalSize:   maxTotalSize,
		logger:         logger.With("component", "file_repository"),
	}

	if err := w.openLatestSegment(); err != nil {
		return nil, err
	}
	return w, nil
}

// Append assigns a UUID and writes the event as one line of the current segment.
func (w *EventRepository) Append(ctx context.Context, event domain.Event) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	event.ID = uuid.NewString()
	data, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("failed to marshal event for event log: %w", err)
	}
	data = append(data, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return "", ErrClosed
	}
	if w.currentSegment == nil {
		if err := w.rotate(); err != nil {
			return "", err
		}
	}

	n, err := w.currentSegment.Write(data)
	w.currentSize += int64(n)
	if err != nil {
		return "", fmt.Errorf("failed to write to segment %s: %w", w.currentPath, err)
	}

	if w.currentSize >= w.maxSegmentSize {
		if err := w.rotate(); err != nil {
			w.logger.Error("Failed to rotate segment", "error", err)
		}
		w.prune()
	}

	return event.ID, nil
}

// Recent reads segments newest first until limit events are collected.
func (w *EventRepository) Recent(ctx context.Context, limit int) ([]domain.Event, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil, ErrClosed
	}

	segments, err := w.getSortedSegments()
	if err != nil {
		return nil, err
	}

	events := make([]domain.Event, 0, limit)
	for i := len(segments) - 1; i >= 0 && len(events) < limit; i-- {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		segmentEvents, err := w.readSegment(segments[i])
		if err != nil {
			return nil, err
		}
		for j := len(segmentEvents) - 1; j >= 0 && len(events) < limit; j-- {
			events = append(events, segmentEvents[j])
		}
	}
	return events, nil
}

// Ping verifies the log directory is still reachable.
func (w *EventRepository) Ping(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	if _, err := os.Stat(w.dir); err != nil {
		return fmt.Errorf("event log directory unavailable: %w", err)
	}
	return nil
}

// Close syncs and closes the current segment.
func (w *EventRepository) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	if w.currentSegment == nil {
		return nil
	}
	if err := w.currentSegment.Sync(); err != nil {
		w.logger.Error("Failed to sync segment on close", "error", err)
	}
	err := w.currentSegment.Close()
	w.currentSegment = nil
	return err
}

func (w *EventRepository) readSegment(path string) ([]domain.Event, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open segment %s: %w", path, err)
	}
	defer file.Close()

	var events []domain.Event
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		var event domain.Event
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
			// A torn final line after a crash is expected; skip it.
			w.logger.Warn("Failed to unmarshal event from segment, skipping", "path", path, "error", err)
			continue
		}
		event.Timestamp = event.Timestamp.UTC()
		if event.Details == nil {
			event.Details = map[string]any{}
		}
		events = append(events, event)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error scanning segment %s: %w", path, err)
	}
	return events, nil
}

func (w *EventRepository) rotate() error {
	if w.currentSegment != nil {
		if err := w.currentSegment.Sync(); err != nil {
			w.logger.Error("Failed to sync segment before rotating", "error", err)
		}
		if err := w.currentSegment.Close(); err != nil {
			w.logger.Error("Failed to close segment before rotating", "error", err)
		}
		w.currentSegment = nil
	}

	path := filepath.Join(w.dir, segmentName(w.nextIndex))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, filePerm)
	if err != nil {
		return fmt.Errorf("failed to create segment %s: %w", path, err)
	}

	w.currentSegment = f
	w.currentPath = path
	w.currentSize = 0
	w.nextIndex++
	w.logger.Info("Rotated to new segment", "path", path)
	return nil
}

// prune removes the oldest sealed segments until the log fits its budget.
// The active segment is never removed.
func (w *EventRepository) prune() {
	segments, err := w.getSortedSegments()
	if err != nil {
		w.logger.Error("Failed to list segments for pruning", "error", err)
		return
	}

	sizes := make([]int64, len(segments))
	var total int64
	for i, path := range segments {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		sizes[i] = info.Size()
		total += sizes[i]
	}

	for i, path := range segments {
		if total <= w.maxTotalSize || path == w.currentPath {
			return
		}
		if err := os.Remove(path); err != nil {
			w.logger.Error("Failed to remove segment", "path", path, "error", err)
			return
		}
		total -= sizes[i]
		w.logger.Info("Pruned segment", "path", path, "size", sizes[i])
	}
}

func (w *EventRepository) openLatestSegment() error {
	segments, err := w.getSortedSegments()
	if err != nil {
		return err
	}

	if len(segments) == 0 {
		return w.rotate()
	}

	latestSegmentPath := segments[len(segments)-1]
	index, _ := segmentIndex(filepath.Base(latestSegmentPath))
	w.nextIndex = index + 1

	stat, err := os.Stat(latestSegmentPath)
	if err != nil {
		return fmt.Errorf("failed to stat latest segment %s: %w", latestSegmentPath, err)
	}
	if stat.Size() >= w.maxSegmentSize {
		return w.rotate()
	}

	f, err := os.OpenFile(latestSegmentPath, os.O_APPEND|os.O_WRONLY, filePerm)
	if err != nil {
		return fmt.Errorf("failed to open latest segment %s: %w", latestSegmentPath, err)
	}

	w.currentSegment = f
	w.currentPath = latestSegmentPath
	w.currentSize = stat.Size()
	w.logger.Info("Opened existing segment", "path", latestSegmentPath, "size", w.currentSize)
	return nil
}

func (w *EventRepository) getSortedSegments() ([]string, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read event log directory: %w", err)
	}

	var segments []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, ok := segmentIndex(entry.Name()); ok {
			segments = append(segments, filepath.Join(w.dir, entry.Name()))
		}
	}
	// zero-padded indexes sort lexically
	sort.Strings(segments)
	return segments, nil
}

func segmentName(index uint64) string {
	return fmt.Sprintf("%s%020d%s", segmentPrefix, index, segmentSuffix)
}

func segmentIndex(name string) (uint64, bool) {
	if !strings.HasPrefix(name, segmentPrefix) || !strings.HasSuffix(name, segmentSuffix) {
		return 0, false
	}
	raw := strings.TrimSuffix(strings.TrimPrefix(name, segmentPrefix), segmentSuffix)
	index, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return index, true
}
