package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// EventType classifies a warm-storage event by whether it contains a
// confirmed object detection or only uncorroborated motion.
type EventType int

const (
	EventTypeMovement EventType = iota
	EventTypeObject
)

func (t EventType) dirName() string {
	if t == EventTypeObject {
		return "objects"
	}
	return "movements"
}

// WarmEventEntry describes one finalized warm-storage event file.
type WarmEventEntry struct {
	StartPTSNS uint64
	DurationMS uint32
	EventType  EventType
	FileSize   uint64
}

// WarmEventIndex is an in-memory, start-time-ordered index of warm event
// files on disk, rebuilt by Scan at startup and kept current by Insert as
// the warm writer finalizes new events.
type WarmEventIndex struct {
	mu      sync.RWMutex
	cameras map[string][]WarmEventEntry
	dataDir string
}

// NewWarmEventIndex creates an empty index rooted at dataDir.
func NewWarmEventIndex(cameraIDs []string, dataDir string) *WarmEventIndex {
	cameras := make(map[string][]WarmEventEntry, len(cameraIDs))
	for _, id := range cameraIDs {
		cameras[id] = nil
	}
	return &WarmEventIndex{cameras: cameras, dataDir: dataDir}
}

// Scan walks each camera's movements/ and objects/ directories and rebuilds
// the index from the files found there, sorted by start time.
func (idx *WarmEventIndex) Scan() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	for cameraID := range idx.cameras {
		var entries []WarmEventEntry
		for _, eventType := range []EventType{EventTypeMovement, EventTypeObject} {
			dir := filepath.Join(idx.dataDir, cameraID, eventType.dirName())
			dirEntries, err := os.ReadDir(dir)
			if err != nil {
				continue
			}
			for _, de := range dirEntries {
				entry, ok := parseWarmFilename(de.Name(), eventType)
				if !ok {
					continue
				}
				if info, err := de.Info(); err == nil {
					entry.FileSize = uint64(info.Size())
				}
				entries = append(entries, entry)
			}
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].StartPTSNS < entries[j].StartPTSNS })
		idx.cameras[cameraID] = entries
	}
	return nil
}

func parseWarmFilename(name string, eventType EventType) (WarmEventEntry, bool) {
	ext := filepath.Ext(name)
	if ext != ".ts" && ext != ".h264" {
		return WarmEventEntry{}, false
	}
	stem := strings.TrimSuffix(name, ext)
	parts := strings.SplitN(stem, "_", 2)
	if len(parts) != 2 {
		return WarmEventEntry{}, false
	}
	startPTS, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return WarmEventEntry{}, false
	}
	durationMS, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return WarmEventEntry{}, false
	}
	return WarmEventEntry{
		StartPTSNS: startPTS,
		DurationMS: uint32(durationMS),
		EventType:  eventType,
	}, true
}

// Insert adds a newly finalized event, keeping the per-camera slice sorted
// by start time.
func (idx *WarmEventIndex) Insert(cameraID string, entry WarmEventEntry) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	entries := idx.cameras[cameraID]
	pos := sort.Search(len(entries), func(i int) bool { return entries[i].StartPTSNS >= entry.StartPTSNS })
	entries = append(entries, WarmEventEntry{})
	copy(entries[pos+1:], entries[pos:])
	entries[pos] = entry
	idx.cameras[cameraID] = entries
}

// Query returns every event overlapping [fromNS, toNS].
func (idx *WarmEventIndex) Query(cameraID string, fromNS, toNS uint64) []WarmEventEntry {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	entries := idx.cameras[cameraID]

	start := sort.Search(len(entries), func(i int) bool {
		return entries[i].StartPTSNS+uint64(entries[i].DurationMS)*1_000_000 >= fromNS
	})
	end := sort.Search(len(entries), func(i int) bool { return entries[i].StartPTSNS > toNS })
	if start >= end {
		return nil
	}
	out := make([]WarmEventEntry, end-start)
	copy(out, entries[start:end])
	return out
}

// FindEvent looks up an event by its exact start timestamp.
func (idx *WarmEventIndex) FindEvent(cameraID string, startPTSNS uint64) (WarmEventEntry, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	entries := idx.cameras[cameraID]
	i := sort.Search(len(entries), func(i int) bool { return entries[i].StartPTSNS >= startPTSNS })
	if i < len(entries) && entries[i].StartPTSNS == startPTSNS {
		return entries[i], true
	}
	return WarmEventEntry{}, false
}

// ResolveFilePath returns the on-disk path for an event entry.
func (idx *WarmEventIndex) ResolveFilePath(cameraID string, entry WarmEventEntry) string {
	dir := filepath.Join(idx.dataDir, cameraID, entry.EventType.dirName())
	tsPath := filepath.Join(dir, fmt.Sprintf("%d_%d.ts", entry.StartPTSNS, entry.DurationMS))
	if _, err := os.Stat(tsPath); err == nil {
		return tsPath
	}
	return filepath.Join(dir, fmt.Sprintf("%d_%d.h264", entry.StartPTSNS, entry.DurationMS))
}
