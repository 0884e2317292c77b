package telemetry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

const snapshotPrefix = "metrics_"

type seriesSnapshot struct {
	Kind    Kind    `json:"kind"`
	Current float64 `json:"current"`
	Points  []Point `json:"points"`
}

type registrySnapshot struct {
	Timestamp time.Time                  `json:"timestamp"`
	Series    map[string]seriesSnapshot `json:"series"`
}

func (r *Registry) snapshotFilePath(millis int64) string {
	return filepath.Join(r.cfg.MetricsDir, fmt.Sprintf("%s%d.json", snapshotPrefix, millis))
}

// persistSnapshot serializes the current registry state to
// metricsDir/metrics_<millis>.json and sweeps older files beyond
// RetainSnapshots (spec §4.6, §6.3).
func (r *Registry) persistSnapshot() error {
	if r.cfg.MetricsDir == "" {
		return nil
	}
	if err := os.MkdirAll(r.cfg.MetricsDir, 0o755); err != nil {
		return fmt.Errorf("telemetry: create metrics dir: %w", err)
	}

	r.mu.RLock()
	snap := registrySnapshot{
		Timestamp: time.Now(),
		Series:    make(map[string]seriesSnapshot, len(r.series)),
	}
	for name, s := range r.series {
		snap.Series[name] = seriesSnapshot{Kind: s.kind, Current: s.current, Points: append([]Point(nil), s.points...)}
	}
	r.mu.RUnlock()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("telemetry: marshal snapshot: %w", err)
	}

	path := r.snapshotFilePath(snap.Timestamp.UnixMilli())
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("telemetry: write snapshot: %w", err)
	}

	return r.pruneSnapshots()
}

// pruneSnapshots keeps only the newest RetainSnapshots metrics files.
func (r *Registry) pruneSnapshots() error {
	retain := r.cfg.RetainSnapshots
	if retain <= 0 {
		retain = 24
	}
	files, err := r.listSnapshots()
	if err != nil {
		return err
	}
	if len(files) <= retain {
		return nil
	}
	for _, f := range files[:len(files)-retain] {
		if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("telemetry: prune snapshot: %w", err)
		}
	}
	return nil
}

type snapshotFileInfo struct {
	path   string
	millis int64
}

// listSnapshots returns every metrics_*.json file under MetricsDir, sorted
// oldest-first by the millisecond timestamp embedded in its name.
func (r *Registry) listSnapshots() ([]snapshotFileInfo, error) {
	entries, err := os.ReadDir(r.cfg.MetricsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("telemetry: list snapshots: %w", err)
	}

	var files []snapshotFileInfo
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasPrefix(name, snapshotPrefix) || !strings.HasSuffix(name, ".json") {
			continue
		}
		raw := strings.TrimSuffix(strings.TrimPrefix(name, snapshotPrefix), ".json")
		millis, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		files = append(files, snapshotFileInfo{path: filepath.Join(r.cfg.MetricsDir, name), millis: millis})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].millis < files[j].millis })
	return files, nil
}

// loadLatestSnapshot restores the newest metrics snapshot on startup, if
// any exists.
func (r *Registry) loadLatestSnapshot() error {
	if r.cfg.MetricsDir == "" {
		return nil
	}
	files, err := r.listSnapshots()
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return nil
	}

	latest := files[len(files)-1]
	data, err := os.ReadFile(latest.path)
	if err != nil {
		return fmt.Errorf("telemetry: read snapshot: %w", err)
	}

	var snap registrySnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("telemetry: parse snapshot: %w", err)
	}

	r.mu.Lock()
	for name, ss := range snap.Series {
		r.series[name] = &series{kind: ss.Kind, current: ss.Current, points: ss.Points}
	}
	r.mu.Unlock()
	return nil
}
