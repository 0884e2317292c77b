package checkpoint

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/l2labs/rollup-sequencer/internal/config"
)

// Engine implements the Checkpoint & Recovery Engine (C4): periodic JSON
// snapshots of sequencer state with generation-bounded retention and
// last-good-snapshot restoration (spec §4.5).
type Engine struct {
	cfg    config.RecoveryConfig
	pubKey string
	log    *slog.Logger
	metrics Metrics

	mu      sync.Mutex
	counter uint64 // ops accepted since last checkpoint

	idCounter uint64 // monotonic salt for newCheckpointID, not ops count

	sizeMu    sync.Mutex
	sizeCount uint64
	sizeSum   uint64
}

// NewEngine builds a Checkpoint Engine rooted at cfg.CheckpointDir. pubKey
// identifies this sequencer instance and seeds checkpoint ids.
func NewEngine(cfg config.RecoveryConfig, pubKey string, metrics Metrics, log *slog.Logger) (*Engine, error) {
	if log == nil {
		log = slog.Default()
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if cfg.CheckpointDir == "" {
		cfg.CheckpointDir = "./checkpoints"
	}
	if cfg.CheckpointInterval <= 0 {
		cfg.CheckpointInterval = 100
	}
	if cfg.MaxCheckpoints <= 0 {
		cfg.MaxCheckpoints = 10
	}
	if err := os.MkdirAll(cfg.CheckpointDir, 0o755); err != nil {
		return nil, fmt.Errorf("checkpoint: create checkpoint dir: %w", err)
	}
	return &Engine{cfg: cfg, pubKey: pubKey, log: log.With("component", "checkpoint"), metrics: metrics}, nil
}

// RecordOp increments the accepted-ops counter and reports whether a
// checkpoint is now due (counter ≥ checkpointInterval). Callers should
// call Create and then ResetCounter when this returns true.
func (e *Engine) RecordOp() bool {
	n := atomic.AddUint64(&e.counter, 1)
	return n >= uint64(e.cfg.CheckpointInterval)
}

// ResetCounter zeroes the accepted-ops counter after a checkpoint completes.
func (e *Engine) ResetCounter() {
	atomic.StoreUint64(&e.counter, 0)
}

// Create snapshots state to a new checkpoint file, then sweeps retention.
// Writes go to a temp file in cfg.CheckpointDir and are renamed into place,
// so a crash mid-write never leaves a partially-written "<id>.json".
func (e *Engine) Create(state State) (*Record, error) {
	start := time.Now()
	millis := start.UnixMilli()
	counter := atomic.AddUint64(&e.idCounter, 1)

	id, err := newCheckpointID(e.pubKey, millis, counter)
	if err != nil {
		return nil, err
	}

	record := &Record{
		ID:                 id,
		Timestamp:          millis,
		SequencerPublicKey: e.pubKey,
		State:              state,
	}

	data, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: marshal record: %w", err)
	}

	target := filepath.Join(e.cfg.CheckpointDir, filename(id))
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return nil, fmt.Errorf("checkpoint: write temp file: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return nil, fmt.Errorf("checkpoint: rename temp file: %w", err)
	}

	e.metrics.IncCounter(metricCheckpointsCreated, 1, nil)
	e.metrics.ObserveHistogram(metricLastCreateDuration, float64(time.Since(start).Milliseconds()), nil)
	e.recordSize(len(data))

	if err := e.sweepRetention(); err != nil {
		// Background retention failures are logged and ignored (spec §7 Policy).
		e.log.Warn("checkpoint retention sweep failed", "error", err)
	}

	return record, nil
}

func (e *Engine) recordSize(n int) {
	e.sizeMu.Lock()
	e.sizeCount++
	e.sizeSum += uint64(n)
	avg := float64(e.sizeSum) / float64(e.sizeCount)
	e.sizeMu.Unlock()
	e.metrics.SetGauge(metricAverageCheckpointSize, avg, nil)
}

type checkpointFile struct {
	path      string
	timestamp int64
}

func (e *Engine) listCheckpointFiles() ([]checkpointFile, error) {
	entries, err := os.ReadDir(e.cfg.CheckpointDir)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: list checkpoint dir: %w", err)
	}

	files := make([]checkpointFile, 0, len(entries))
	for _, ent := range entries {
		if ent.IsDir() || filepath.Ext(ent.Name()) != ".json" {
			continue
		}
		path := filepath.Join(e.cfg.CheckpointDir, ent.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			continue // readers tolerate partially-written/unreadable files
		}
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			continue // parse-skip, per spec
		}
		files = append(files, checkpointFile{path: path, timestamp: rec.Timestamp})
	}
	return files, nil
}

// sweepRetention keeps the maxCheckpoints newest checkpoint files by
// timestamp and deletes the rest (spec §4.5 "Retention").
func (e *Engine) sweepRetention() error {
	files, err := e.listCheckpointFiles()
	if err != nil {
		return err
	}
	if len(files) <= e.cfg.MaxCheckpoints {
		return nil
	}

	sort.Slice(files, func(i, j int) bool { return files[i].timestamp > files[j].timestamp })

	var firstErr error
	for _, f := range files[e.cfg.MaxCheckpoints:] {
		if err := os.Remove(f.path); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Load restores the newest valid checkpoint, skipping corrupt files and
// trying the next newest (spec §4.5 "Restore").
func (e *Engine) Load() (*Record, error) {
	start := time.Now()
	e.metrics.IncCounter(metricRecoveryAttempts, 1, nil)

	files, err := e.listCheckpointFiles()
	if err != nil {
		return nil, err
	}
	sort.Slice(files, func(i, j int) bool { return files[i].timestamp > files[j].timestamp })

	for _, f := range files {
		data, err := os.ReadFile(f.path)
		if err != nil {
			continue
		}
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			e.log.Warn("skipping corrupt checkpoint", "path", f.path, "error", err)
			continue
		}

		e.metrics.IncCounter(metricCheckpointsLoaded, 1, nil)
		e.metrics.IncCounter(metricSuccessfulRecoveries, 1, nil)
		e.metrics.ObserveHistogram(metricLastLoadDuration, float64(time.Since(start).Milliseconds()), nil)
		return &rec, nil
	}

	e.metrics.ObserveHistogram(metricLastLoadDuration, float64(time.Since(start).Milliseconds()), nil)
	return nil, ErrNoCheckpoints
}

// Restore loads the newest valid checkpoint (if any) and hands its state
// to provider. A missing/empty checkpoint directory is not an error: the
// sequencer simply starts from zero state.
func (e *Engine) Restore(provider StateProvider) error {
	rec, err := e.Load()
	if err != nil {
		if err == ErrNoCheckpoints {
			return nil
		}
		return err
	}
	provider.RestoreState(rec.State)
	return nil
}
