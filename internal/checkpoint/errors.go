package checkpoint

import "errors"

// ErrCheckpointCorrupt marks a checkpoint file that failed to parse on
// restore; callers skip it and try the next newest (spec §7).
var ErrCheckpointCorrupt = errors.New("checkpoint: corrupt checkpoint file")

// ErrNoCheckpoints is returned by Load when the checkpoint directory has
// no valid checkpoint to restore from.
var ErrNoCheckpoints = errors.New("checkpoint: no valid checkpoint found")
