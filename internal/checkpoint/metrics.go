package checkpoint

// Metrics is the narrow telemetry sink the Checkpoint Engine records
// against; satisfied by *telemetry.Registry.
type Metrics interface {
	IncCounter(name string, delta float64, labels map[string]string)
	ObserveHistogram(name string, value float64, labels map[string]string)
	SetGauge(name string, value float64, labels map[string]string)
}

const (
	metricCheckpointsCreated    = "checkpoint_checkpoints_created"
	metricCheckpointsLoaded     = "checkpoint_checkpoints_loaded"
	metricAverageCheckpointSize = "checkpoint_average_size_bytes"
	metricLastCreateDuration    = "checkpoint_last_create_duration_ms"
	metricLastLoadDuration      = "checkpoint_last_load_duration_ms"
	metricRecoveryAttempts      = "checkpoint_recovery_attempts"
	metricSuccessfulRecoveries  = "checkpoint_successful_recoveries"
)

type noopMetrics struct{}

func (noopMetrics) IncCounter(string, float64, map[string]string)      {}
func (noopMetrics) ObserveHistogram(string, float64, map[string]string) {}
func (noopMetrics) SetGauge(string, float64, map[string]string)        {}
