package ports

import "time"

type MetricsRecorder interface {
	SetQueueLength(n int)
	SetObservers(n int)
	RecordTurnStarted()
	RecordTurnEnded(reason string, held time.Duration)
	RecordDeviceIntent(intent string, result string)
	RecordObserverEvicted()
	RecordSweep(name string, failed bool)
	RecordSessionsEvicted(n int)
}

// NopMetrics discards everything.
type NopMetrics struct{}

func (NopMetrics) SetQueueLength(int)                    {}
func (NopMetrics) SetObservers(int)                      {}
func (NopMetrics) RecordTurnStarted()                    {}
func (NopMetrics) RecordTurnEnded(string, time.Duration) {}
func (NopMetrics) RecordDeviceIntent(string, string)     {}
func (NopMetrics) RecordObserverEvicted()                {}
func (NopMetrics) RecordSweep(string, bool)              {}
func (NopMetrics) RecordSessionsEvicted(int)             {}
