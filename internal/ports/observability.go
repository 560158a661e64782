package ports

import "github.com/ghalamif/AegisNet/internal/domain"

type Observability interface {
	LogDebug(msg string, fields ...Field)
	LogInfo(msg string, fields ...Field)
	LogWarn(msg string, fields ...Field)
	LogError(msg string, err error, fields ...Field)
	LogCritical(msg string, err error, fields ...Field)

	IncCounter(name string, v float64)
	ObserveLatency(name string, seconds float64)

	SetGauge(name string, v float64)

	RecordDLQ(id WALEntryID, ev *domain.Event, err error)
}

type Field struct {
	Key   string
	Value any
}

// NopObservability discards everything. Useful as a default and in tests.
type NopObservability struct{}

func (NopObservability) LogDebug(string, ...Field)                  {}
func (NopObservability) LogInfo(string, ...Field)                   {}
func (NopObservability) LogWarn(string, ...Field)                   {}
func (NopObservability) LogError(string, error, ...Field)           {}
func (NopObservability) LogCritical(string, error, ...Field)        {}
func (NopObservability) IncCounter(string, float64)                 {}
func (NopObservability) ObserveLatency(string, float64)             {}
func (NopObservability) SetGauge(string, float64)                   {}
func (NopObservability) RecordDLQ(WALEntryID, *domain.Event, error) {}
