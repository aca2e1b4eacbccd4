package utils

import "time"

// Metric carries samples from the request path to the collectors in the
// metric package. Sends never block: with no collector running (the CLI) the
// sample is dropped.
type Metric struct {
	DatabaseRead       chan float64
	DatabaseWrite      chan float64
	DiscordSendMessage chan float64

	ExtractionLatency  chan float64
	ExtractionFailures chan struct{}
	ExtractionRetries  chan struct{}
	EventsBuilt        chan int
	EventsSkipped      chan int
}

func NewMetric() *Metric {
	return &Metric{
		DatabaseRead:       make(chan float64, 16),
		DatabaseWrite:      make(chan float64, 16),
		DiscordSendMessage: make(chan float64, 16),

		ExtractionLatency:  make(chan float64, 16),
		ExtractionFailures: make(chan struct{}, 16),
		ExtractionRetries:  make(chan struct{}, 16),
		EventsBuilt:        make(chan int, 16),
		EventsSkipped:      make(chan int, 16),
	}
}

func trySend[T any](ch chan T, v T) {
	select {
	case ch <- v:
	default:
	}
}

// Latencies are reported in microseconds.
func (m *Metric) ObserveDatabaseRead(took time.Duration) {
	trySend(m.DatabaseRead, float64(took.Microseconds()))
}

func (m *Metric) ObserveDatabaseWrite(took time.Duration) {
	trySend(m.DatabaseWrite, float64(took.Microseconds()))
}

func (m *Metric) ObserveDiscordSend(took time.Duration) {
	trySend(m.DiscordSendMessage, float64(took.Microseconds()))
}

func (m *Metric) ObserveExtraction(took time.Duration, err error) {
	trySend(m.ExtractionLatency, float64(took.Microseconds()))
	if err != nil {
		trySend(m.ExtractionFailures, struct{}{})
	}
}

func (m *Metric) ObserveBuild(built, skipped int) {
	trySend(m.EventsBuilt, built)
	trySend(m.EventsSkipped, skipped)
}

func (m *Metric) ObserveRetry(attempt int, err error) {
	trySend(m.ExtractionRetries, struct{}{})
}
