package metric

import (
	"fmt"
	"log/slog"
	"time"

	"nlcal/src-server/utils"

	"github.com/prometheus/client_golang/prometheus"
)

// register returns the collector to feed. When an equal collector is already
// registered (a second Init in the same process) that one is returned, so
// /metrics keeps showing the live series.
func register[T prometheus.Collector](c T, name string) T {
	if err := prometheus.Register(c); err != nil {
		are, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			slog.Error("can't register metric", "name", name, "error", err)
			return c
		}
		existing, ok := are.ExistingCollector.(T)
		if !ok {
			slog.Error("registered metric has a different type", "name", name, "type", fmt.Sprintf("%T", are.ExistingCollector))
			return c
		}
		slog.Debug("metric already registered, reusing it", "name", name)
		return existing
	}
	slog.Debug("metric registered", "name", name)
	return c
}

func unregister(c prometheus.Collector, name string) {
	switch prometheus.Unregister(c) {
	case true:
		slog.Debug("metric unregistered", "name", name)
	case false:
		slog.Warn("metric not registered", "name", name)
	}
}

// #region | gauges

// latencyGauge exposes the last sample from ch, falling back to 0 when no
// sample arrived within clearTickerInterval.
func latencyGauge(as *utils.AppState, name, help string, ch <-chan float64, clearTickerInterval time.Duration) {
	gauge := register(prometheus.NewGauge(prometheus.GaugeOpts{
		Name: name,
		Help: help,
	}), name)
	gauge.Set(0)

	gracefulShutdownCh := as.CreateGracefulShutdownChan()
	go func() {
		clearTicker := time.NewTicker(clearTickerInterval)
		defer clearTicker.Stop()
		for {
			select {
			case <-*gracefulShutdownCh:
				unregister(gauge, name)
				return
			case latency := <-ch:
				gauge.Set(latency)
				clearTicker.Reset(clearTickerInterval)
			case <-clearTicker.C:
				gauge.Set(0)
			}
		}
	}()
}

func databaseEmptyRead(as *utils.AppState, tickerInterval time.Duration) {
	const name = "nlcal_database_empty_read_microsec"
	gauge := register(prometheus.NewGauge(prometheus.GaugeOpts{
		Name: name,
		Help: "The latency of an empty database read in microseconds",
	}), name)
	gauge.Set(0)

	gracefulShutdownCh := as.CreateGracefulShutdownChan()
	go func() {
		ticker := time.NewTicker(tickerInterval)
		defer ticker.Stop()
		for {
			select {
			case <-*gracefulShutdownCh:
				unregister(gauge, name)
				return
			case <-ticker.C:
				latency, err := database(as, tickerInterval)
				if err != nil {
					slog.Error("can't get database latency", "error", err)
					continue
				}
				gauge.Set(float64(latency.Microseconds()))
			}
		}
	}()
}

func discordHeartbeatLatency(as *utils.AppState, tickerInterval time.Duration) {
	const name = "nlcal_discord_heartbeat_latency_microsec"
	gauge := register(prometheus.NewGauge(prometheus.GaugeOpts{
		Name: name,
		Help: "The latency of a discord heartbeat in microseconds",
	}), name)
	gauge.Set(0)

	gracefulShutdownCh := as.CreateGracefulShutdownChan()
	go func() {
		ticker := time.NewTicker(tickerInterval)
		defer ticker.Stop()
		for {
			select {
			case <-*gracefulShutdownCh:
				unregister(gauge, name)
				return
			case <-ticker.C:
				gauge.Set(float64(as.DgSession.HeartbeatLatency().Microseconds()))
			}
		}
	}()
}

// #endregion

// #region | counters

// extractionCounters drains the pipeline channels into monotonic counters.
// One goroutine owns all four so the channels never fill up.
func extractionCounters(as *utils.AppState) {
	newCounter := func(name, help string) prometheus.Counter {
		return register(prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: help}), name)
	}
	failures := newCounter("nlcal_extraction_failures_total", "Extractions that ended in an error")
	retries := newCounter("nlcal_extraction_retries_total", "Retries scheduled after a retryable extraction error")
	built := newCounter("nlcal_events_built_total", "Events rendered into a single-event calendar")
	skipped := newCounter("nlcal_events_skipped_total", "Event records skipped during validation or build")
	collectors := map[string]prometheus.Collector{
		"nlcal_extraction_failures_total": failures,
		"nlcal_extraction_retries_total":  retries,
		"nlcal_events_built_total":        built,
		"nlcal_events_skipped_total":      skipped,
	}

	gracefulShutdownCh := as.CreateGracefulShutdownChan()
	go func() {
		for {
			select {
			case <-*gracefulShutdownCh:
				for name, c := range collectors {
					unregister(c, name)
				}
				return
			case <-as.MetricChans.ExtractionFailures:
				failures.Inc()
			case <-as.MetricChans.ExtractionRetries:
				retries.Inc()
			case n := <-as.MetricChans.EventsBuilt:
				built.Add(float64(n))
			case n := <-as.MetricChans.EventsSkipped:
				skipped.Add(float64(n))
			}
		}
	}()
}

// #endregion

// Init starts every collector. Call it after the database and the Discord
// session are set up; the collectors for missing parts are not started.
func Init(as *utils.AppState) {
	tickerInterval := as.Config.GetMetricCollectionInterval()
	clearTickerInterval := as.Config.GetMetricCollectionInterval() * 2

	if as.History != nil {
		databaseEmptyRead(as, tickerInterval)
	}
	latencyGauge(as, "nlcal_database_read_microsec",
		"The latency of a database read in microseconds",
		as.MetricChans.DatabaseRead, clearTickerInterval)
	latencyGauge(as, "nlcal_database_write_microsec",
		"The latency of a database write in microseconds",
		as.MetricChans.DatabaseWrite, clearTickerInterval)
	latencyGauge(as, "nlcal_extraction_latency_microsec",
		"The latency of the last extraction in microseconds",
		as.MetricChans.ExtractionLatency, clearTickerInterval)
	extractionCounters(as)

	if as.DgSession != nil {
		latencyGauge(as, "nlcal_discord_send_message_microsec",
			"The latency of a discord message send in microseconds",
			as.MetricChans.DiscordSendMessage, clearTickerInterval)
		discordHeartbeatLatency(as, tickerInterval)
	}
}
