package control

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kilianp07/bmsctl/core/model"
)

var (
	ticksTotal      prometheus.Counter
	ticksWarming    prometheus.Counter
	tickFailures    *prometheus.CounterVec
	overTempWarns   *prometheus.CounterVec
	coolingHigh     *prometheus.CounterVec
	tickDuration    prometheus.Histogram
	currentMode     *prometheus.GaugeVec
	adjustedCurrent prometheus.Gauge
	predictedTemp   prometheus.Gauge
)

func newCollectors() []prometheus.Collector {
	ticksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bms_ticks_total",
		Help: "Number of control ticks that pulled a sample",
	})
	ticksWarming = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bms_ticks_warming_total",
		Help: "Number of ticks skipped while the feature window was filling",
	})
	tickFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bms_tick_failures_total",
		Help: "Number of failed ticks by failure kind",
	}, []string{"kind"})
	overTempWarns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bms_overtemp_warnings_total",
		Help: "Number of decisions carrying an over-temperature warning",
	}, []string{"mode"})
	coolingHigh = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bms_cooling_high_total",
		Help: "Number of decisions requesting high cooling",
	}, []string{"mode"})
	tickDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "bms_tick_duration_seconds",
		Help:    "Wall time spent in one control tick",
		Buckets: prometheus.DefBuckets,
	})
	currentMode = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "bms_current_mode",
		Help: "1 for the mode applied by the last decision, 0 otherwise",
	}, []string{"mode"})
	adjustedCurrent = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bms_adjusted_current_amperes",
		Help: "Adjusted current of the last decision",
	})
	predictedTemp = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bms_predicted_temperature_celsius",
		Help: "Predicted temperature of the last decision",
	})
	return []prometheus.Collector{
		ticksTotal, ticksWarming, tickFailures, overTempWarns, coolingHigh,
		tickDuration, currentMode, adjustedCurrent, predictedTemp,
	}
}

var collectors = newCollectors()

func init() {
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers the loop metrics on reg, or on
// prometheus.DefaultRegisterer when reg is nil.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(collectors...)
}

// ResetMetrics recreates the collectors for tests and registers them on reg
// when not nil.
func ResetMetrics(reg prometheus.Registerer) {
	collectors = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}

func observeDecision(d model.ControlDecision) {
	mode := d.Mode.String()
	for _, m := range model.AllModes() {
		v := 0.0
		if m == d.Mode {
			v = 1
		}
		currentMode.WithLabelValues(m.String()).Set(v)
	}
	adjustedCurrent.Set(d.AdjustedCurrent)
	predictedTemp.Set(d.PredictedTemp)
	if d.Cooling == model.CoolingHigh {
		coolingHigh.WithLabelValues(mode).Inc()
	}
	if d.OverTempWarning {
		overTempWarns.WithLabelValues(mode).Inc()
	}
}
