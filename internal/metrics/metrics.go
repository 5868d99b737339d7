package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const DefaultNamespace = "video_gallery"

// Recorder exports upload and reaper metrics. A nil *Recorder is valid and
// records nothing.
type Recorder struct {
	uploadDuration    *prometheus.HistogramVec
	uploadsTotal      *prometheus.CounterVec
	uploadedBytes     prometheus.Counter
	stepErrors        *prometheus.CounterVec
	transferAttempts  prometheus.Histogram
	metadataFallbacks prometheus.Counter
	reaped            *prometheus.CounterVec
}

func New(namespace string, reg prometheus.Registerer) (*Recorder, error) {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	r := &Recorder{
		uploadDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upload_duration_seconds",
			Help:      "End-to-end latency of gallery uploads.",
			Buckets:   []float64{.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600, 1800},
		}, []string{"result"}),
		uploadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Gallery uploads by result.",
		}, []string{"result"}),
		uploadedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploaded_bytes_total",
			Help:      "Payload bytes successfully transferred to the media host.",
		}),
		stepErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upload_step_errors_total",
			Help:      "Upload failures by orchestration step.",
		}, []string{"step"}),
		transferAttempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transfer_attempts",
			Help:      "Attempts needed by successful resumable transfers.",
			Buckets:   []float64{1, 2, 3, 4, 5},
		}),
		metadataFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "metadata_fallbacks_total",
			Help:      "Uploads recorded with a derived playback URL because metadata could not be fetched.",
		}),
		reaped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reaper_outcomes_total",
			Help:      "Orphan checks by resource kind and outcome.",
		}, []string{"kind", "outcome"}),
	}

	collectors := []prometheus.Collector{
		r.uploadDuration,
		r.uploadsTotal,
		r.uploadedBytes,
		r.stepErrors,
		r.transferAttempts,
		r.metadataFallbacks,
		r.reaped,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return nil, fmt.Errorf("register metric: %w", err)
		}
	}

	return r, nil
}

func (r *Recorder) ObserveUpload(duration time.Duration, bytes int64, err error) {
	if r == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	r.uploadDuration.WithLabelValues(result).Observe(duration.Seconds())
	r.uploadsTotal.WithLabelValues(result).Inc()
	if err == nil {
		r.uploadedBytes.Add(float64(bytes))
	}
}

func (r *Recorder) RecordStepError(step string) {
	if r == nil {
		return
	}
	r.stepErrors.WithLabelValues(step).Inc()
}

func (r *Recorder) ObserveTransferAttempts(attempts int) {
	if r == nil {
		return
	}
	r.transferAttempts.Observe(float64(attempts))
}

func (r *Recorder) RecordMetadataFallback() {
	if r == nil {
		return
	}
	r.metadataFallbacks.Inc()
}

// RecordReap counts one orphan check. kind is "video" or "collection".
func (r *Recorder) RecordReap(kind string, deleted bool, err error) {
	if r == nil {
		return
	}
	outcome := "kept"
	switch {
	case err != nil:
		outcome = "error"
	case deleted:
		outcome = "deleted"
	}
	r.reaped.WithLabelValues(kind, outcome).Inc()
}
