package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WordsDecoded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "diac_words_decoded_total",
		Help: "Words run through the decoder, by source",
	}, []string{"source"})

	DecodeErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "diac_decode_errors_total",
		Help: "Words the decoder refused and passed through unchanged",
	}, []string{"source"})

	DecodeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "diac_decode_duration_seconds",
		Help:    "Time to decode one request, file or job",
		Buckets: prometheus.ExponentialBuckets(0.0005, 4, 10),
	}, []string{"source"})

	TrainingWords = promauto.NewCounter(prometheus.CounterOpts{
		Name: "diac_training_words_total",
		Help: "Marked words counted into a model",
	})

	AlignmentErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "diac_alignment_errors_total",
		Help: "Marked words that could not be aligned, by stage",
	}, []string{"stage"})

	JobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "diac_worker_jobs_total",
		Help: "Queue jobs handled by the worker, by outcome",
	}, []string{"outcome"})
)

func RecordDecode(source string, words, errs int, elapsed time.Duration) {
	WordsDecoded.WithLabelValues(source).Add(float64(words))
	if errs > 0 {
		DecodeErrors.WithLabelValues(source).Add(float64(errs))
	}
	DecodeDuration.WithLabelValues(source).Observe(elapsed.Seconds())
}

func RecordTraining(words, errs int) {
	TrainingWords.Add(float64(words))
	if errs > 0 {
		AlignmentErrors.WithLabelValues("train").Add(float64(errs))
	}
}

func RecordEvaluationExclusions(alignment int) {
	if alignment > 0 {
		AlignmentErrors.WithLabelValues("evaluate").Add(float64(alignment))
	}
}

func RecordJob(outcome string) {
	JobsProcessed.WithLabelValues(outcome).Inc()
}
