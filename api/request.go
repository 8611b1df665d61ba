package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tashkeela.com/diac/metrics"
	"tashkeela.com/diac/pipeline"
)

// MaxBodyBytes caps the text accepted by a single request.
const MaxBodyBytes = 8 << 20

type Request struct {
	Decode pipeline.TextDecoder
	Order  int
}

// Response is the JSON body returned for a decoded text.
type Response struct {
	Text   string `json:"text"`
	Order  int    `json:"order"`
	Words  int    `json:"words"`
	Errors int    `json:"errors"`
}

// ProcessData decodes the raw request body line by line. Words that cannot
// be decoded are returned unchanged and counted in Errors.
func (req *Request) ProcessData(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	id := requestID(r)
	w.Header().Set(RequestIDHeader, id)
	logger := makeRequestLogger(r, id)

	if r.Method != http.MethodPost {
		logger.Err(nil).Int("status", http.StatusMethodNotAllowed).Msg("Only 'POST' method is allowed here")
		http.Error(w, "", http.StatusMethodNotAllowed)
		return
	}

	msg, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		logger.Err(err).Int("status", status).Msg("Could not read request body")
		http.Error(w, "", status)
		return
	}

	logger.Info().Int("bytes", len(msg)).Msg("Starting decoder for request from API")
	start := time.Now()
	text, stats, err := req.Decode(r.Context(), string(msg))
	if err != nil {
		logger.Err(err).Int("status", http.StatusServiceUnavailable).Msg("Decoding was interrupted")
		http.Error(w, "", http.StatusServiceUnavailable)
		return
	}
	metrics.RecordDecode("api", stats.Words, stats.Errors, time.Since(start))

	if err := json.NewEncoder(w).Encode(Response{
		Text:   text,
		Order:  req.Order,
		Words:  stats.Words,
		Errors: stats.Errors,
	}); err != nil {
		logger.Err(err).Msg("Failed to write response")
		return
	}
	logger.Info().Int("status", http.StatusOK).Int("words", stats.Words).Msg("Finished processing request")
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte("ok"))
}

// NewMux routes the decode endpoint with health and metrics handlers.
func NewMux(req *Request) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/diacritize", req.ProcessData)
	mux.HandleFunc("/healthz", Healthz)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}
