package api

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tashkeela.com/diac/logger"
)

var defaultLogger = logger.NewLogger("API")

type endpointLoggerFields struct {
	Method    string `json:"method"`
	Url       string `json:"url"`
	RequestID string `json:"request_id"`
}

const RequestInfoFieldsKey = "request_info"

// RequestIDHeader is echoed back so callers can find their request in logs.
const RequestIDHeader = "X-Request-Id"

func requestID(request *http.Request) string {
	if id := request.Header.Get(RequestIDHeader); id != "" {
		return id
	}
	return uuid.NewString()
}

func makeRequestLogger(request *http.Request, id string) zerolog.Logger {
	fields := endpointLoggerFields{
		Method:    request.Method,
		Url:       request.URL.String(),
		RequestID: id,
	}
	return defaultLogger.
		With().Interface(RequestInfoFieldsKey, fields).Logger()
}
