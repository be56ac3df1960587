package response

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	customError "github.com/segyhp/fund-ledger/pkg/errors"
)

type Response struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

type ErrorResponse struct {
	Success   bool      `json:"success"`
	Code      string    `json:"code,omitempty"`
	Error     string    `json:"error,omitempty"`
	Message   string    `json:"message,omitempty"`
	Details   []string  `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// JSON sends a JSON response
func JSON(w http.ResponseWriter, statusCode int, data interface{}) {
	response := Response{
		Success:   statusCode >= 200 && statusCode < 300,
		Data:      data,
		Timestamp: time.Now(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		slog.Error("Error encoding JSON response", "error", err)
	}
}

// Success sends a successful JSON response
func Success(w http.ResponseWriter, data interface{}) {
	JSON(w, http.StatusOK, data)
}

// Created sends a created JSON response
func Created(w http.ResponseWriter, data interface{}) {
	JSON(w, http.StatusCreated, data)
}

// Error sends an error JSON response
func Error(w http.ResponseWriter, statusCode int, message string, err error) {
	response := ErrorResponse{
		Success:   false,
		Message:   message,
		Timestamp: time.Now(),
	}

	if err != nil {
		response.Error = err.Error()
	}

	write(w, statusCode, response)
}

// NotFound sends a 404 not found response
func NotFound(w http.ResponseWriter, message string) {
	Error(w, http.StatusNotFound, message, nil)
}

// StatusFor maps a business error code to its HTTP status.
func StatusFor(code string) int {
	switch code {
	case customError.ErrCodeValidation:
		return http.StatusBadRequest
	case customError.ErrCodeUnbalancedAllocation:
		return http.StatusUnprocessableEntity
	case customError.ErrCodeNotFound:
		return http.StatusNotFound
	case customError.ErrCodeForbidden:
		return http.StatusForbidden
	case customError.ErrCodeInsufficientFunds, customError.ErrCodeInvalidTransition, customError.ErrCodeDuplicate:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// BusinessError writes err with the status its code maps to. Storage failures are not echoed to the client.
func BusinessError(w http.ResponseWriter, err error) {
	var be *customError.BusinessError
	if !errors.As(err, &be) {
		slog.Error("Unhandled error", "error", err)
		Error(w, http.StatusInternalServerError, "Internal server error", nil)
		return
	}

	status := StatusFor(be.Code)
	response := ErrorResponse{
		Success:   false,
		Code:      be.Code,
		Message:   be.Message,
		Details:   be.Details,
		Timestamp: time.Now(),
	}
	if status == http.StatusInternalServerError {
		slog.Error("Request failed", "code", be.Code, "error", err)
	}

	write(w, status, response)
}

func write(w http.ResponseWriter, statusCode int, response ErrorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if encodeErr := json.NewEncoder(w).Encode(response); encodeErr != nil {
		slog.Error("Error encoding error response", "error", encodeErr)
	}
}

// CORSMiddleware adds CORS headers
func CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Actor-ID, X-Actor-Role")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// LoggingMiddleware logs HTTP requests
func LoggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Create a response recorder to capture the status code
			recorder := &responseRecorder{ResponseWriter: w, statusCode: 200}

			next.ServeHTTP(recorder, r)

			logger.InfoContext(r.Context(), "http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", recorder.statusCode,
				"duration", time.Since(start).String(),
			)
		})
	}
}

type responseRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rec *responseRecorder) WriteHeader(statusCode int) {
	rec.statusCode = statusCode
	rec.ResponseWriter.WriteHeader(statusCode)
}
