package apperror

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestHTTPErrorHandler_AppError(t *testing.T) {
	e := echo.New()
	log := slog.Default()
	handler := HTTPErrorHandler(log)

	// Test with custom app error
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	appErr := NewBadRequest("invalid input")
	handler(appErr, c)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Status = %d, want %d", rec.Code, http.StatusBadRequest)
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}

	errObj := resp["error"].(map[string]any)
	if errObj["code"] != "bad_request" {
		t.Errorf("Code = %v, want bad_request", errObj["code"])
	}
	if errObj["message"] != "invalid input" {
		t.Errorf("Message = %v, want 'invalid input'", errObj["message"])
	}
}

func TestHTTPErrorHandler_AppErrorDetails(t *testing.T) {
	e := echo.New()
	log := slog.Default()
	handler := HTTPErrorHandler(log)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	appErr := NewValidation("delay out of range").WithDetails(map[string]any{
		"field": "delay",
		"min":   0.1,
		"max":   10,
	})
	handler(appErr, c)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("Status = %d, want %d", rec.Code, http.StatusUnprocessableEntity)
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}

	errObj := resp["error"].(map[string]any)
	details, ok := errObj["details"].(map[string]any)
	if !ok {
		t.Fatal("Response should include details for app errors that carry them")
	}
	if details["field"] != "delay" {
		t.Errorf("details.field = %v, want delay", details["field"])
	}
}

func TestHTTPErrorHandler_EchoError(t *testing.T) {
	e := echo.New()
	log := slog.Default()
	handler := HTTPErrorHandler(log)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	// Test with Echo HTTP error (string message)
	echoErr := echo.NewHTTPError(http.StatusNotFound, "resource not found")
	handler(echoErr, c)

	if rec.Code != http.StatusNotFound {
		t.Errorf("Status = %d, want %d", rec.Code, http.StatusNotFound)
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}

	errObj := resp["error"].(map[string]any)
	if errObj["code"] != "not_found" {
		t.Errorf("Code = %v, want not_found", errObj["code"])
	}
	if errObj["message"] != "resource not found" {
		t.Errorf("Message = %v, want 'resource not found'", errObj["message"])
	}
}

func TestHTTPErrorHandler_EchoError_StatusCodes(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		wantCode string
	}{
		{"not_found", http.StatusNotFound, "not_found"},
		{"bad_request", http.StatusBadRequest, "bad_request"},
		{"conflict", http.StatusConflict, "conflict"},
		{"unprocessable_entity", http.StatusUnprocessableEntity, "validation_error"},
		{"service_unavailable", http.StatusServiceUnavailable, "unavailable"},
		{"unmapped_status", http.StatusTeapot, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			log := slog.Default()
			handler := HTTPErrorHandler(log)

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			echoErr := echo.NewHTTPError(tt.status, "test message")
			handler(echoErr, c)

			if rec.Code != tt.status {
				t.Errorf("Status = %d, want %d", rec.Code, tt.status)
			}

			var resp map[string]any
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("Failed to parse response: %v", err)
			}

			errObj := resp["error"].(map[string]any)
			if errObj["code"] != tt.wantCode {
				t.Errorf("Code = %v, want %v", errObj["code"], tt.wantCode)
			}
		})
	}
}

func TestHTTPErrorHandler_NonStringEchoMessage(t *testing.T) {
	e := echo.New()
	log := slog.Default()
	handler := HTTPErrorHandler(log)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	// Non-string echo messages keep the status but fall back to the generic body
	echoErr := echo.NewHTTPError(http.StatusBadRequest, map[string]any{"reason": "weird"})
	handler(echoErr, c)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Status = %d, want %d", rec.Code, http.StatusBadRequest)
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}

	errObj := resp["error"].(map[string]any)
	if errObj["code"] != "internal_error" {
		t.Errorf("Code = %v, want internal_error", errObj["code"])
	}
	if errObj["message"] != "An internal error occurred" {
		t.Errorf("Message = %v, want generic message", errObj["message"])
	}
}

func TestHTTPErrorHandler_GenericError(t *testing.T) {
	e := echo.New()
	log := slog.Default()
	handler := HTTPErrorHandler(log)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	// Plain errors become internal server errors
	handler(http.ErrBodyNotAllowed, c)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("Status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}

	errObj := resp["error"].(map[string]any)
	if errObj["code"] != "internal_error" {
		t.Errorf("Code = %v, want internal_error", errObj["code"])
	}
}

func TestHTTPErrorHandler_HeadRequest(t *testing.T) {
	e := echo.New()
	log := slog.Default()
	handler := HTTPErrorHandler(log)

	// Test HEAD request - should return no content
	req := httptest.NewRequest(http.MethodHead, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	appErr := NewNotFound("resource", "123")
	handler(appErr, c)

	if rec.Code != http.StatusNotFound {
		t.Errorf("Status = %d, want %d", rec.Code, http.StatusNotFound)
	}

	// HEAD request should have empty body
	if rec.Body.Len() != 0 {
		t.Errorf("Body should be empty for HEAD request, got %d bytes", rec.Body.Len())
	}
}

func TestHTTPErrorHandler_CommittedResponse(t *testing.T) {
	e := echo.New()
	log := slog.Default()
	handler := HTTPErrorHandler(log)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	// Simulate committed response by writing something first
	c.Response().WriteHeader(http.StatusOK)
	c.Response().Write([]byte("already written"))

	// Handler should return early without modifying response
	appErr := NewBadRequest("should not appear")
	handler(appErr, c)

	// Status should still be OK (not changed to bad request)
	if rec.Code != http.StatusOK {
		t.Errorf("Status = %d, want %d (committed response)", rec.Code, http.StatusOK)
	}
}
