package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// ── WriteJSON ────────────────────────────────────────────────────────

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusCreated, map[string]string{"msg": "ok"})

	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusCreated)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("JSON decode: %v", err)
	}
	if body["msg"] != "ok" {
		t.Errorf("body = %v, want msg=ok", body)
	}
}

// ── WriteError ───────────────────────────────────────────────────────

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, http.StatusBadRequest, "bad input")

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	var body ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("JSON decode: %v", err)
	}
	if body.Error != "bad input" {
		t.Errorf("Error = %q, want %q", body.Error, "bad input")
	}
	if body.Detail != "" {
		t.Errorf("Detail = %q, want empty", body.Detail)
	}
}

// ── WriteErrorDetail ─────────────────────────────────────────────────

func TestWriteErrorDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteErrorDetail(rec, http.StatusUnprocessableEntity, "validation failed", "name is required")

	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnprocessableEntity)
	}
	var body ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("JSON decode: %v", err)
	}
	if body.Error != "validation failed" {
		t.Errorf("Error = %q, want %q", body.Error, "validation failed")
	}
	if body.Detail != "name is required" {
		t.Errorf("Detail = %q, want %q", body.Detail, "name is required")
	}
}
