package http

import (
	"encoding/json"
	"net/http"
)

// Response writes JSON envelopes to an http.ResponseWriter.
//
// Successful bodies are {"data": ...}; failures are
// {"message": "...", "status": "Not Found"}.
type Response struct {
	w http.ResponseWriter
}

// NewResponse wraps a ResponseWriter.
func NewResponse(w http.ResponseWriter) *Response {
	return &Response{w: w}
}

type dataEnvelope struct {
	Data any `json:"data"`
}

type errorEnvelope struct {
	Message string `json:"message"`
	Status  string `json:"status"`
}

// JSON writes v as the body with the given status.
func (res *Response) JSON(status int, v any) {
	h := res.w.Header()
	h.Set("Content-Type", "application/json")
	h.Set("Cache-Control", "no-store")
	res.w.WriteHeader(status)
	_ = json.NewEncoder(res.w).Encode(v)
}

// ── 2xx ──────────────────────────────────────────────────────────────────────

func (res *Response) Success(v any)  { res.JSON(http.StatusOK, dataEnvelope{Data: v}) }
func (res *Response) Created(v any)  { res.JSON(http.StatusCreated, dataEnvelope{Data: v}) }
func (res *Response) Accepted(v any) { res.JSON(http.StatusAccepted, dataEnvelope{Data: v}) }
func (res *Response) NoContent()     { res.w.WriteHeader(http.StatusNoContent) }

// ── 4xx / 5xx ────────────────────────────────────────────────────────────────

// Error writes an error envelope.
//
//	res.Error(http.StatusConflict, "alias [db] already points at [primary]")
func (res *Response) Error(status int, message string) {
	res.JSON(status, errorEnvelope{Message: message, Status: http.StatusText(status)})
}

// Fail writes err's message with the given status.
func (res *Response) Fail(status int, err error) {
	res.Error(status, err.Error())
}

func (res *Response) BadRequest(message ...string) {
	res.Error(http.StatusBadRequest, orDefault(message, "Bad request."))
}

func (res *Response) Unauthorized(message ...string) {
	res.Error(http.StatusUnauthorized, orDefault(message, "Unauthenticated."))
}

func (res *Response) NotFound(message ...string) {
	res.Error(http.StatusNotFound, orDefault(message, "Not found."))
}

func (res *Response) Conflict(message ...string) {
	res.Error(http.StatusConflict, orDefault(message, "Conflict."))
}

func orDefault(msgs []string, fallback string) string {
	if len(msgs) > 0 && msgs[0] != "" {
		return msgs[0]
	}
	return fallback
}
