// Package respond implements the uniform JSON envelope shared by handlers
// and middleware.
//
// Every response body carries `{code, message, data}` where code mirrors the
// HTTP status and data is null when there is no payload.
package respond

import (
	"encoding/json"
	"net/http"
)

// Envelope is the wire shape of every API response.
type Envelope struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

// JSON writes the envelope with the given status code.
func JSON(w http.ResponseWriter, status int, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Envelope{
		Code:    status,
		Message: message,
		Data:    data,
	})
}

// OK writes a 200 envelope with a payload.
func OK(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, "success", data)
}

// OKMessage writes a 200 envelope with a custom message and no payload.
func OKMessage(w http.ResponseWriter, message string) {
	JSON(w, http.StatusOK, message, nil)
}

// Created writes a 201 envelope with a payload.
func Created(w http.ResponseWriter, data any) {
	JSON(w, http.StatusCreated, "created", data)
}

// BadRequest writes a 400 envelope.
func BadRequest(w http.ResponseWriter, message string) {
	JSON(w, http.StatusBadRequest, message, nil)
}

// Unauthorized writes a 401 envelope.
func Unauthorized(w http.ResponseWriter, message string) {
	JSON(w, http.StatusUnauthorized, message, nil)
}

// Forbidden writes a 403 envelope.
func Forbidden(w http.ResponseWriter, message string) {
	JSON(w, http.StatusForbidden, message, nil)
}

// NotFound writes a 404 envelope.
func NotFound(w http.ResponseWriter, message string) {
	JSON(w, http.StatusNotFound, message, nil)
}

// Conflict writes a 409 envelope.
func Conflict(w http.ResponseWriter, message string) {
	JSON(w, http.StatusConflict, message, nil)
}

// Internal writes a 500 envelope. The message must not leak internals;
// handlers log the cause separately.
func Internal(w http.ResponseWriter, message string) {
	JSON(w, http.StatusInternalServerError, message, nil)
}
