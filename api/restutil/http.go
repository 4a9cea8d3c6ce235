// Copyright (c) 2023 Swapscanner
//
// Distributed under the MIT software license, see the accompanying
// file LICENSE or <https://opensource.org/licenses/MIT>

// Package restutil provides small helpers for error-returning HTTP
// handlers.
package restutil

import (
	"encoding/json"
	"io"
	"net/http"
)

type httpError struct {
	cause  error
	status int
}

func (e *httpError) Error() string {
	return e.cause.Error()
}

// HTTPError creates an error carrying an http status code.
func HTTPError(cause error, status int) error {
	return &httpError{cause: cause, status: status}
}

// BadRequest creates an http bad request error.
func BadRequest(cause error) error {
	return &httpError{cause: cause, status: http.StatusBadRequest}
}

// Forbidden creates an http forbidden error.
func Forbidden(cause error) error {
	return &httpError{cause: cause, status: http.StatusForbidden}
}

// NotFound creates an http not found error.
func NotFound(cause error) error {
	return &httpError{cause: cause, status: http.StatusNotFound}
}

// HandlerFunc is like http.HandlerFunc but returns an error. An httpError
// responds with its status; any other error responds with 500.
type HandlerFunc func(http.ResponseWriter, *http.Request) error

// WrapHandlerFunc converts a HandlerFunc to http.HandlerFunc.
func WrapHandlerFunc(f HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := f(w, r)
		if err != nil {
			if he, ok := err.(*httpError); ok {
				if he.cause != nil {
					http.Error(w, he.cause.Error(), he.status)
				} else {
					w.WriteHeader(he.status)
				}
			} else {
				http.Error(w, err.Error(), http.StatusInternalServerError)
			}
		}
	}
}

// JSONContentType is the content type of all JSON responses.
const JSONContentType = "application/json; charset=utf-8"

// ParseJSON parses a JSON object using strict mode.
func ParseJSON(r io.Reader, v interface{}) error {
	decoder := json.NewDecoder(r)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

// WriteJSON responds with an object in JSON encoding.
func WriteJSON(w http.ResponseWriter, obj interface{}) error {
	w.Header().Set("Content-Type", JSONContentType)
	return json.NewEncoder(w).Encode(obj)
}

// M is a shortcut for map[string]interface{}.
type M map[string]interface{}
