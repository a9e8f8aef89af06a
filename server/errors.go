// Copyright 2016 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package server

import (
	"fmt"
	"net/http"
)

// Kind classifies an Error into one of the wire-visible categories a
// serving handler maps to an HTTP status. Kinds, not Go types: every
// collaborator failure is funneled through one of these at the point
// it crosses the HTTP boundary.
type Kind int

const (
	// KindClientFormat covers malformed method, JSON, parameter, or
	// base64 input.
	KindClientFormat Kind = iota
	// KindNotFound covers proof or entry requests naming data the log
	// does not have at the requested tree size.
	KindNotFound
	// KindMethodNotAllowed covers a request using the wrong HTTP method.
	KindMethodNotAllowed
	// KindOverCapacity covers admission backpressure from the database.
	KindOverCapacity
	// KindInternal covers serialization or encoding failures, and any
	// collaborator error that isn't the client's fault.
	KindInternal
)

// Error is the typed error every serving handler returns instead of a
// plain error, so that ServeHTTP can map it to a status code and
// message without string matching.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap exposes the wrapped collaborator error, if any, to errors.Is/As.
func (e *Error) Unwrap() error { return e.Err }

// StatusCode maps e's Kind to the HTTP status §7 pins for it.
func (e *Error) StatusCode() int {
	switch e.Kind {
	case KindClientFormat, KindNotFound:
		return http.StatusBadRequest
	case KindMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case KindOverCapacity:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// BadRequest builds a KindClientFormat error.
func BadRequest(format string, args ...interface{}) *Error {
	return &Error{Kind: KindClientFormat, Message: fmt.Sprintf(format, args...)}
}

// NotFoundf builds a KindNotFound error. message is the stable wire
// string §7 requires ("Couldn't find hash." / "Entry not found."),
// preserved verbatim for client compatibility despite being
// semantically a 404.
func NotFoundf(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

// MethodNotAllowedf builds a KindMethodNotAllowed error.
func MethodNotAllowedf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindMethodNotAllowed, Message: fmt.Sprintf(format, args...)}
}

// OverCapacityf builds a KindOverCapacity error.
func OverCapacityf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindOverCapacity, Message: fmt.Sprintf(format, args...)}
}

// Internalf wraps err as a KindInternal error with a contextual message.
func Internalf(err error, format string, args ...interface{}) *Error {
	return &Error{Kind: KindInternal, Message: fmt.Sprintf(format, args...), Err: err}
}
