/*
 * MIT License
 *
 * Copyright (c) 2022-2025 Arsene Tochemey Gandote
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 */

package projector

import (
	"errors"
	"fmt"
	"runtime/debug"
)

var (
	// ErrQueryAlreadySet is returned when a second query is defined on a projection
	ErrQueryAlreadySet = errors.New("projection query already set")
	// ErrHandlersAlreadySet is returned when the handlers are defined twice
	ErrHandlersAlreadySet = errors.New("projection handlers already set")
	// ErrAlreadyInitialized is returned when the state initializer is defined twice
	ErrAlreadyInitialized = errors.New("projection already initialized")
	// ErrNoQuery is returned when running a projection without any query
	ErrNoQuery = errors.New("no query defined")
	// ErrNoHandlers is returned when running a projection without any handler
	ErrNoHandlers = errors.New("no handlers defined")
	// ErrInvalidHandler is returned when a nil handler is registered
	ErrInvalidHandler = errors.New("invalid handler")
	// ErrInvalidEventName is returned when a handler is registered for an empty event name
	ErrInvalidEventName = errors.New("invalid event name")
	// ErrLockNotAcquired is returned when another process holds the projection lock
	ErrLockNotAcquired = errors.New("another projection process is already running")
	// ErrProjectionNotFound is returned when the projection document does not exist
	ErrProjectionNotFound = errors.New("projection not found")
	// ErrProjectionAlreadyExists is returned when a projection document conflicts with an existing one
	ErrProjectionAlreadyExists = errors.New("projection already exists")
)

// handlerPanicError wraps panics from projection handlers with stack context.
type handlerPanicError struct {
	value any
	stack []byte
}

// Error formats the panic value and stack for logging.
func (e *handlerPanicError) Error() string {
	return fmt.Sprintf("projection handler panic: %v\n%s", e.value, e.stack)
}

// newHandlerPanicError captures a panic and returns a structured error.
func newHandlerPanicError(value any) error {
	return &handlerPanicError{
		value: value,
		stack: debug.Stack(),
	}
}
