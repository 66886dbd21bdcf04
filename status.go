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

// Status defines the lifecycle status of a projection
type Status string

const (
	// StatusIdle means no process is running the projection
	StatusIdle Status = "idle"
	// StatusRunning means a process holds the projection lock
	StatusRunning Status = "running"
	// StatusStopping asks the running process to stop
	StatusStopping Status = "stopping"
	// StatusResetting asks the running process to reset the projection
	StatusResetting Status = "resetting"
	// StatusDeleting asks the running process to delete the projection
	StatusDeleting Status = "deleting"
	// StatusDeletingInclEmittedEvents asks the running process to delete the projection
	// together with the events it emitted
	StatusDeletingInclEmittedEvents Status = "deleting_incl_emitted_events"
)

// String returns the string representation of the status
func (s Status) String() string {
	return string(s)
}

// IsValid reports whether the status is a known one
func (s Status) IsValid() bool {
	switch s {
	case StatusIdle,
		StatusRunning,
		StatusStopping,
		StatusResetting,
		StatusDeleting,
		StatusDeletingInclEmittedEvents:
		return true
	default:
		return false
	}
}
