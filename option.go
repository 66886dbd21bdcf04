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
	"os"
	"time"

	"github.com/tochemey/goakt/v2/log"

	"github.com/tochemey/projector/eventstore"
)

const (
	// DefaultLockTimeout is the default duration of the projection lock
	DefaultLockTimeout = time.Second
	// DefaultPersistBlockSize is the default number of handled events between two checkpoints
	DefaultPersistBlockSize = 1000
	// DefaultSleep is the default pause when a pass did not find any new event
	DefaultSleep = 100 * time.Millisecond
	// DefaultCacheSize is the default capacity of the linked streams cache
	DefaultCacheSize = 1000
	// DefaultProjectionsCollection is the default collection holding the projections documents
	DefaultProjectionsCollection = "projections"
)

// settings holds the configuration shared by Projector and Manager
type settings struct {
	logger                log.Logger
	lockTimeout           time.Duration
	persistBlockSize      int
	sleep                 time.Duration
	cacheSize             int
	projectionsCollection string
	streamsCollection     string
	clock                 func() time.Time
}

func defaultSettings() *settings {
	return &settings{
		logger:                log.New(log.ErrorLevel, os.Stderr),
		lockTimeout:           DefaultLockTimeout,
		persistBlockSize:      DefaultPersistBlockSize,
		sleep:                 DefaultSleep,
		cacheSize:             DefaultCacheSize,
		projectionsCollection: DefaultProjectionsCollection,
		streamsCollection:     eventstore.StreamsCollection,
		clock:                 time.Now,
	}
}

// sanitize restores the default of every invalid value
func (s *settings) sanitize() {
	if s.logger == nil {
		s.logger = log.New(log.ErrorLevel, os.Stderr)
	}
	if s.lockTimeout <= 0 {
		s.lockTimeout = DefaultLockTimeout
	}
	if s.persistBlockSize <= 0 {
		s.persistBlockSize = DefaultPersistBlockSize
	}
	if s.sleep < 0 {
		s.sleep = DefaultSleep
	}
	if s.cacheSize <= 0 {
		s.cacheSize = DefaultCacheSize
	}
	if s.projectionsCollection == "" {
		s.projectionsCollection = DefaultProjectionsCollection
	}
	if s.streamsCollection == "" {
		s.streamsCollection = eventstore.StreamsCollection
	}
	if s.clock == nil {
		s.clock = time.Now
	}
}

// Option is the interface that applies a configuration option.
type Option interface {
	// Apply sets the Option value of a config.
	Apply(s *settings)
}

var _ Option = OptionFunc(nil)

// OptionFunc implements the Option interface.
type OptionFunc func(s *settings)

// Apply applies the option
func (f OptionFunc) Apply(s *settings) {
	f(s)
}

// WithLogger sets the logger
func WithLogger(logger log.Logger) Option {
	return OptionFunc(func(s *settings) {
		s.logger = logger
	})
}

// WithLockTimeout sets how long the projection lock is held
// before another process can take over the projection
func WithLockTimeout(timeout time.Duration) Option {
	return OptionFunc(func(s *settings) {
		s.lockTimeout = timeout
	})
}

// WithPersistBlockSize sets the number of handled events after which
// the projection checkpoint is persisted
func WithPersistBlockSize(size int) Option {
	return OptionFunc(func(s *settings) {
		s.persistBlockSize = size
	})
}

// WithSleep sets the pause taken when a pass found no new event
func WithSleep(sleep time.Duration) Option {
	return OptionFunc(func(s *settings) {
		s.sleep = sleep
	})
}

// WithCacheSize sets the capacity of the cache remembering the streams
// the projection already linked events to
func WithCacheSize(size int) Option {
	return OptionFunc(func(s *settings) {
		s.cacheSize = size
	})
}

// WithProjectionsCollection sets the collection holding the projections documents
func WithProjectionsCollection(collection string) Option {
	return OptionFunc(func(s *settings) {
		s.projectionsCollection = collection
	})
}

// WithStreamsCollection sets the collection holding the streams catalog
func WithStreamsCollection(collection string) Option {
	return OptionFunc(func(s *settings) {
		s.streamsCollection = collection
	})
}

// withClock overrides the time source. Used in tests
func withClock(clock func() time.Time) Option {
	return OptionFunc(func(s *settings) {
		s.clock = clock
	})
}
