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
	"encoding/json"
	"fmt"
	"math"
	"sync"

	goset "github.com/deckarep/golang-set/v2"
)

// positions tracks, per stream, the number of the last consumed event.
// Streams are iterated in insertion order.
type positions struct {
	mu      sync.RWMutex
	names   []string
	offsets map[string]uint64
}

func newPositions() *positions {
	return &positions{offsets: make(map[string]uint64)}
}

// prepare adds the discovered streams at position 0.
// Streams already tracked keep their position.
func (p *positions) prepare(discovered []string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	seen := goset.NewThreadUnsafeSet[string]()
	names := make([]string, 0, len(discovered)+len(p.names))
	for _, name := range discovered {
		if seen.Add(name) {
			names = append(names, name)
		}
	}

	for _, name := range p.names {
		if seen.Add(name) {
			names = append(names, name)
		}
	}

	for _, name := range names {
		if _, ok := p.offsets[name]; !ok {
			p.offsets[name] = 0
		}
	}
	p.names = names
}

// merge applies the persisted positions on top of the tracked ones
func (p *positions) merge(persisted map[string]uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, name := range p.names {
		if offset, ok := persisted[name]; ok {
			p.offsets[name] = offset
		}
	}

	// keep a stable order for streams only known from the checkpoint
	extras := goset.NewThreadUnsafeSet[string]()
	for name := range persisted {
		if _, ok := p.offsets[name]; !ok {
			extras.Add(name)
		}
	}

	for _, name := range goset.Sorted(extras) {
		p.names = append(p.names, name)
		p.offsets[name] = persisted[name]
	}
}

func (p *positions) get(streamName string) uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.offsets[streamName]
}

func (p *positions) increment(streamName string) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.offsets[streamName]; !ok {
		p.names = append(p.names, streamName)
	}
	p.offsets[streamName]++
	return p.offsets[streamName]
}

// streams returns the tracked stream names in iteration order
func (p *positions) streams() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	names := make([]string, len(p.names))
	copy(names, p.names)
	return names
}

func (p *positions) snapshot() map[string]uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	offsets := make(map[string]uint64, len(p.offsets))
	for name, offset := range p.offsets {
		offsets[name] = offset
	}
	return offsets
}

// document returns the positions in their persisted shape
func (p *positions) document() map[string]any {
	p.mu.RLock()
	defer p.mu.RUnlock()
	document := make(map[string]any, len(p.offsets))
	for name, offset := range p.offsets {
		document[name] = offset
	}
	return document
}

func (p *positions) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.names = nil
	p.offsets = make(map[string]uint64)
}

// parsePositions reads positions back from a checkpoint document field
func parsePositions(value any) (map[string]uint64, error) {
	result := make(map[string]uint64)
	if value == nil {
		return result, nil
	}

	raw, ok := value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("invalid position type %T", value)
	}

	for name, number := range raw {
		offset, err := toOffset(number)
		if err != nil {
			return nil, fmt.Errorf("invalid position for stream=%s: %w", name, err)
		}
		result[name] = offset
	}
	return result, nil
}

func toOffset(value any) (uint64, error) {
	switch v := value.(type) {
	case uint64:
		return v, nil
	case uint:
		return uint64(v), nil
	case uint32:
		return uint64(v), nil
	case int:
		if v >= 0 {
			return uint64(v), nil
		}
	case int32:
		if v >= 0 {
			return uint64(v), nil
		}
	case int64:
		if v >= 0 {
			return uint64(v), nil
		}
	case float64:
		if v >= 0 && v == math.Trunc(v) {
			return uint64(v), nil
		}
	case json.Number:
		if n, err := v.Int64(); err == nil && n >= 0 {
			return uint64(n), nil
		}
	}
	return 0, fmt.Errorf("%v is not a valid offset", value)
}
