/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package clock abstracts the one-shot deferred callbacks used to debounce
// guide visibility. Real schedules on wall time; Manual is driven explicitly
// by tests and by trace replay.
package clock

import (
	"sort"
	"sync"
	"time"
)

// Scheduler runs fn once after the given delay.
type Scheduler interface {
	ScheduleOnce(after time.Duration, fn func())
}

// Real schedules callbacks with time.AfterFunc. Callbacks run on their own
// goroutine, so callers must guard shared state.
type Real struct{}

func (Real) ScheduleOnce(after time.Duration, fn func()) {
	if after < 0 {
		after = 0
	}
	time.AfterFunc(after, fn)
}

type pending struct {
	at  time.Duration
	seq int
	fn  func()
}

// Manual is a virtual clock. Time only moves on Advance or AdvanceTo, and
// due callbacks run synchronously on the caller's goroutine in deadline order.
type Manual struct {
	mu    sync.Mutex
	now   time.Duration
	seq   int
	queue []pending
}

func NewManual() *Manual { return &Manual{} }

func (m *Manual) ScheduleOnce(after time.Duration, fn func()) {
	if after < 0 {
		after = 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	m.queue = append(m.queue, pending{at: m.now + after, seq: m.seq, fn: fn})
}

// Now returns the virtual time elapsed since the clock was created.
func (m *Manual) Now() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Pending reports how many callbacks are waiting to fire.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// Advance moves time forward by d and returns the number of callbacks fired.
func (m *Manual) Advance(d time.Duration) int {
	return m.AdvanceTo(m.Now() + d)
}

// AdvanceTo moves time forward to t (never backwards) firing every callback
// whose deadline is at or before t. Callbacks scheduled by a firing callback
// run in the same call when they fall due before t.
func (m *Manual) AdvanceTo(t time.Duration) int {
	fired := 0
	for {
		m.mu.Lock()
		if len(m.queue) == 0 {
			break
		}
		sort.Slice(m.queue, func(i, j int) bool {
			if m.queue[i].at == m.queue[j].at {
				return m.queue[i].seq < m.queue[j].seq
			}
			return m.queue[i].at < m.queue[j].at
		})
		next := m.queue[0]
		if next.at > t {
			break
		}
		m.queue = m.queue[1:]
		if next.at > m.now {
			m.now = next.at
		}
		m.mu.Unlock()
		next.fn()
		fired++
	}
	if t > m.now {
		m.now = t
	}
	m.mu.Unlock()
	return fired
}
