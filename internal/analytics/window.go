// Pelorus - Voyage Tracking and Maritime Risk-Zone Alerting
// Copyright 2026 Pelorus Maritime
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pelorus-maritime/pelorus

package analytics

import (
	"sync"
	"time"
)

// slidingWindowCounter is a memory-efficient rolling counter. It
// divides the window into buckets and sums them, so memory stays O(k)
// regardless of event volume and counts age out bucket by bucket.
//
// Complexity: Increment O(1), Count O(k) with k = number of buckets.
type slidingWindowCounter struct {
	mu         sync.Mutex
	buckets    []int64
	bucketSize time.Duration
	numBuckets int
	current    int
	lastUpdate time.Time
	now        func() time.Time
}

// newSlidingWindowCounter creates a counter over the given window.
// now overrides the clock for tests; nil means time.Now.
func newSlidingWindowCounter(windowSize time.Duration, numBuckets int, now func() time.Time) *slidingWindowCounter {
	if numBuckets <= 0 {
		numBuckets = 10
	}
	if windowSize <= 0 {
		windowSize = 5 * time.Minute
	}
	if now == nil {
		now = time.Now
	}

	return &slidingWindowCounter{
		buckets:    make([]int64, numBuckets),
		bucketSize: windowSize / time.Duration(numBuckets),
		numBuckets: numBuckets,
		lastUpdate: now(),
		now:        now,
	}
}

// Increment adds delta to the current bucket.
func (sw *slidingWindowCounter) Increment(delta int64) {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	sw.advance()
	sw.buckets[sw.current] += delta
}

// Count returns the sum of all buckets in the window.
func (sw *slidingWindowCounter) Count() int64 {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	sw.advance()

	var total int64
	for _, count := range sw.buckets {
		total += count
	}
	return total
}

// advance moves the window forward based on elapsed time.
// Must be called with lock held.
func (sw *slidingWindowCounter) advance() {
	now := sw.now()
	bucketsElapsed := int(now.Sub(sw.lastUpdate) / sw.bucketSize)
	if bucketsElapsed <= 0 {
		return
	}

	if bucketsElapsed >= sw.numBuckets {
		for i := range sw.buckets {
			sw.buckets[i] = 0
		}
		sw.current = 0
	} else {
		for i := 0; i < bucketsElapsed; i++ {
			sw.current = (sw.current + 1) % sw.numBuckets
			sw.buckets[sw.current] = 0
		}
	}

	sw.lastUpdate = now
}
