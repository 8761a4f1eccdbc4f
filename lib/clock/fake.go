// Copyright 2026 The Pairchat Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sort"
	"sync"
	"time"
)

// Fake returns a FakeClock initialized to the given time. Time stands
// still until Advance is called.
//
// FakeClock is safe for concurrent use by multiple goroutines.
func Fake(initial time.Time) *FakeClock {
	clock := &FakeClock{current: initial}
	clock.tickersChanged = sync.NewCond(&clock.mu)
	return clock
}

// FakeClock is a deterministic Clock for testing. Now returns a fixed
// time that moves only via Advance; tickers fire only when the clock
// advances past their next deadline.
type FakeClock struct {
	mu             sync.Mutex
	current        time.Time
	tickers        []*fakeTicker
	tickersChanged *sync.Cond
}

// fakeTicker is one registered periodic waiter.
type fakeTicker struct {
	next     time.Time
	interval time.Duration
	channel  chan time.Time

	// stopped is set by Ticker.Stop. Stopped tickers are skipped
	// during Advance.
	stopped bool
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// NewTicker registers a periodic waiter that fires when Advance moves
// the clock past its deadline. Panics if d <= 0.
func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive interval for NewTicker")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ticker := &fakeTicker{
		next:     c.current.Add(d),
		interval: d,
		channel:  make(chan time.Time, 1),
	}
	c.tickers = append(c.tickers, ticker)
	c.tickersChanged.Broadcast()

	return &Ticker{
		C: ticker.channel,
		stopFunc: func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			ticker.stopped = true
		},
	}
}

// WaitForTickers blocks until at least n tickers are registered. Use
// this to wait for a goroutine under test to create its ticker before
// calling Advance, eliminating the registration race without sleeps.
func (c *FakeClock) WaitForTickers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.liveTickersLocked() < n {
		c.tickersChanged.Wait()
	}
}

func (c *FakeClock) liveTickersLocked() int {
	live := 0
	for _, ticker := range c.tickers {
		if !ticker.stopped {
			live++
		}
	}
	return live
}

// Advance moves the clock forward by d and fires every ticker whose
// deadline falls within the new time, in deadline order. If the
// advance spans multiple intervals, a ticker fires once per interval;
// ticks that overflow the channel buffer are dropped, matching
// time.Ticker.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	target := c.current.Add(d)
	for {
		var earliest *fakeTicker
		for _, ticker := range c.tickers {
			if ticker.stopped || ticker.next.After(target) {
				continue
			}
			if earliest == nil || ticker.next.Before(earliest.next) {
				earliest = ticker
			}
		}
		if earliest == nil {
			break
		}

		c.current = earliest.next
		earliest.next = earliest.next.Add(earliest.interval)
		select {
		case earliest.channel <- c.current:
		default:
		}
	}
	c.current = target

	// Drop stopped tickers so WaitForTickers counts stay accurate.
	live := c.tickers[:0]
	for _, ticker := range c.tickers {
		if !ticker.stopped {
			live = append(live, ticker)
		}
	}
	c.tickers = live
	sort.SliceStable(c.tickers, func(i, j int) bool {
		return c.tickers[i].next.Before(c.tickers[j].next)
	})
}
