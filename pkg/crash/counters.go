/*
 * Copyright (c) 2020. Ant Group. All rights reserved.
 *
 * SPDX-License-Identifier: Apache-2.0
 */

package crash

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/containerd/honggo/pkg/metrics/registry"
)

// SharedCounters holds the process-wide atomic counters of spec.md §3/§4.12.
// All updates are atomic; the crash counters only ever increase, while
// dynIterExpire is also cleared by ClearDynIterExpireHighBits and
// ResetDynIterExpire. No inter-counter ordering is required or observable.
type SharedCounters struct {
	crashesTotal       uint64
	uniqueCrashes      uint64
	blacklistedCrashes uint64
	dynIterExpire      uint64
}

// subMask clears the two most significant bits of dynIterExpire, per
// spec.md §4.8 step 11 ("Clear the two most significant bits ... atomic
// AND with SUB_MASK").
const subMask uint64 = ^(uint64(3) << 62)

// NewSharedCounters builds a zeroed counter set and registers it with the
// shared Prometheus registry (pkg/metrics/registry), the same "one
// registry, metrics owned by the data type" split the teacher uses in
// pkg/metrics/data/*.go.
func NewSharedCounters() *SharedCounters {
	c := &SharedCounters{}
	registry.Registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{Name: "honggo_crashes_total", Help: "Total crash stop events observed."},
		func() float64 { return float64(c.CrashesTotal()) },
	))
	registry.Registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{Name: "honggo_unique_crashes", Help: "Crashes persisted as unique."},
		func() float64 { return float64(c.UniqueCrashes()) },
	))
	registry.Registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{Name: "honggo_blacklisted_crashes", Help: "Crashes dropped by the blacklist."},
		func() float64 { return float64(c.BlacklistedCrashes()) },
	))
	return c
}

func (c *SharedCounters) IncCrashesTotal() uint64 {
	return atomic.AddUint64(&c.crashesTotal, 1)
}

func (c *SharedCounters) CrashesTotal() uint64 {
	return atomic.LoadUint64(&c.crashesTotal)
}

func (c *SharedCounters) IncUniqueCrashes() uint64 {
	return atomic.AddUint64(&c.uniqueCrashes, 1)
}

func (c *SharedCounters) UniqueCrashes() uint64 {
	return atomic.LoadUint64(&c.uniqueCrashes)
}

func (c *SharedCounters) IncBlacklistedCrashes() uint64 {
	return atomic.AddUint64(&c.blacklistedCrashes, 1)
}

func (c *SharedCounters) BlacklistedCrashes() uint64 {
	return atomic.LoadUint64(&c.blacklistedCrashes)
}

// ClearDynIterExpireHighBits implements spec.md §4.8 step 11.
func (c *SharedCounters) ClearDynIterExpireHighBits() {
	for {
		old := atomic.LoadUint64(&c.dynIterExpire)
		if atomic.CompareAndSwapUint64(&c.dynIterExpire, old, old&subMask) {
			return
		}
	}
}

// ResetDynIterExpire zeroes the counter, done whenever a unique crash is
// actually persisted (spec.md §4.9 "reset dynFile counter").
func (c *SharedCounters) ResetDynIterExpire() {
	atomic.StoreUint64(&c.dynIterExpire, 0)
}

func (c *SharedCounters) DynIterExpire() uint64 {
	return atomic.LoadUint64(&c.dynIterExpire)
}
