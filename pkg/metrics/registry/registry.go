/*
 * Copyright (c) 2021. Ant Group. All rights reserved.
 *
 * SPDX-License-Identifier: Apache-2.0
 */

// Package registry holds the process-wide Prometheus registry that the
// shared crash counters (pkg/crash) are published through.
package registry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the single collector registry for this process, mirroring
// the teacher's pkg/metrics/registry.Registry: one registry, populated by
// the constructors of the types that own the metrics
// (crash.NewSharedCounters), served by pkg/metrics.
var Registry = prometheus.NewRegistry()
