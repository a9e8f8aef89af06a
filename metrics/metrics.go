// Copyright 2017 Google LLC. All Rights Reserved.
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

// Package metrics declares the latency-sampling sink the serving
// handler's outer wrapper publishes through.
package metrics

// Factory creates named metrics. A Factory is shared across an entire
// process; metric names must be registered only once.
type Factory interface {
	NewCounter(name, help string, labelNames ...string) Counter
	NewGauge(name, help string, labelNames ...string) Gauge
	NewHistogram(name, help string, labelNames ...string) Histogram
}

// Counter is a metric whose value only increases.
type Counter interface {
	Inc(labelVals ...string)
	Add(val float64, labelVals ...string)
}

// Gauge is a metric whose value may move in either direction.
type Gauge interface {
	Set(val float64, labelVals ...string)
}

// Histogram tracks the distribution of a collection of observations,
// used for per-handler request latency.
type Histogram interface {
	Observe(val float64, labelVals ...string)
}
