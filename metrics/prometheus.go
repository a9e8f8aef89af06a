// Copyright 2017 Google Inc. All Rights Reserved.
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

package metrics

import (
	"fmt"

	"github.com/golang/glog"
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusFactory is a Factory backed by the default Prometheus
// registry.
type PrometheusFactory struct {
	// Prefix is prepended to every metric name, e.g. "ctnode_".
	Prefix string
}

// NewCounter creates a Counter backed by Prometheus.
func (f PrometheusFactory) NewCounter(name, help string, labelNames ...string) Counter {
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{Name: f.Prefix + name, Help: help}, labelNames)
	prometheus.MustRegister(vec)
	return &promCounter{labelNames: labelNames, vec: vec}
}

// NewGauge creates a Gauge backed by Prometheus.
func (f PrometheusFactory) NewGauge(name, help string, labelNames ...string) Gauge {
	vec := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: f.Prefix + name, Help: help}, labelNames)
	prometheus.MustRegister(vec)
	return &promGauge{labelNames: labelNames, vec: vec}
}

// NewHistogram creates a Histogram backed by Prometheus, using the
// default Prometheus bucket boundaries.
func (f PrometheusFactory) NewHistogram(name, help string, labelNames ...string) Histogram {
	vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: f.Prefix + name, Help: help}, labelNames)
	prometheus.MustRegister(vec)
	return &promHistogram{labelNames: labelNames, vec: vec}
}

type promCounter struct {
	labelNames []string
	vec        *prometheus.CounterVec
}

func (c *promCounter) Inc(labelVals ...string) {
	labels, err := labelsFor(c.labelNames, labelVals)
	if err != nil {
		glog.Error(err)
		return
	}
	c.vec.With(labels).Inc()
}

func (c *promCounter) Add(val float64, labelVals ...string) {
	labels, err := labelsFor(c.labelNames, labelVals)
	if err != nil {
		glog.Error(err)
		return
	}
	c.vec.With(labels).Add(val)
}

type promGauge struct {
	labelNames []string
	vec        *prometheus.GaugeVec
}

func (g *promGauge) Set(val float64, labelVals ...string) {
	labels, err := labelsFor(g.labelNames, labelVals)
	if err != nil {
		glog.Error(err)
		return
	}
	g.vec.With(labels).Set(val)
}

type promHistogram struct {
	labelNames []string
	vec        *prometheus.HistogramVec
}

func (h *promHistogram) Observe(val float64, labelVals ...string) {
	labels, err := labelsFor(h.labelNames, labelVals)
	if err != nil {
		glog.Error(err)
		return
	}
	h.vec.With(labels).Observe(val)
}

func labelsFor(names, values []string) (prometheus.Labels, error) {
	if len(names) != len(values) {
		return nil, fmt.Errorf("metrics: got %d label values for %d label names", len(values), len(names))
	}
	if len(names) == 0 {
		return nil, nil
	}
	labels := make(prometheus.Labels, len(names))
	for i, name := range names {
		labels[name] = values[i]
	}
	return labels, nil
}
