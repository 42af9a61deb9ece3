// Copyright (c) 2021 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package webwx

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the Prometheus collectors updated by a client. All methods are safe to call on a nil *Metrics.
type Metrics struct {
	requestDuration  *prometheus.HistogramVec
	requestRetries   *prometheus.CounterVec
	syncChecks       *prometheus.CounterVec
	messagesReceived *prometheus.CounterVec
	messagesSent     *prometheus.CounterVec
	handlerFailures  *prometheus.CounterVec
	queueLength      prometheus.Gauge
}

// NewMetrics creates the client collectors and registers them in the given registerer.
// Collectors that are already registered, e.g. by another client in the same process, are reused.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "webwx",
			Name:      "request_duration_seconds",
			Help:      "Duration of requests to the web endpoints.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint", "status"}),
		requestRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "webwx",
			Name:      "request_retries_total",
			Help:      "Number of retried requests.",
		}, []string{"endpoint"}),
		syncChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "webwx",
			Name:      "sync_checks_total",
			Help:      "Number of sync checks by result.",
		}, []string{"result"}),
		messagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "webwx",
			Name:      "messages_received_total",
			Help:      "Number of dispatched messages by type.",
		}, []string{"type"}),
		messagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "webwx",
			Name:      "messages_sent_total",
			Help:      "Number of sent messages by type.",
		}, []string{"type"}),
		handlerFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "webwx",
			Name:      "handler_failures_total",
			Help:      "Number of message handler failures.",
		}, []string{"kind"}),
		queueLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "webwx",
			Name:      "ingestion_queue_length",
			Help:      "Number of received messages waiting to be dispatched.",
		}),
	}
	var err error
	if m.requestDuration, err = register(reg, m.requestDuration); err != nil {
		return nil, err
	} else if m.requestRetries, err = register(reg, m.requestRetries); err != nil {
		return nil, err
	} else if m.syncChecks, err = register(reg, m.syncChecks); err != nil {
		return nil, err
	} else if m.messagesReceived, err = register(reg, m.messagesReceived); err != nil {
		return nil, err
	} else if m.messagesSent, err = register(reg, m.messagesSent); err != nil {
		return nil, err
	} else if m.handlerFailures, err = register(reg, m.handlerFailures); err != nil {
		return nil, err
	} else if m.queueLength, err = register(reg, m.queueLength); err != nil {
		return nil, err
	}
	return m, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	var already prometheus.AlreadyRegisteredError
	if errors.As(err, &already) {
		existing, ok := already.ExistingCollector.(T)
		if ok {
			return existing, nil
		}
	}
	return collector, err
}

func (m *Metrics) observeRequest(endpoint, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.requestDuration.WithLabelValues(endpoint, status).Observe(dur.Seconds())
}

func (m *Metrics) incRequestRetry(endpoint string) {
	if m == nil {
		return
	}
	m.requestRetries.WithLabelValues(endpoint).Inc()
}

func (m *Metrics) incSyncCheck(result string) {
	if m == nil {
		return
	}
	m.syncChecks.WithLabelValues(result).Inc()
}

func (m *Metrics) incReceived(msgType string) {
	if m == nil {
		return
	}
	m.messagesReceived.WithLabelValues(msgType).Inc()
}

func (m *Metrics) incSent(msgType string) {
	if m == nil {
		return
	}
	m.messagesSent.WithLabelValues(msgType).Inc()
}

func (m *Metrics) incHandlerFailure(kind string) {
	if m == nil {
		return
	}
	m.handlerFailures.WithLabelValues(kind).Inc()
}

func (m *Metrics) setQueueLength(n int) {
	if m == nil {
		return
	}
	m.queueLength.Set(float64(n))
}
