// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/telekom/netops/pkg/probe"
)

// Collector exports snapshots as prometheus metrics. Series of sessions
// missing from a snapshot are removed.
type Collector struct {
	pingRTT    *prometheus.GaugeVec
	pingJitter *prometheus.GaugeVec
	pingLoss   *prometheus.GaugeVec
	pingSent   *prometheus.GaugeVec

	hopRTT  *prometheus.GaugeVec
	hopLoss *prometheus.GaugeVec

	capture   *prometheus.GaugeVec
	router    *prometheus.GaugeVec
	transport *prometheus.GaugeVec

	pingHandles map[probe.Handle]struct{}
	// mtrHops holds the hop series exported per MTR session by the last update.
	mtrHops map[probe.Handle]map[hopSeries]struct{}
}

// hopSeries is the label set of one MTR hop after the handle.
type hopSeries struct {
	target, ttl, addr string
}

// NewCollector creates the netops metric collectors.
func NewCollector() *Collector {
	return &Collector{
		pingRTT: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "netops_ping_rtt_seconds",
				Help: "Average round trip time over the sample window of a ping target.",
			},
			[]string{"handle", "target"},
		),
		pingJitter: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "netops_ping_jitter_seconds",
				Help: "Mean absolute difference of consecutive round trip times of a ping target.",
			},
			[]string{"handle", "target"},
		),
		pingLoss: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "netops_ping_loss_ratio",
				Help: "Share of lost probes over the sample window of a ping target.",
			},
			[]string{"handle", "target"},
		),
		pingSent: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "netops_ping_probes",
				Help: "Number of probes of a ping target by outcome.",
			},
			[]string{"handle", "target", "outcome"},
		),
		hopRTT: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "netops_mtr_hop_rtt_seconds",
				Help: "Average round trip time of an MTR hop.",
			},
			[]string{"handle", "target", "ttl", "addr"},
		),
		hopLoss: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "netops_mtr_hop_loss_ratio",
				Help: "Share of lost probes of an MTR hop.",
			},
			[]string{"handle", "target", "ttl", "addr"},
		),
		capture: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "netops_capture_frames",
				Help: "Frame counters of the current capture session.",
			},
			[]string{"counter"},
		),
		router: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "netops_router_replies",
				Help: "Replies the demultiplexer could not deliver, by reason.",
			},
			[]string{"reason"},
		),
		transport: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "netops_transport_resources",
				Help: "Privileged resources held by the transport.",
			},
			[]string{"resource"},
		),
		pingHandles: map[probe.Handle]struct{}{},
		mtrHops:     map[probe.Handle]map[hopSeries]struct{}{},
	}
}

// GetCollectors returns all metric collectors
func (c *Collector) GetCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		c.pingRTT,
		c.pingJitter,
		c.pingLoss,
		c.pingSent,
		c.hopRTT,
		c.hopLoss,
		c.capture,
		c.router,
		c.transport,
	}
}

// Register registers all collectors with reg.
func (c *Collector) Register(reg prometheus.Registerer) error {
	for _, col := range c.GetCollectors() {
		if err := reg.Register(col); err != nil {
			return err
		}
	}
	return nil
}

// Update sets all metrics from s. It is called by the bus only.
func (c *Collector) Update(s *Snapshot) {
	seen := make(map[probe.Handle]struct{}, len(s.Ping))
	for _, t := range s.Ping {
		seen[t.Handle] = struct{}{}
		h, target := t.Handle.String(), t.Host
		c.pingRTT.WithLabelValues(h, target).Set(t.Stats.Avg.Seconds())
		c.pingJitter.WithLabelValues(h, target).Set(t.Stats.Jitter.Seconds())
		c.pingLoss.WithLabelValues(h, target).Set(t.Stats.Loss / 100)
		c.pingSent.WithLabelValues(h, target, "sent").Set(float64(t.Stats.Sent))
		c.pingSent.WithLabelValues(h, target, "received").Set(float64(t.Stats.Received))
		c.pingSent.WithLabelValues(h, target, "timeout").Set(float64(t.Stats.Timeouts))
		c.pingSent.WithLabelValues(h, target, "icmp_error").Set(float64(t.Stats.ICMPErrors))
	}
	for h := range c.pingHandles {
		if _, ok := seen[h]; !ok {
			c.removePing(h)
		}
	}
	c.pingHandles = seen

	hops := make(map[probe.Handle]map[hopSeries]struct{}, len(s.MTR))
	for _, t := range s.MTR {
		h := t.Handle.String()
		current := make(map[hopSeries]struct{}, len(t.Hops))
		for _, hop := range t.Hops {
			series := hopSeries{target: t.Host, ttl: strconv.Itoa(hop.TTL)}
			if hop.Addr.IsValid() {
				series.addr = hop.Addr.String()
			}
			current[series] = struct{}{}
			c.hopRTT.WithLabelValues(h, series.target, series.ttl, series.addr).Set(hop.Stats.Avg.Seconds())
			c.hopLoss.WithLabelValues(h, series.target, series.ttl, series.addr).Set(hop.Stats.Loss / 100)
		}
		// Hops may be pruned or change address between rounds.
		for series := range c.mtrHops[t.Handle] {
			if _, ok := current[series]; !ok {
				c.hopRTT.DeleteLabelValues(h, series.target, series.ttl, series.addr)
				c.hopLoss.DeleteLabelValues(h, series.target, series.ttl, series.addr)
			}
		}
		hops[t.Handle] = current
	}
	for h := range c.mtrHops {
		if _, ok := hops[h]; !ok {
			c.removeMTR(h)
		}
	}
	c.mtrHops = hops

	cs := s.Capture
	c.capture.WithLabelValues("buffered").Set(float64(len(cs.Packets)))
	c.capture.WithLabelValues("dropped").Set(float64(cs.Dropped))
	c.capture.WithLabelValues("malformed").Set(float64(cs.Malformed))
	c.capture.WithLabelValues("filtered").Set(float64(cs.Filtered))
	c.capture.WithLabelValues("overruns").Set(float64(cs.Overruns))
	c.capture.WithLabelValues("total").Set(float64(cs.Traffic.Frames))

	c.router.WithLabelValues("unmatched").Set(float64(s.Router.Unmatched))
	c.router.WithLabelValues("overflow").Set(float64(s.Router.Overflow))

	c.transport.WithLabelValues("icmp_socket").Set(float64(s.Transport.OpenSockets))
	held := 0.0
	if s.Transport.CaptureHeld {
		held = 1
	}
	c.transport.WithLabelValues("capture_handle").Set(held)
}

func (c *Collector) removePing(h probe.Handle) {
	labels := prometheus.Labels{"handle": h.String()}
	c.pingRTT.DeletePartialMatch(labels)
	c.pingJitter.DeletePartialMatch(labels)
	c.pingLoss.DeletePartialMatch(labels)
	c.pingSent.DeletePartialMatch(labels)
}

func (c *Collector) removeMTR(h probe.Handle) {
	labels := prometheus.Labels{"handle": h.String()}
	c.hopRTT.DeletePartialMatch(labels)
	c.hopLoss.DeletePartialMatch(labels)
}
