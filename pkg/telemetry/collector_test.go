// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/telekom/netops/pkg/mtr"
	"github.com/telekom/netops/pkg/ping"
	"github.com/telekom/netops/pkg/probe"
)

func TestCollector_Update(t *testing.T) {
	c := NewCollector()
	reg := prometheus.NewRegistry()
	require.NoError(t, c.Register(reg))

	hop := func(ttl int, addr string, loss float64) mtr.Hop {
		h := mtr.Hop{TTL: ttl, Stats: probe.Stats{Loss: loss, Avg: 10 * time.Millisecond}}
		if addr != "" {
			h.Addr = netip.MustParseAddr(addr)
		}
		return h
	}
	snap := &Snapshot{
		Ping: []ping.Target{
			{Handle: "p1", Host: "one.example", Stats: probe.Stats{Avg: 20 * time.Millisecond, Loss: 25, Sent: 4, Received: 3}},
			{Handle: "p2", Host: "two.example", Stats: probe.Stats{Avg: 30 * time.Millisecond}},
		},
		MTR: []mtr.Table{{
			Handle: "m1",
			Host:   "dst.example",
			Hops:   []mtr.Hop{hop(1, "10.0.0.1", 0), hop(2, "", 100), hop(3, "192.0.2.1", 0)},
		}},
	}
	c.Update(snap)

	assert.InDelta(t, 0.02, testutil.ToFloat64(c.pingRTT.WithLabelValues("p1", "one.example")), 1e-9)
	assert.InDelta(t, 0.25, testutil.ToFloat64(c.pingLoss.WithLabelValues("p1", "one.example")), 1e-9)
	assert.InDelta(t, 3, testutil.ToFloat64(c.pingSent.WithLabelValues("p1", "one.example", "received")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(c.hopLoss.WithLabelValues("m1", "dst.example", "2", "")), 0)
	assert.Equal(t, 3, testutil.CollectAndCount(c.hopRTT))

	// p1 stopped and the mtr session lost its third hop.
	snap = &Snapshot{
		Ping: snap.Ping[1:],
		MTR: []mtr.Table{{
			Handle: "m1",
			Host:   "dst.example",
			Hops:   []mtr.Hop{hop(1, "10.0.0.1", 0), hop(2, "", 100)},
		}},
	}
	c.Update(snap)
	assert.Equal(t, 1, testutil.CollectAndCount(c.pingRTT))
	assert.Equal(t, 4, testutil.CollectAndCount(c.pingSent))
	assert.Equal(t, 2, testutil.CollectAndCount(c.hopLoss))

	c.Update(&Snapshot{})
	assert.Zero(t, testutil.CollectAndCount(c.pingRTT))
	assert.Zero(t, testutil.CollectAndCount(c.hopRTT))
}

func TestCollector_RegisterTwice(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, NewCollector().Register(reg))
	assert.Error(t, NewCollector().Register(reg))
}

func TestCollector_HopSeriesChanges(t *testing.T) {
	hop := func(ttl int, addr string) mtr.Hop {
		return mtr.Hop{TTL: ttl, Addr: netip.MustParseAddr(addr), Stats: probe.Stats{Avg: time.Millisecond}}
	}
	table := func(hops ...mtr.Hop) *Snapshot {
		return &Snapshot{MTR: []mtr.Table{{Handle: "m1", Host: "dst.example", Hops: hops}}}
	}
	series := func(ttl, addr string) prometheus.Labels {
		return prometheus.Labels{"handle": "m1", "target": "dst.example", "ttl": ttl, "addr": addr}
	}

	tests := []struct {
		name  string
		next  *Snapshot
		kept  []prometheus.Labels
		stale []prometheus.Labels
	}{
		{
			name: "unchanged",
			next: table(hop(1, "10.0.0.1"), hop(2, "10.0.1.1")),
			kept: []prometheus.Labels{series("1", "10.0.0.1"), series("2", "10.0.1.1")},
		},
		{
			name:  "hop changed address",
			next:  table(hop(1, "10.0.0.1"), hop(2, "10.0.9.1")),
			kept:  []prometheus.Labels{series("1", "10.0.0.1"), series("2", "10.0.9.1")},
			stale: []prometheus.Labels{series("2", "10.0.1.1")},
		},
		{
			name:  "hop pruned",
			next:  table(hop(1, "10.0.0.1")),
			kept:  []prometheus.Labels{series("1", "10.0.0.1")},
			stale: []prometheus.Labels{series("2", "10.0.1.1")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCollector()
			c.Update(table(hop(1, "10.0.0.1"), hop(2, "10.0.1.1")))
			c.Update(tt.next)

			assert.Equal(t, len(tt.kept), testutil.CollectAndCount(c.hopRTT))
			for _, l := range tt.stale {
				assert.False(t, c.hopRTT.Delete(l), "stale series %v still exported", l)
			}
			for _, l := range tt.kept {
				assert.True(t, c.hopRTT.Delete(l), "series %v missing", l)
			}
		})
	}
}

func TestCollector_ScrapeDuringUpdate(t *testing.T) {
	c := NewCollector()
	reg := prometheus.NewRegistry()
	require.NoError(t, c.Register(reg))

	snap := &Snapshot{MTR: []mtr.Table{{
		Handle: "m1",
		Host:   "dst.example",
		Hops: []mtr.Hop{
			{TTL: 1, Addr: netip.MustParseAddr("10.0.0.1")},
			{TTL: 2, Addr: netip.MustParseAddr("10.0.1.1")},
			{TTL: 3, Addr: netip.MustParseAddr("192.0.2.1")},
		},
	}}}
	c.Update(snap)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				c.Update(snap)
			}
		}
	}()

	for range 500 {
		require.Equal(t, 3, testutil.CollectAndCount(c.hopRTT), "scrape saw a partial hop table")
	}
	close(stop)
	wg.Wait()
}
