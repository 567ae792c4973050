// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package probe

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func replied(seq int, rtt time.Duration) Sample {
	return Sample{Seq: seq, Outcome: OutcomeReplied, RTT: rtt, TTL: 57}
}

func lost(seq int) Sample {
	return Sample{Seq: seq, Outcome: OutcomeTimeout}
}

func TestWindow_Stats(t *testing.T) {
	ms := time.Millisecond
	tests := []struct {
		name       string
		capacity   int
		samples    []Sample
		wantLoss   float64
		wantMin    time.Duration
		wantAvg    time.Duration
		wantMax    time.Duration
		wantJitter time.Duration
		wantLen    int
	}{
		{
			name:     "empty window",
			capacity: 10,
		},
		{
			name:     "jitter over adjacent replies",
			capacity: 10,
			samples: []Sample{
				replied(1, 10*ms), replied(2, 12*ms), replied(3, 11*ms), replied(4, 50*ms), replied(5, 13*ms),
			},
			wantMin:    10 * ms,
			wantAvg:    19200 * time.Microsecond,
			wantMax:    50 * ms,
			wantJitter: 19750 * time.Microsecond,
			wantLen:    5,
		},
		{
			name:     "lost sample breaks jitter pair",
			capacity: 10,
			samples: []Sample{
				replied(1, 10*ms), lost(2), replied(3, 30*ms), replied(4, 20*ms),
			},
			wantLoss:   25,
			wantMin:    10 * ms,
			wantAvg:    20 * ms,
			wantMax:    30 * ms,
			wantJitter: 10 * ms,
			wantLen:    4,
		},
		{
			name:     "icmp errors count as loss",
			capacity: 4,
			samples: []Sample{
				replied(1, 5*ms),
				{Seq: 2, Outcome: OutcomeICMPError, ICMPType: 3, ICMPCode: 1},
				lost(3),
				replied(4, 7*ms),
			},
			wantLoss:   50,
			wantMin:    5 * ms,
			wantAvg:    6 * ms,
			wantMax:    7 * ms,
			wantJitter: 0,
			wantLen:    4,
		},
		{
			name:     "window evicts oldest samples",
			capacity: 3,
			samples: []Sample{
				lost(1), lost(2), replied(3, 4*ms), replied(4, 6*ms), replied(5, 8*ms),
			},
			wantLoss:   0,
			wantMin:    4 * ms,
			wantAvg:    6 * ms,
			wantMax:    8 * ms,
			wantJitter: 2 * ms,
			wantLen:    3,
		},
		{
			name:     "abandoned probes stay out of the window",
			capacity: 3,
			samples: []Sample{
				replied(1, 4*ms), {Seq: 2, Outcome: OutcomeAbandoned},
			},
			wantMin: 4 * ms,
			wantAvg: 4 * ms,
			wantMax: 4 * ms,
			wantLen: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewWindow(tt.capacity)
			for _, s := range tt.samples {
				w.MarkSent()
				w.Add(s)
			}

			st := w.Stats()
			assert.InDelta(t, tt.wantLoss, st.Loss, 0.001)
			assert.Equal(t, tt.wantMin, st.Min, "min")
			assert.Equal(t, tt.wantAvg, st.Avg, "avg")
			assert.Equal(t, tt.wantMax, st.Max, "max")
			assert.Equal(t, tt.wantJitter, st.Jitter, "jitter")
			assert.Equal(t, tt.wantLen, st.Samples)
			assert.Len(t, st.History, tt.wantLen)
			assert.Equal(t, uint64(len(tt.samples)), st.Sent)
		})
	}
}

func TestWindow_LossOverWindow(t *testing.T) {
	// N probes of which K are answered yield a loss of (N-K)/N.
	const n, k = 20, 15
	w := NewWindow(n)
	for i := range n {
		if i < k {
			w.Add(replied(i, time.Millisecond))
			continue
		}
		w.Add(lost(i))
	}

	st := w.Stats()
	assert.InDelta(t, float64(n-k)/float64(n)*100, st.Loss, 0.001)
	assert.Equal(t, uint64(k), st.Received)
	assert.Equal(t, uint64(n-k), st.Timeouts)
}

func TestWindow_Counters(t *testing.T) {
	w := NewWindow(2)
	from := netip.MustParseAddr("10.0.0.1")
	sent := time.Now()
	w.Add(replied(1, 3*time.Millisecond))
	w.Add(Sample{Seq: 2, Outcome: OutcomeICMPError, ICMPType: 3, ICMPCode: 13, From: from, Sent: sent})
	w.Add(lost(3))
	w.Add(Sample{Seq: 4, Outcome: OutcomeAbandoned})

	st := w.Stats()
	assert.Equal(t, uint64(1), st.Received)
	assert.Equal(t, uint64(1), st.ICMPErrors)
	assert.Equal(t, uint64(1), st.Timeouts)
	assert.Equal(t, uint64(1), st.Abandoned)
	assert.Equal(t, 3*time.Millisecond, st.Last)
	assert.Equal(t, 57, st.ReplyTTL)
	assert.Equal(t, &ICMPError{Type: 3, Code: 13, From: from, At: sent}, st.LastError)
	assert.Equal(t, []time.Duration{0, 0}, st.History)

	samples := w.Samples()
	assert.Equal(t, 2, samples[0].Seq)
	assert.Equal(t, 3, samples[1].Seq)
}

func TestWindow_StatsAreCopies(t *testing.T) {
	w := NewWindow(5)
	w.Add(replied(1, time.Millisecond))
	st := w.Stats()
	w.Add(replied(2, 2*time.Millisecond))

	assert.Equal(t, []time.Duration{time.Millisecond}, st.History)
	assert.Equal(t, 1, st.Samples)
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "replied", OutcomeReplied.String())
	assert.Equal(t, "timeout", OutcomeTimeout.String())
	assert.Equal(t, "icmp-error", OutcomeICMPError.String())
	assert.Equal(t, "abandoned", OutcomeAbandoned.String())
	assert.Equal(t, "unknown", Outcome(0).String())
}
