// Package probe contains the building blocks shared by the ping scheduler and
// the MTR engine: probe outcomes, rolling window statistics, the table of
// outstanding probes and the [Router] that demultiplexes replies read from the
// shared ICMP socket to the owning probe stream.
//
// Every probe stream is owned by exactly one goroutine. The router never
// touches a stream's pending table or statistics; it only forwards replies to
// the stream's inbox. The owning goroutine finalizes probes, updates its
// [Window] and publishes immutable [Stats] copies for readers.
package probe
