// Package transport owns the privileged network resources of NetOps: one raw
// ICMP socket shared by every ping and MTR stream, and one link-layer capture
// handle held exclusively by the capture pipeline.
//
// No other package opens a raw socket. Probe streams share the [Socket] and are
// told apart by the identifier and sequence number carried in every echo
// request. ICMP errors (time exceeded, destination unreachable) quote the
// original datagram, so the correlation key is recovered from the quote.
//
// Key features:
//   - ICMP socket opened on first use and held until [Transport.Close], with per-send TTL
//   - Reply parsing for echo replies and quoted ICMP errors
//   - Cancellation that unblocks pending reads without closing the shared socket
//   - AF_PACKET capture on Linux with reads bounded by a poll interval
//   - pcap file replay via gopacket/pcapgo
//   - Error taxonomy for privilege and interface failures
//
// Only IPv4 is supported for probing.
package transport
