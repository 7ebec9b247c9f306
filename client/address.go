// Copyright 2025 The tntgo Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package client

import (
	"fmt"
	"strings"
)

// Transport identifies how an address string should be dialed.
//
// This mirrors the teacher's netopts.go single-source-of-truth
// dispatch (netKind -> defaultsFor(kind)): there, a transport kind
// picks a (Protocol, ByteOrder) pair; here it picks a (net.Dial
// network, host) pair. Same idiom, generalized from picking a framer
// configuration to picking a dial target.
type Transport uint8

const (
	TransportTCP Transport = iota
	TransportUnix
)

// endpoint is an address string after scheme detection: a dial-ready
// network/address pair.
type endpoint struct {
	transport Transport
	network   string // "tcp" or "unix"
	address   string // host:port, or socket path
}

// parseAddress recognizes the "tcp://host:port" and "unix:///path"
// forms spec.md §6 calls for. A bare "host:port" with no scheme
// defaults to TCP, matching how most IPROTO clients accept a plain
// address.
func parseAddress(addr string) (endpoint, error) {
	switch {
	case strings.HasPrefix(addr, "tcp://"):
		return endpoint{transport: TransportTCP, network: "tcp", address: strings.TrimPrefix(addr, "tcp://")}, nil
	case strings.HasPrefix(addr, "unix://"):
		return endpoint{transport: TransportUnix, network: "unix", address: strings.TrimPrefix(addr, "unix://")}, nil
	case strings.Contains(addr, "://"):
		return endpoint{}, fmt.Errorf("client: unsupported address scheme in %q", addr)
	default:
		return endpoint{transport: TransportTCP, network: "tcp", address: addr}, nil
	}
}
