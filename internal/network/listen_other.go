//go:build !linux

package network

import "net"

// ListenConfig returns the default net.ListenConfig.
func ListenConfig() net.ListenConfig {
	return net.ListenConfig{}
}
