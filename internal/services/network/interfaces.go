// Package network provides utilities for network interface enumeration.
package network

import (
	"net"
)

// InterfaceOption represents a usable IPv4 interface address, reported on
// the status API so operators can see where the node is reachable.
type InterfaceOption struct {
	Name      string `json:"name"`
	Address   string `json:"address"`
	Broadcast string `json:"broadcast"`
}

// ListInterfaceOptions returns the up, non-loopback IPv4 addresses with
// their directed broadcast addresses.
func ListInterfaceOptions() ([]InterfaceOption, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	var options []InterfaceOption
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			ip4 := ipNet.IP.To4()
			if ip4 == nil {
				continue
			}

			options = append(options, InterfaceOption{
				Name:      iface.Name,
				Address:   ip4.String(),
				Broadcast: broadcastAddress(ip4, ipNet.Mask).String(),
			})
		}
	}
	return options, nil
}

// PrimaryAddress returns the first non-loopback IPv4 address, or 0.0.0.0
// when none is available. Used to fill the node's ArtPollReply.
func PrimaryAddress() net.IP {
	options, err := ListInterfaceOptions()
	if err != nil || len(options) == 0 {
		return net.IPv4zero
	}
	return net.ParseIP(options[0].Address)
}

// broadcastAddress computes the directed broadcast for an IPv4 network.
func broadcastAddress(ip net.IP, mask net.IPMask) net.IP {
	if len(mask) == net.IPv6len {
		mask = mask[12:]
	}
	out := make(net.IP, len(ip))
	for i := range ip {
		out[i] = ip[i] | ^mask[i]
	}
	return out
}
