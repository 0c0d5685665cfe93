package network

import (
	"fmt"
	"net"
	"strconv"
)

// Determines the local interface the kernel would route vehicle traffic through
func InterfaceForDestination(host string, port int) (ifaceName string, localIP net.IP, err error) {
	destIP := net.ParseIP(host)
	if destIP == nil {
		err = fmt.Errorf("invalid destination address: %s", host)
		return
	}

	// Connected datagram socket sends nothing, it only resolves the route
	conn, err := net.Dial("udp4", net.JoinHostPort(destIP.String(), strconv.Itoa(port)))
	if err != nil {
		err = fmt.Errorf("failed to find route to %s: %w", host, err)
		return
	}
	defer conn.Close()

	localIP = conn.LocalAddr().(*net.UDPAddr).IP

	iface, err := interfaceForAddress(localIP)
	if err != nil {
		return
	}
	ifaceName = iface.Name
	return
}

// Retrieves the network interface holding a specific address
func interfaceForAddress(address net.IP) (iface *net.Interface, err error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		err = fmt.Errorf("failed to list interfaces: %v", err)
		return
	}

	for i := range ifaces {
		addrs, addrErr := ifaces[i].Addrs()
		if addrErr != nil {
			continue
		}

		for _, a := range addrs {
			ipNet, ok := a.(*net.IPNet)
			if ok && ipNet.IP.Equal(address) {
				iface = &ifaces[i]
				return
			}
		}
	}

	err = fmt.Errorf("no matching interface found for address %v", address)
	return
}
