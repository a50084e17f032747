package server

import (
	"fmt"
	"net"
	"time"
)

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

// localIPv4 returns the first non-loopback IPv4 address of an up interface,
// or "" when there is none.
func localIPv4() string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return ""
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipnet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			if ip4 := ipnet.IP.To4(); ip4 != nil {
				return ip4.String()
			}
		}
	}
	return ""
}

// advertisedAddr is the host:port viewers on the LAN should dial.
func advertisedAddr(port int) string {
	host := localIPv4()
	if host == "" {
		host = "localhost"
	}
	return net.JoinHostPort(host, fmt.Sprint(port))
}
