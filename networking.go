package bcilog

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/lorenzosaino/go-sysctl"
)

const rmemMaxKey = "net.core.rmem_max"

// ListenUDP binds the ingest socket and asks for a receive buffer of rcvbuf
// bytes (none if rcvbuf <= 0). The kernel silently caps the buffer at
// net.core.rmem_max, so a request above that limit is logged as a problem.
func ListenUDP(address string, rcvbuf int) (*net.UDPConn, error) {
	laddr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, err
	}
	if rcvbuf > 0 {
		checkRmemMax(rcvbuf)
		if err := conn.SetReadBuffer(rcvbuf); err != nil {
			conn.Close()
			return nil, fmt.Errorf("setting UDP receive buffer to %d bytes: %w", rcvbuf, err)
		}
	}
	return conn, nil
}

// RmemMax returns the kernel's maximum socket receive buffer size.
func RmemMax() (int, error) {
	val, err := sysctl.Get(rmemMaxKey)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(val))
}

func checkRmemMax(rcvbuf int) {
	limit, err := RmemMax()
	if err != nil {
		// Not Linux, or no /proc: nothing to compare against.
		return
	}
	if rcvbuf > limit {
		ProblemLogger.Printf("Requested UDP receive buffer of %d bytes exceeds %s=%d; "+
			"the kernel will cap it. Raise it with `sysctl -w %s=%d`.\n",
			rcvbuf, rmemMaxKey, limit, rmemMaxKey, rcvbuf)
	}
}
