package main

import (
	"flag"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/bcilog/bcilog"
	"github.com/bcilog/bcilog/packets"
)

func dump(npack int, endpoint string) error {
	fmt.Printf("Listening on %s for the first %d packets...\n", endpoint, npack)
	address, err := net.ResolveUDPAddr("udp", endpoint)
	if err != nil {
		return err
	}
	ServerConn, err := net.ListenUDP("udp", address)
	if err != nil {
		return err
	}
	defer ServerConn.Close()

	var tracker bcilog.SequenceTracker
	buf := make([]byte, 8192)
	for range npack {
		n, _, err := ServerConn.ReadFromUDP(buf)
		if err != nil {
			return err
		}
		pack, err := packets.Decode(buf[:n])
		if err != nil {
			fmt.Printf("bad packet of %d bytes: %v\n", n, err)
			continue
		}
		note := ""
		switch out := tracker.Observe(pack.Counter); {
		case out.Duplicate:
			note = " (duplicate)"
		case out.Gap > 0:
			note = fmt.Sprintf(" (%d missing before)", out.Gap)
		}
		fmt.Printf("%s%s\n", pack.String(), note)
	}
	return nil
}

func main() {
	var npack int
	var port int
	const default_host = "0.0.0.0"
	default_port := bcilog.Ports.Ingest
	host := default_host
	flag.IntVar(&npack, "n", 10, "Number of packets to dump")
	flag.IntVar(&port, "port", default_port, "Port to monitor")
	flag.IntVar(&port, "p", default_port, "Port to monitor (shorthand)")

	flag.Usage = func() {
		fmt.Printf("bcidump, for dumping the first N board packets, by default those arriving on port %d\n",
			default_port)
		fmt.Println("Usage: bcidump [flags] [host][:port]")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() > 0 {
		host = flag.Arg(0)

		// If host ends in :portnum, split that off and update the port value
		if pieces := strings.Split(host, ":"); len(pieces) > 1 {
			if len(pieces) > 2 {
				fmt.Printf("Cannot parse host '%s' with %d colon separators\n", host, len(pieces)-1)
				return
			}
			attachedport, err := strconv.Atoi(pieces[1])
			if err != nil {
				fmt.Printf("Cannot convert port '%s' to integer\n", pieces[1])
				return
			}
			if port != default_port && port != attachedport {
				fmt.Printf("Cannot use -p argument and a conflicting host:port pair\n")
				return
			}
			if len(pieces[0]) == 0 {
				host = default_host
			} else {
				host = pieces[0]
			}
			port = attachedport
		}
	}

	endpoint := net.JoinHostPort(host, strconv.Itoa(port))
	if err := dump(npack, endpoint); err != nil {
		fmt.Printf("error: %v\n", err)
	}
}
