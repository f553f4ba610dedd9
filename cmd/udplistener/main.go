// Command udplistener is a trivial UDP echo listener, the Go equivalent of
// examples/vio-udplistener/vio-udplistener.c. Connect with `nc -u
// localhost 31337` and type lines.
//
// UDP is datagram-oriented, not stream-oriented, so it doesn't fit the
// connection-shaped vio.Transport interface (designed around Read/Write
// over an already-connected fd); this example registers the UDP socket
// directly with the Loop instead, the same way the original drives
// mowgli_vio_recvfrom/mowgli_vio_sendto straight off a vio_t without a
// connect step.
package main

import (
	"context"
	"fmt"
	"net"

	"github.com/atheme/go-mowgli/eventloop"
)

func main() {
	loop, err := eventloop.New()
	if err != nil {
		panic(err)
	}
	defer loop.Close()

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: 31337})
	if err != nil {
		panic(err)
	}
	defer conn.Close()

	raw, err := conn.SyscallConn()
	if err != nil {
		panic(err)
	}
	var fd int
	raw.Control(func(d uintptr) { fd = int(d) })

	pol, err := loop.CreatePollable(fd)
	if err != nil {
		panic(err)
	}

	buf := make([]byte, 2048)
	pol.SetSelect(eventloop.PollRead, func(*eventloop.Pollable) {
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		fmt.Printf("Recieved bytes from addr %s: %s", addr, buf[:n])
		conn.WriteToUDP(buf[:n], addr)
	})

	if err := loop.Run(context.Background()); err != nil {
		panic(err)
	}
}
