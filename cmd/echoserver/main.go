// Command echoserver accepts TCP connections and echoes back whatever each
// client sends, the Go equivalent of examples/echoserver/echoserver.c.
package main

import (
	"context"
	"fmt"
	"time"

	"github.com/atheme/go-mowgli/eventloop"
	"github.com/atheme/go-mowgli/sockaddr"
	"github.com/atheme/go-mowgli/vio"
)

func main() {
	loop, err := eventloop.New()
	if err != nil {
		panic(err)
	}
	defer loop.Close()

	ticks := 0
	if _, err := loop.ScheduleTimer(time.Second, true, func() {
		ticks++
		fmt.Printf("tick: %d\n", ticks)
	}); err != nil {
		panic(err)
	}

	addr, err := sockaddr.Create(sockaddr.FamilyINET, "0.0.0.0", 1337)
	if err != nil {
		panic(err)
	}

	ln, err := vio.ListenTCP(loop, addr, func(tr vio.Transport, err error) {
		if err != nil {
			fmt.Println("accept error:", err)
			return
		}
		fmt.Println("new client!")
		handleClient(loop, tr)
	})
	if err != nil {
		panic(err)
	}
	defer ln.Close()

	if err := loop.Run(context.Background()); err != nil {
		panic(err)
	}
}

func handleClient(loop *eventloop.Loop, tr vio.Transport) {
	buf := make([]byte, 1024)
	pol, err := loop.CreatePollable(tr.FD())
	if err != nil {
		tr.Close()
		return
	}
	pol.SetSelect(eventloop.PollRead, func(*eventloop.Pollable) {
		n, err := tr.Read(buf)
		if n <= 0 {
			if err != nil {
				pol.Destroy()
				tr.Close()
			}
			return
		}
		fmt.Printf("read(%d): %s", tr.FD(), buf[:n])
		if _, werr := tr.Write(buf[:n]); werr != nil {
			pol.Destroy()
			tr.Close()
			return
		}
		fmt.Printf("write(%d): %s", tr.FD(), buf[:n])
	})
}
