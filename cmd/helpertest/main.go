// Command helpertest spawns an in-process helper that ticks a few times
// then exits, printing whatever it writes back to stdout, the Go
// equivalent of examples/helpertest/helpertest.c.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/atheme/go-mowgli/eventloop"
)

func main() {
	loop, err := eventloop.New()
	if err != nil {
		panic(err)
	}
	defer loop.Close()

	spawnHelper(loop)

	if err := loop.Run(context.Background()); err != nil {
		panic(err)
	}
}

func spawnHelper(owner *eventloop.Loop) {
	helper, err := owner.SpawnHelper(func(childLoop *eventloop.Loop, childSide *eventloop.Helper) {
		childSide.Write([]byte(fmt.Sprintf("hi from pid %d\n", os.Getpid())))

		ticks := 0
		childLoop.ScheduleTimer(time.Second, true, func() {
			ticks++
			childSide.Write([]byte(fmt.Sprintf("tick: %d\n", ticks)))
			if ticks > 10 {
				childLoop.Break()
			}
		})
		childLoop.ScheduleTimer(5*time.Second, false, func() {
			childSide.Write([]byte("oneshot timer hit\n"))
		})

		childLoop.Run(context.Background())
		childSide.Write([]byte("eventloop halted\n"))
	})
	if err != nil {
		panic(err)
	}

	helper.SetReadCB(func(data []byte) {
		fmt.Printf("helper: %s", data)
	})
}
