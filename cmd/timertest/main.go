// Command timertest exercises recurring and one-shot timers, the Go
// equivalent of examples/timertest/timertest.c.
package main

import (
	"context"
	"fmt"
	"time"

	"github.com/atheme/go-mowgli/eventloop"
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
		if ticks > 20 {
			loop.Break()
		}
	}); err != nil {
		panic(err)
	}

	if _, err := loop.ScheduleTimer(5*time.Second, false, func() {
		fmt.Println("oneshot timer hit")
	}); err != nil {
		panic(err)
	}

	if err := loop.Run(context.Background()); err != nil {
		panic(err)
	}
	fmt.Println("eventloop halted")
}
