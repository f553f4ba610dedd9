// Command asyncresolver reads whitespace-separated hostnames from stdin
// and resolves each one asynchronously, the Go equivalent of
// examples/async_resolver/async_resolver.c. Prefix an entry with "+" to do
// a reverse (PTR) lookup instead of a forward one.
package main

import (
	"bufio"
	"context"
	"fmt"
	"net/netip"
	"os"
	"strings"

	"github.com/atheme/go-mowgli/dnsresolver"
	"github.com/atheme/go-mowgli/eventloop"
)

func main() {
	loop, err := eventloop.New()
	if err != nil {
		panic(err)
	}
	defer loop.Close()

	resolver, err := dnsresolver.NewFromResolvConf(loop)
	if err != nil {
		panic(err)
	}
	defer resolver.Close()

	stdinPol, err := loop.CreatePollable(int(os.Stdin.Fd()))
	if err != nil {
		panic(err)
	}
	reader := bufio.NewReader(os.Stdin)
	stdinPol.SetSelect(eventloop.PollRead, func(*eventloop.Pollable) {
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			stdinPol.Destroy()
			return
		}
		for _, word := range strings.Fields(line) {
			resolveOne(resolver, word)
		}
	})

	if err := loop.Run(context.Background()); err != nil {
		panic(err)
	}
}

func resolveOne(resolver *dnsresolver.Resolver, word string) {
	fmt.Println("Domain input:", word)
	if strings.HasPrefix(word, "+") {
		addr, err := netip.ParseAddr(strings.TrimPrefix(word, "+"))
		if err != nil {
			fmt.Println("Invalid address", word)
			return
		}
		resolver.LookupAddr(addr, func(r dnsresolver.Result) {
			if r.Err != nil {
				fmt.Println("Got null reply for", word, "-", r.Err)
				return
			}
			fmt.Println("Finished", word)
			fmt.Println("Hostname:", r.Name)
			for _, a := range r.Addrs {
				fmt.Println("Resolved:", a)
			}
		})
		return
	}

	resolver.LookupHost(word, func(r dnsresolver.Result) {
		if r.Err != nil {
			fmt.Println("Got null reply for", word, "-", r.Err)
			return
		}
		fmt.Println("Finished", word)
		for _, a := range r.Addrs {
			fmt.Println("Resolved:", a)
		}
	})
}
