package dnsresolver

import (
	"context"
	"net"
	"net/netip"
	"os"
	"testing"
	"time"

	"github.com/atheme/go-mowgli/eventloop"
	"github.com/joeycumines/go-catrate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeNameserver is a UDP socket on 127.0.0.1 whose queries are answered
// by serveOnce, one canned answer per call.
type fakeNameserver struct {
	conn *net.UDPConn
	addr netip.AddrPort
	// prev is closed once the most recently started serveOnce has answered,
	// so successive serveOnce calls answer queries in the order they were
	// made.
	prev chan struct{}
}

func newFakeNameserver(t *testing.T) *fakeNameserver {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	prev := make(chan struct{})
	close(prev)
	return &fakeNameserver{conn: conn, addr: conn.LocalAddr().(*net.UDPAddr).AddrPort(), prev: prev}
}

// serveOnce reads one query and writes back a single answer record of the
// given type, name (for PTR/CNAME), and rdata.
func (f *fakeNameserver) serveOnce(t *testing.T, rtype RRType, name string, rdata []byte) {
	t.Helper()
	wait := f.prev
	done := make(chan struct{})
	f.prev = done
	go func() {
		defer close(done)
		<-wait
		buf := make([]byte, maxPacket+64)
		n, raddr, err := f.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			return
		}
		id, _, _, err := decodeResponse(buf[:n])
		if err != nil {
			return
		}
		resp := buildAnswerPacket(t, buf[:n], id, rtype, name, rdata)
		_, _ = f.conn.WriteToUDPAddrPort(resp, raddr)
	}()
}

// buildAnswerPacket reuses the raw query bytes (so the question section is
// byte-identical) and appends a single answer record.
func buildAnswerPacket(t *testing.T, query []byte, id uint16, rtype RRType, name string, rdata []byte) []byte {
	t.Helper()
	resp := append([]byte(nil), query...)
	resp[2] = 0x81
	resp[3] = 0x80
	resp[6], resp[7] = 0, 1 // ancount = 1

	nameBytes := []byte{0xc0, 12} // owner name: pointer back to the question
	if name != "" {
		// PTR/CNAME: the target name is the record's rdata.
		rdata = nil
		for _, label := range splitLabels(name) {
			rdata = append(rdata, byte(len(label)))
			rdata = append(rdata, label...)
		}
		rdata = append(rdata, 0)
	}
	resp = append(resp, nameBytes...)
	resp = append(resp, byte(rtype>>8), byte(rtype))
	resp = append(resp, 0, 1) // class IN
	resp = append(resp, 0, 0, 0, 60) // ttl
	resp = append(resp, byte(len(rdata)>>8), byte(len(rdata)))
	resp = append(resp, rdata...)
	return resp
}

func splitLabels(name string) []string {
	var labels []string
	start := 0
	for i := 0; i < len(name); i++ {
		if name[i] == '.' {
			if i > start {
				labels = append(labels, name[start:i])
			}
			start = i + 1
		}
	}
	if start < len(name) {
		labels = append(labels, name[start:])
	}
	return labels
}

func TestResolver_LookupHost_ReturnsAddress(t *testing.T) {
	loop, err := eventloop.New()
	require.NoError(t, err)
	defer loop.Close()

	ns := newFakeNameserver(t)
	ns.serveOnce(t, TypeA, "", []byte{93, 184, 216, 34})

	r, err := New(loop, []string{ns.addr.String()})
	require.NoError(t, err)
	defer r.Close()

	var got Result
	require.NoError(t, r.LookupHost("example.com", func(res Result) {
		got = res
		loop.Break()
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, loop.Run(ctx))

	require.NoError(t, got.Err)
	require.Len(t, got.Addrs, 1)
	assert.Equal(t, "93.184.216.34", got.Addrs[0].String())
}

// TestResolver_LookupAddr_ChainsForwardQuery covers spec §8 end-to-end
// scenario 4: a PTR answer must not be handed to the callback directly; the
// resolver chains a forward A query for the returned name and only that
// query's answer reaches the caller.
func TestResolver_LookupAddr_ChainsForwardQuery(t *testing.T) {
	loop, err := eventloop.New()
	require.NoError(t, err)
	defer loop.Close()

	ns := newFakeNameserver(t)
	ns.serveOnce(t, TypePTR, "localhost.", nil)
	ns.serveOnce(t, TypeA, "", []byte{127, 0, 0, 1})

	r, err := New(loop, []string{ns.addr.String()})
	require.NoError(t, err)
	defer r.Close()

	var got Result
	require.NoError(t, r.LookupAddr(netip.MustParseAddr("127.0.0.1"), func(res Result) {
		got = res
		loop.Break()
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, loop.Run(ctx))

	require.NoError(t, got.Err)
	assert.Equal(t, "localhost", got.Name)
	require.Len(t, got.Addrs, 1)
	assert.Equal(t, "127.0.0.1", got.Addrs[0].String())
}

func TestResolver_NewID_NeverCollidesWithInFlightRequests(t *testing.T) {
	r := &Resolver{requests: make(map[uint16]*request)}
	seen := make(map[uint16]bool)
	for i := 0; i < 1000; i++ {
		id := r.newID()
		require.False(t, seen[id])
		seen[id] = true
		r.requests[id] = &request{}
	}
}

func TestResolver_CheckTimeouts_DoublesPerRequestTimeoutAndBumpsNameserverCount(t *testing.T) {
	ns := netip.MustParseAddr("127.0.0.1")
	addr := netip.AddrPortFrom(ns, 53)
	r := &Resolver{
		requests:      make(map[uint16]*request),
		timeoutCounts: make(map[netip.AddrPort]int),
		nameservers:   []netip.AddrPort{addr},
		conn:          mustListenUDP(t),
		gate:          catrate.NewLimiter(map[time.Duration]int{time.Second: 1}),
	}
	req := &request{id: 1, name: "example.com", qtype: TypeA, timeout: initialTimeout, lastSend: time.Now().Add(-initialTimeout - time.Second), lastNS: addr}
	r.requests[1] = req

	r.checkTimeouts()

	assert.Equal(t, 2*initialTimeout, req.timeout)
	assert.Equal(t, 1, r.timeoutCounts[addr])
	assert.Equal(t, 1, req.retries)
}

func TestResolver_CheckTimeouts_FailsAfterMaxRetries(t *testing.T) {
	addr := netip.AddrPortFrom(netip.MustParseAddr("127.0.0.1"), 53)
	r := &Resolver{
		requests:      make(map[uint16]*request),
		timeoutCounts: make(map[netip.AddrPort]int),
		nameservers:   []netip.AddrPort{addr},
		conn:          mustListenUDP(t),
	}
	var failed bool
	req := &request{
		id: 1, name: "example.com", qtype: TypeA, timeout: initialTimeout,
		lastSend: time.Now().Add(-initialTimeout - time.Second), lastNS: addr, retries: maxRetries,
		cb: func(res Result) { failed = res.Err != nil },
	}
	r.requests[1] = req

	r.checkTimeouts()

	assert.True(t, failed)
	_, stillPending := r.requests[1]
	assert.False(t, stillPending)
}

func mustListenUDP(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestParseResolvConf_ParsesNameserversAndDomainRespectingMax(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/resolv.conf"
	content := "; comment\n# also comment\ndomain example.net\n"
	for i := 0; i < maxNameservers+2; i++ {
		content += "nameserver 127.0.0." + string(rune('1'+i%9)) + "\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	addrs, domain, err := parseResolvConf(path)
	require.NoError(t, err)
	assert.Equal(t, "example.net", domain)
	assert.LessOrEqual(t, len(addrs), maxNameservers)
}
