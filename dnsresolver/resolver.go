// Package dnsresolver provides an asynchronous, non-recursive stub
// resolver driven by a Loop, grounded on libmowgli's
// dns/evloop_res.c. It sends UDP queries to a configured nameserver list,
// retries with a backoff gated per-nameserver, and decodes responses on
// the loop goroutine.
package dnsresolver

import (
	"bufio"
	"fmt"
	"math/rand/v2"
	"net"
	"net/netip"
	"os"
	"strings"
	"time"

	"github.com/atheme/go-mowgli/eventloop"
	"github.com/joeycumines/go-catrate"
)

// Result is delivered to a Query's callback once resolution finishes (with
// a non-nil Err on failure/timeout).
type Result struct {
	Addrs []netip.Addr // populated for A/AAAA queries
	Name  string       // the queried name of a successful A/AAAA answer; for LookupAddr, the name the PTR record returned
	Err   error
}

// QueryFunc receives the outcome of a single Query.
type QueryFunc func(Result)

const (
	// initialTimeout is a request's starting retry deadline; it doubles on
	// each retry, per evloop_res.c's "request->timeout = 4; /* start at 4
	// and exponential inc. */".
	initialTimeout = 4 * time.Second
	// sweepInterval matches timeout_resolver's one-second cadence.
	sweepInterval = 1 * time.Second
	maxRetries    = 3

	maxNameservers = 10 // MOWGLI_DNS_MAXNS
	defaultDNSPort = 53

	defaultResolvConfPath = "/etc/resolv.conf"
)

// Resolver manages outstanding queries against a fixed nameserver list,
// the Go equivalent of mowgli_dns_evloop_t.
type Resolver struct {
	loop *eventloop.Loop
	pol  *eventloop.Pollable
	conn *net.UDPConn

	nameservers []netip.AddrPort
	// domain is appended to dotless names before querying, the Go
	// equivalent of mowgli_dns_evloop_add_local_domain, populated from a
	// resolv.conf "domain" line.
	domain string

	// gate rate-limits sends to a nameserver that has been timing out, in
	// place of the original's retryfreq(n)=3^min(n,5) skip counter: on
	// send's first pass, a server with a nonzero timeout count is used at
	// most once per second. The limit is the same whatever that count is;
	// it does not grow with the number of consecutive timeouts.
	gate          *catrate.Limiter
	timeoutCounts map[netip.AddrPort]int

	nextNS   int
	requests map[uint16]*request
	timer    *eventloop.Timer
}

type request struct {
	id    uint16
	name  string
	qtype RRType
	// followup is the query type chained into after a successful PTR
	// answer (reverse-then-forward verification); unused for non-PTR
	// requests.
	followup RRType
	cb       QueryFunc
	retries  int
	timeout  time.Duration
	lastSend time.Time
	lastNS   netip.AddrPort
}

// New creates a Resolver bound to loop, sending queries to the given
// nameserver addresses (host:port form, e.g. "8.8.8.8:53").
func New(loop *eventloop.Loop, nameservers []string) (*Resolver, error) {
	addrs := make([]netip.AddrPort, 0, len(nameservers))
	for _, ns := range nameservers {
		ap, err := netip.ParseAddrPort(ns)
		if err != nil {
			return nil, &eventloop.TypeError{Message: fmt.Sprintf("dnsresolver: invalid nameserver %q", ns), Cause: err}
		}
		addrs = append(addrs, ap)
	}
	return newResolver(loop, addrs, "")
}

// NewFromResolvConf creates a Resolver the way mowgli_dns_evloop_init does:
// parsing /etc/resolv.conf for "nameserver"/"domain" lines (bounded to
// MOWGLI_DNS_MAXNS entries), falling back to 127.0.0.1 if none are found.
func NewFromResolvConf(loop *eventloop.Loop) (*Resolver, error) {
	return NewFromResolvConfPath(loop, defaultResolvConfPath)
}

// NewFromResolvConfPath is NewFromResolvConf with an overridable path, the
// Go equivalent of mowgli_dns_evloop_set_resolvconf.
func NewFromResolvConfPath(loop *eventloop.Loop, path string) (*Resolver, error) {
	addrs, domain, err := parseResolvConf(path)
	if err != nil || len(addrs) == 0 {
		addrs = []netip.AddrPort{netip.AddrPortFrom(netip.MustParseAddr("127.0.0.1"), defaultDNSPort)}
	}
	return newResolver(loop, addrs, domain)
}

// parseResolvConf reads nameserver/domain lines from a resolv.conf-format
// file, grounded on parse_resvconf (evloop_res.c): blank lines and lines
// starting with '#' or ';' are ignored, "nameserver <addr>" lines are
// collected up to maxNameservers, and the last "domain <name>" line wins.
func parseResolvConf(path string) (nameservers []netip.AddrPort, domain string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		switch fields[0] {
		case "domain":
			domain = fields[1]
		case "nameserver":
			if len(nameservers) >= maxNameservers {
				continue
			}
			addr, err := netip.ParseAddr(fields[1])
			if err != nil {
				continue
			}
			nameservers = append(nameservers, netip.AddrPortFrom(addr, defaultDNSPort))
		}
	}
	return nameservers, domain, sc.Err()
}

func newResolver(loop *eventloop.Loop, nameservers []netip.AddrPort, domain string) (*Resolver, error) {
	if len(nameservers) == 0 {
		return nil, &eventloop.TypeError{Message: "dnsresolver: at least one nameserver required"}
	}
	if len(nameservers) > maxNameservers {
		nameservers = nameservers[:maxNameservers]
	}
	r := &Resolver{
		loop:          loop,
		nameservers:   nameservers,
		domain:        domain,
		timeoutCounts: make(map[netip.AddrPort]int),
		requests:      make(map[uint16]*request),
		gate: catrate.NewLimiter(map[time.Duration]int{
			time.Second: 1,
		}),
	}

	conn, err := net.ListenUDP("udp", &net.UDPAddr{})
	if err != nil {
		return nil, eventloop.WrapError("dnsresolver: open resolver socket", err)
	}
	r.conn = conn

	raw, err := conn.SyscallConn()
	if err != nil {
		conn.Close()
		return nil, eventloop.WrapError("dnsresolver: resolver socket control", err)
	}
	var fd int
	if err := raw.Control(func(d uintptr) { fd = int(d) }); err != nil {
		conn.Close()
		return nil, eventloop.WrapError("dnsresolver: resolver socket control", err)
	}

	pol, err := loop.CreatePollable(fd)
	if err != nil {
		conn.Close()
		return nil, err
	}
	r.pol = pol
	if err := pol.SetSelect(eventloop.PollRead, r.handleReadable); err != nil {
		conn.Close()
		return nil, err
	}

	timer, err := loop.ScheduleTimer(sweepInterval, true, r.checkTimeouts)
	if err != nil {
		conn.Close()
		return nil, err
	}
	r.timer = timer

	return r, nil
}

// Close releases the resolver socket and cancels its timeout timer.
func (r *Resolver) Close() error {
	r.loop.CancelTimer(r.timer)
	r.pol.Destroy()
	return r.conn.Close()
}

// LookupHost resolves name to A addresses, the Go equivalent of
// mowgli_dns_evloop_gethost_byname(..., MOWGLI_DNS_T_A).
func (r *Resolver) LookupHost(name string, cb QueryFunc) error {
	return r.doQueryName(name, TypeA, 0, cb)
}

// LookupHostType resolves name via an explicit A or AAAA query, the Go
// equivalent of mowgli_dns_evloop_gethost_byname with a caller-chosen type.
func (r *Resolver) LookupHostType(name string, qtype RRType, cb QueryFunc) error {
	if qtype != TypeA && qtype != TypeAAAA {
		return &eventloop.TypeError{Message: "dnsresolver: LookupHostType requires TypeA or TypeAAAA"}
	}
	return r.doQueryName(name, qtype, 0, cb)
}

// LookupAddr resolves addr to a PTR name. On a successful PTR answer, the
// resolver chains into a forward A/AAAA query for the returned name and
// reuses cb for that query's result, matching evloop_res.c's
// reverse-then-forward verification (res_read_single_reply's
// MOWGLI_DNS_T_PTR branch).
func (r *Resolver) LookupAddr(addr netip.Addr, cb QueryFunc) error {
	ptrName := reverseName(addr)
	followup := TypeA
	if addr.Is6() && !addr.Is4In6() {
		followup = TypeAAAA
	}
	return r.doQueryName(ptrName, TypePTR, followup, cb)
}

func (r *Resolver) doQueryName(name string, qtype RRType, followup RRType, cb QueryFunc) error {
	qname := name
	if qtype != TypePTR && r.domain != "" && !strings.Contains(qname, ".") {
		qname = qname + "." + r.domain
	}

	id := r.newID()
	req := &request{id: id, name: qname, qtype: qtype, followup: followup, cb: cb, timeout: initialTimeout}
	r.requests[id] = req

	pkt, err := encodeQuery(id, qname, qtype)
	if err != nil {
		delete(r.requests, id)
		return err
	}
	r.send(req, pkt)
	return nil
}

// newID draws a request id by PRNG, retrying until it's unique across the
// in-flight set, matching evloop_res.c's "header->id = (header->id +
// mowgli_random_int(state->rand)) & 0xffff ... while (find_id(dns,
// header->id))" loop. A sequential counter would make off-path response
// spoofing trivial, which is exactly what the random id resists.
func (r *Resolver) newID() uint16 {
	for {
		id := uint16(rand.IntN(1 << 16))
		if _, exists := r.requests[id]; !exists {
			return id
		}
	}
}

// send transmits pkt to the next nameserver in rotation that isn't
// currently cooling down, falling back to a known-broken one if every
// server is cooling down, matching send_res_msg's two-pass fallback.
func (r *Resolver) send(req *request, pkt []byte) {
	n := len(r.nameservers)
	for pass := 0; pass < 2; pass++ {
		for i := 0; i < n; i++ {
			ns := r.nameservers[(i+r.nextNS)%n]
			broken := r.timeoutCounts[ns] > 0
			if pass == 0 && broken {
				if _, ok := r.gate.Allow(ns); !ok {
					continue
				}
			}
			if pass == 1 && !broken {
				continue
			}
			if _, err := r.conn.WriteToUDPAddrPort(pkt, ns); err == nil {
				req.lastSend = eventloopNow()
				req.lastNS = ns
				r.nextNS = (r.nextNS + 1) % n
				return
			}
		}
	}
}

func (r *Resolver) handleReadable(*eventloop.Pollable) {
	buf := make([]byte, maxPacket+64)
	n, _, err := r.conn.ReadFromUDPAddrPort(buf)
	if err != nil || n < 12 {
		return
	}
	id, rcode, answers, err := decodeResponse(buf[:n])
	if err != nil {
		return
	}
	req, ok := r.requests[id]
	if !ok {
		return
	}
	delete(r.requests, id)
	delete(r.timeoutCounts, req.lastNS)

	if rcode != 0 {
		req.cb(Result{Err: fmt.Errorf("dnsresolver: nameserver returned rcode %d", rcode)})
		return
	}

	switch req.qtype {
	case TypePTR:
		for _, a := range answers {
			if a.rtype == TypePTR && a.name != "" {
				followup := req.followup
				if followup == 0 {
					followup = TypeA
				}
				if err := r.doQueryName(a.name, followup, 0, req.cb); err != nil {
					req.cb(Result{Err: fmt.Errorf("dnsresolver: forward lookup for %s: %w", a.name, err)})
				}
				return
			}
		}
		req.cb(Result{Err: fmt.Errorf("dnsresolver: no PTR record for %s", req.name)})
	default:
		var addrs []netip.Addr
		for _, a := range answers {
			switch a.rtype {
			case TypeA:
				if len(a.data) == 4 {
					addrs = append(addrs, netip.AddrFrom4([4]byte(a.data)))
				}
			case TypeAAAA:
				if len(a.data) == 16 {
					addrs = append(addrs, netip.AddrFrom16([16]byte(a.data)))
				}
			}
		}
		if len(addrs) == 0 {
			req.cb(Result{Err: fmt.Errorf("dnsresolver: no address records for %s", req.name)})
			return
		}
		req.cb(Result{Name: req.name, Addrs: addrs})
	}
}

// checkTimeouts fires on the resolver's retry timer, resending any request
// whose per-request timeout has elapsed since its last send, doubling that
// timeout and bumping the nameserver's timeout counter on each retry, and
// failing the request with TIMEOUT once it exhausts maxRetries — matching
// timeout_query_list's sweep.
func (r *Resolver) checkTimeouts() {
	now := eventloopNow()
	for id, req := range r.requests {
		if now.Sub(req.lastSend) < req.timeout {
			continue
		}
		req.retries++
		if req.retries > maxRetries {
			delete(r.requests, id)
			req.cb(Result{Err: fmt.Errorf("dnsresolver: timed out resolving %s", req.name)})
			continue
		}
		r.timeoutCounts[req.lastNS]++
		req.timeout *= 2
		pkt, err := encodeQuery(req.id, req.name, req.qtype)
		if err != nil {
			continue
		}
		r.send(req, pkt)
	}
}

func eventloopNow() time.Time { return time.Now() }

func reverseName(addr netip.Addr) string {
	if addr.Is4() || addr.Is4In6() {
		b := addr.As4()
		return fmt.Sprintf("%d.%d.%d.%d.in-addr.arpa.", b[3], b[2], b[1], b[0])
	}
	b := addr.As16()
	var sb []byte
	for i := len(b) - 1; i >= 0; i-- {
		hi, lo := b[i]>>4, b[i]&0xf
		sb = append(sb, nibble(lo), '.', nibble(hi), '.')
	}
	return string(sb) + "ip6.arpa."
}

func nibble(n byte) byte {
	if n < 10 {
		return '0' + n
	}
	return 'a' + (n - 10)
}
