package dnsresolver

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// RRType mirrors the MOWGLI_DNS_T_* constants this resolver supports.
type RRType uint16

const (
	TypeA     RRType = 1
	TypeCNAME RRType = 5
	TypePTR   RRType = 12
	TypeAAAA  RRType = 28
)

const classIN = 1

const maxPacket = 1024 // RFC says 512, but names can expand under compression

const flagRD = 1 << 8 // recursion desired

// encodeQuery builds a single-question DNS query packet for name/qtype,
// grounded on mowgli_dns_mkquery's shape (evloop_reslib.c): a 12-byte
// header followed by the encoded QNAME, QTYPE, and QCLASS.
func encodeQuery(id uint16, name string, qtype RRType) ([]byte, error) {
	labels := strings.Split(strings.TrimSuffix(name, "."), ".")
	buf := make([]byte, 12)
	binary.BigEndian.PutUint16(buf[0:2], id)
	binary.BigEndian.PutUint16(buf[2:4], flagRD)
	binary.BigEndian.PutUint16(buf[4:6], 1) // qdcount

	for _, label := range labels {
		if len(label) == 0 {
			continue
		}
		if len(label) > 63 {
			return nil, fmt.Errorf("dnsresolver: label %q exceeds 63 bytes", label)
		}
		buf = append(buf, byte(len(label)))
		buf = append(buf, label...)
	}
	buf = append(buf, 0) // root label

	qtypeBuf := make([]byte, 4)
	binary.BigEndian.PutUint16(qtypeBuf[0:2], uint16(qtype))
	binary.BigEndian.PutUint16(qtypeBuf[2:4], classIN)
	buf = append(buf, qtypeBuf...)

	if len(buf) > maxPacket {
		return nil, fmt.Errorf("dnsresolver: encoded query exceeds %d bytes", maxPacket)
	}
	return buf, nil
}

// answer is one decoded resource record.
type answer struct {
	name  string
	rtype RRType
	ttl   uint32
	data  []byte
}

// decodeResponse parses a DNS response packet, returning the answer
// records. Grounded on evloop_reslib.c's ns_get16/ns_get32/dn_expand walk
// of the header + answer section, with DNS name-pointer compression
// followed via expandName.
func decodeResponse(pkt []byte) (id uint16, rcode uint8, answers []answer, err error) {
	if len(pkt) < 12 {
		return 0, 0, nil, fmt.Errorf("dnsresolver: packet too short")
	}
	id = binary.BigEndian.Uint16(pkt[0:2])
	flags := binary.BigEndian.Uint16(pkt[2:4])
	rcode = uint8(flags & 0xf)
	qdcount := binary.BigEndian.Uint16(pkt[4:6])
	ancount := binary.BigEndian.Uint16(pkt[6:8])

	off := 12
	for i := 0; i < int(qdcount); i++ {
		_, next, err := expandName(pkt, off)
		if err != nil {
			return id, rcode, nil, err
		}
		off = next + 4 // qtype + qclass
	}

	for i := 0; i < int(ancount); i++ {
		_, next, err := expandName(pkt, off)
		if err != nil {
			return id, rcode, nil, err
		}
		off = next
		if off+10 > len(pkt) {
			return id, rcode, nil, fmt.Errorf("dnsresolver: truncated answer record")
		}
		rtype := RRType(binary.BigEndian.Uint16(pkt[off : off+2]))
		ttl := binary.BigEndian.Uint32(pkt[off+4 : off+8])
		rdlength := int(binary.BigEndian.Uint16(pkt[off+8 : off+10]))
		off += 10
		if off+rdlength > len(pkt) {
			return id, rcode, nil, fmt.Errorf("dnsresolver: truncated rdata")
		}
		rdata := pkt[off : off+rdlength]

		var name string
		switch rtype {
		case TypeCNAME, TypePTR:
			decoded, _, derr := expandName(pkt, off)
			if derr == nil {
				name = decoded
			}
		}
		answers = append(answers, answer{name: name, rtype: rtype, ttl: ttl, data: append([]byte(nil), rdata...)})
		off += rdlength
	}

	return id, rcode, answers, nil
}

// expandName decodes a (possibly compressed) domain name starting at off,
// the Go equivalent of mowgli_dns_dn_expand. Returns the decoded name and
// the offset immediately following the name as it appears in the packet
// (not following any pointer jump).
func expandName(pkt []byte, off int) (string, int, error) {
	var labels []string
	origOff := -1
	cur := off
	jumps := 0

	for {
		if cur >= len(pkt) {
			return "", 0, fmt.Errorf("dnsresolver: name runs past end of packet")
		}
		length := int(pkt[cur])
		if length == 0 {
			cur++
			break
		}
		if length&0xc0 == 0xc0 {
			if cur+1 >= len(pkt) {
				return "", 0, fmt.Errorf("dnsresolver: truncated compression pointer")
			}
			if origOff < 0 {
				origOff = cur + 2
			}
			ptr := (length&0x3f)<<8 | int(pkt[cur+1])
			jumps++
			if jumps > 32 {
				return "", 0, fmt.Errorf("dnsresolver: compression pointer loop")
			}
			cur = ptr
			continue
		}
		if cur+1+length > len(pkt) {
			return "", 0, fmt.Errorf("dnsresolver: label runs past end of packet")
		}
		labels = append(labels, string(pkt[cur+1:cur+1+length]))
		cur += 1 + length
	}

	end := cur
	if origOff >= 0 {
		end = origOff
	}
	return strings.Join(labels, "."), end, nil
}
