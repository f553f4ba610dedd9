package dnsresolver

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeQuery_EncodesLabelsAndQuestionCount(t *testing.T) {
	pkt, err := encodeQuery(42, "www.example.com", TypeA)
	require.NoError(t, err)

	assert.Equal(t, byte(0), pkt[0]) // id high byte
	assert.Equal(t, byte(42), pkt[1])
	assert.Equal(t, byte(1), pkt[5]) // qdcount low byte

	// label lengths: 3 "www", 7 "example", 3 "com", 0 root
	assert.Equal(t, byte(3), pkt[12])
	assert.Equal(t, "www", string(pkt[13:16]))
	assert.Equal(t, byte(7), pkt[16])
	assert.Equal(t, "example", string(pkt[17:24]))
	assert.Equal(t, byte(3), pkt[24])
	assert.Equal(t, "com", string(pkt[25:28]))
	assert.Equal(t, byte(0), pkt[28])
}

func TestEncodeQuery_RejectsOversizedLabel(t *testing.T) {
	longLabel := make([]byte, 64)
	for i := range longLabel {
		longLabel[i] = 'a'
	}
	_, err := encodeQuery(1, string(longLabel)+".com", TypeA)
	assert.Error(t, err)
}

func TestExpandName_FollowsCompressionPointer(t *testing.T) {
	// A packet with "example.com" spelled out at offset 12, and a second
	// name at offset 30 that's just a pointer back to it.
	pkt := make([]byte, 32)
	pkt[12] = 7
	copy(pkt[13:20], "example")
	pkt[20] = 3
	copy(pkt[21:24], "com")
	pkt[24] = 0

	pkt[30] = 0xc0
	pkt[31] = 12

	name, next, err := expandName(pkt, 30)
	require.NoError(t, err)
	assert.Equal(t, "example.com", name)
	assert.Equal(t, 32, next)
}

func TestExpandName_DetectsPointerLoop(t *testing.T) {
	pkt := make([]byte, 4)
	pkt[0] = 0xc0
	pkt[1] = 0 // points to itself

	_, _, err := expandName(pkt, 0)
	assert.Error(t, err)
}

func TestDecodeResponse_ParsesARecord(t *testing.T) {
	pkt, err := encodeQuery(7, "example.com", TypeA)
	require.NoError(t, err)

	// Build a minimal response: header with ancount=1, the original
	// question, then one answer pointing back at the question name via
	// compression, type A, class IN, ttl, rdlength 4, and an IPv4 address.
	resp := append([]byte(nil), pkt...)
	resp[2] = 0x81 // QR=1, RD=1
	resp[3] = 0x80 // RA=1
	resp[6] = 0
	resp[7] = 1 // ancount = 1

	answer := []byte{0xc0, 12} // pointer to question name at offset 12
	answer = append(answer, 0, 1)             // type A
	answer = append(answer, 0, 1)             // class IN
	answer = append(answer, 0, 0, 0, 60)       // ttl
	answer = append(answer, 0, 4)              // rdlength
	answer = append(answer, 93, 184, 216, 34)  // rdata
	resp = append(resp, answer...)

	id, rcode, answers, err := decodeResponse(resp)
	require.NoError(t, err)
	assert.Equal(t, uint16(7), id)
	assert.Equal(t, uint8(0), rcode)
	require.Len(t, answers, 1)
	assert.Equal(t, TypeA, answers[0].rtype)
	assert.Equal(t, []byte{93, 184, 216, 34}, answers[0].data)
}

func TestReverseName_IPv4(t *testing.T) {
	addr := netip.MustParseAddr("1.2.3.4")
	assert.Equal(t, "4.3.2.1.in-addr.arpa.", reverseName(addr))
}
