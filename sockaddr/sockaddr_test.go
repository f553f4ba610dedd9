package sockaddr

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreate_ParsesIPv4(t *testing.T) {
	sa, err := Create(FamilyINET, "127.0.0.1", 8080)
	require.NoError(t, err)
	host, port := sa.Info()
	assert.Equal(t, "127.0.0.1", host)
	assert.Equal(t, uint16(8080), port)
	assert.Equal(t, FamilyINET, sa.Family())
}

func TestCreate_RejectsFamilyMismatch(t *testing.T) {
	_, err := Create(FamilyINET, "::1", 53)
	assert.Error(t, err)
}

func TestCreate_RejectsOutOfRangePort(t *testing.T) {
	_, err := Create(FamilyINET, "127.0.0.1", 70000)
	assert.Error(t, err)
}

func TestFromNetAddr_RoundTripsTCPAddr(t *testing.T) {
	addr := &net.TCPAddr{IP: net.ParseIP("192.168.1.1"), Port: 1337}
	sa, err := FromNetAddr(addr)
	require.NoError(t, err)
	host, port := sa.Info()
	assert.Equal(t, "192.168.1.1", host)
	assert.Equal(t, uint16(1337), port)
}

func TestString_BracketsIPv6(t *testing.T) {
	sa, err := Create(FamilyINET6, "::1", 53)
	require.NoError(t, err)
	assert.Equal(t, "[::1]:53", sa.String())
}
