package bcilog

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListenUDP(t *testing.T) {
	conn, err := ListenUDP("127.0.0.1:0", 64*1024)
	require.NoError(t, err)
	defer conn.Close()
	port := conn.LocalAddr().(*net.UDPAddr).Port
	assert.NotZero(t, port)

	sender, err := net.DialUDP("udp", nil, conn.LocalAddr().(*net.UDPAddr))
	require.NoError(t, err)
	defer sender.Close()
	_, err = sender.Write([]byte("hello"))
	require.NoError(t, err)
	buf := make([]byte, 16)
	n, _, err := conn.ReadFrom(buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))

	_, err = ListenUDP("not an address", 0)
	assert.Error(t, err)
}

func TestRmemMax(t *testing.T) {
	limit, err := RmemMax()
	if err != nil {
		t.Skipf("net.core.rmem_max not readable here: %v", err)
	}
	assert.Positive(t, limit)
}
