package transport

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnReadWriteExact(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	sc := NewConn(server)
	cc := NewConn(client)

	done := make(chan error, 1)
	go func() {
		done <- sc.WriteAll([]byte("hello world"))
	}()

	buf := make([]byte, len("hello world"))
	require.NoError(t, cc.ReadExact(buf))
	assert.Equal(t, "hello world", string(buf))
	require.NoError(t, <-done)
}

func TestListenDialTCP(t *testing.T) {
	ln, err := ListenTCP("127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan *Conn, 1)
	go func() {
		c, err := ln.Accept()
		require.NoError(t, err)
		accepted <- c
	}()

	client, err := DialTCP(ln.Addr().String())
	require.NoError(t, err)
	defer client.Close()

	server := <-accepted
	defer server.Close()

	require.NoError(t, client.WriteAll([]byte("ping")))
	buf := make([]byte, 4)
	require.NoError(t, server.ReadExact(buf))
	assert.Equal(t, "ping", string(buf))
}
