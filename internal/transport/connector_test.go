package transport

import (
	"bufio"
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/okamoto/esmart-sensor-client/internal/config"
	"github.com/okamoto/esmart-sensor-client/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func testConfig() *config.TransportConfig {
	cfg := config.Default().Transport
	cfg.DialTimeout = 2 * time.Second
	cfg.ReadTimeout = 2 * time.Second
	cfg.WriteTimeout = 2 * time.Second
	return &cfg
}

// startEchoServer accepts connections and echoes each received line back
func startEchoServer(t *testing.T) models.Endpoint {
	t.Helper()

	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				r := bufio.NewReader(c)
				for {
					line, err := r.ReadString('\n')
					if err != nil {
						return
					}
					if _, err := c.Write([]byte(line)); err != nil {
						return
					}
				}
			}(conn)
		}
	}()

	port := ln.Addr().(*net.TCPAddr).Port
	return models.NewEndpoint("127.0.0.1", strconv.Itoa(port))
}

// closedEndpoint returns a loopback endpoint with nothing listening
func closedEndpoint(t *testing.T) models.Endpoint {
	t.Helper()

	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	return models.NewEndpoint("127.0.0.1", strconv.Itoa(port))
}

func TestConnect_SendReceive(t *testing.T) {
	ep := startEchoServer(t)

	c, err := NewTCPConnector(testConfig(), zaptest.NewLogger(t))
	require.NoError(t, err)

	conn, err := c.Connect(context.Background(), ep)
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, ep, conn.Endpoint())

	n, err := conn.Send([]byte("AUTH password123\n"))
	require.NoError(t, err)
	assert.Equal(t, 17, n)

	data, err := conn.Receive(1024)
	require.NoError(t, err)
	assert.Equal(t, "AUTH password123\n", string(data))
	assert.Len(t, data, 17)
}

func TestConnect_Refused(t *testing.T) {
	c, err := NewTCPConnector(testConfig(), zaptest.NewLogger(t))
	require.NoError(t, err)

	conn, err := c.Connect(context.Background(), closedEndpoint(t))
	assert.Nil(t, conn)
	assert.ErrorIs(t, err, ErrSocket)
	assert.NotErrorIs(t, err, ErrResolution)

	var ce *ConnectError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "127.0.0.1", ce.Endpoint.Host)
}

func TestConnect_UnresolvablePort(t *testing.T) {
	c, err := NewTCPConnector(testConfig(), zaptest.NewLogger(t))
	require.NoError(t, err)

	conn, err := c.Connect(context.Background(), models.NewEndpoint("127.0.0.1", "no-such-service"))
	assert.Nil(t, conn)
	assert.ErrorIs(t, err, ErrResolution)
}

func TestConnect_IPv4Only(t *testing.T) {
	c, err := NewTCPConnector(testConfig(), zaptest.NewLogger(t))
	require.NoError(t, err)

	_, err = c.Connect(context.Background(), models.NewEndpoint("::1", "80"))
	assert.ErrorIs(t, err, ErrResolution)
}

func TestConnect_CancelledContext(t *testing.T) {
	ep := startEchoServer(t)

	c, err := NewTCPConnector(testConfig(), zaptest.NewLogger(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = c.Connect(ctx, ep)
	assert.Error(t, err)
}

func TestConnect_ThroughUnreachableProxy(t *testing.T) {
	cfg := testConfig()
	cfg.SOCKS5Proxy = closedEndpoint(t).Address()

	c, err := NewTCPConnector(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)

	_, err = c.Connect(context.Background(), models.NewEndpoint("sensor.esmarttech.com", "51234"))
	assert.ErrorIs(t, err, ErrSocket)
}

func TestReceive_PeerClosed(t *testing.T) {
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err == nil {
			conn.Close()
		}
	}()

	c, err := NewTCPConnector(testConfig(), zaptest.NewLogger(t))
	require.NoError(t, err)

	port := ln.Addr().(*net.TCPAddr).Port
	conn, err := c.Connect(context.Background(), models.NewEndpoint("127.0.0.1", strconv.Itoa(port)))
	require.NoError(t, err)
	defer conn.Close()

	data, err := conn.Receive(1024)
	assert.Nil(t, data)
	assert.Error(t, err)
}

func TestReceive_InvalidSize(t *testing.T) {
	ep := startEchoServer(t)

	c, err := NewTCPConnector(testConfig(), zaptest.NewLogger(t))
	require.NoError(t, err)

	conn, err := c.Connect(context.Background(), ep)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Receive(0)
	assert.ErrorContains(t, err, "invalid receive size")
}

func TestClose_Idempotent(t *testing.T) {
	ep := startEchoServer(t)

	c, err := NewTCPConnector(testConfig(), zaptest.NewLogger(t))
	require.NoError(t, err)

	conn, err := c.Connect(context.Background(), ep)
	require.NoError(t, err)

	require.NoError(t, conn.Close())
	assert.NoError(t, conn.Close())

	_, err = conn.Send([]byte("WIND SPEED\n"))
	assert.Error(t, err)
}
