package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/okamoto/esmart-sensor-client/internal/config"
	"github.com/okamoto/esmart-sensor-client/internal/models"
	"go.uber.org/zap"
	"golang.org/x/net/proxy"
)

// Conn is a blocking byte stream bound to one endpoint
type Conn interface {
	// Send writes p and returns the number of bytes written
	Send(p []byte) (int, error)
	// Receive performs a single read of at most max bytes
	Receive(max int) ([]byte, error)
	// Close releases the connection; calls after the first are no-ops
	Close() error
	Endpoint() models.Endpoint
}

// Connector opens connections to endpoints
type Connector interface {
	Connect(ctx context.Context, ep models.Endpoint) (Conn, error)
}

// Connect failure kinds
var (
	ErrResolution = errors.New("address resolution failed")
	ErrSocket     = errors.New("connection failed")
)

// ConnectError reports a failed connection attempt.
// errors.Is matches both the kind (ErrResolution or ErrSocket) and the underlying cause.
type ConnectError struct {
	Endpoint models.Endpoint
	Kind     error
	Err      error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("%s for %s: %v", e.Kind, e.Endpoint, e.Err)
}

func (e *ConnectError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// TCPConnector dials endpoints over TCP, optionally through a SOCKS5 proxy
type TCPConnector struct {
	config   *config.TransportConfig
	resolver *net.Resolver
	dialer   proxy.ContextDialer
	proxied  bool
	logger   *zap.Logger
}

// NewTCPConnector creates a connector from the transport configuration
func NewTCPConnector(cfg *config.TransportConfig, logger *zap.Logger) (*TCPConnector, error) {
	base := &net.Dialer{Timeout: cfg.DialTimeout}

	c := &TCPConnector{
		config:   cfg,
		resolver: net.DefaultResolver,
		dialer:   base,
		logger:   logger,
	}

	if cfg.SOCKS5Proxy != "" {
		d, err := proxy.SOCKS5("tcp", cfg.SOCKS5Proxy, nil, base)
		if err != nil {
			return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
		}
		cd, ok := d.(proxy.ContextDialer)
		if !ok {
			return nil, fmt.Errorf("SOCKS5 dialer for %s does not support contexts", cfg.SOCKS5Proxy)
		}
		c.dialer = cd
		c.proxied = true
		logger.Info("dialing through SOCKS5 proxy", zap.String("proxy", cfg.SOCKS5Proxy))
	}

	return c, nil
}

// Connect resolves the endpoint and makes a single connection attempt
func (c *TCPConnector) Connect(ctx context.Context, ep models.Endpoint) (Conn, error) {
	if c.config.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.DialTimeout)
		defer cancel()
	}

	addr, err := c.resolve(ctx, ep)
	if err != nil {
		return nil, &ConnectError{Endpoint: ep, Kind: ErrResolution, Err: err}
	}

	network := c.config.Network
	if c.proxied {
		// the proxy only speaks plain tcp
		network = "tcp"
	}

	conn, err := c.dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, &ConnectError{Endpoint: ep, Kind: ErrSocket, Err: err}
	}

	c.logger.Debug("connection established",
		zap.Stringer("endpoint", ep),
		zap.String("remote_addr", conn.RemoteAddr().String()))

	return &tcpConn{
		conn:         conn,
		endpoint:     ep,
		readTimeout:  c.config.ReadTimeout,
		writeTimeout: c.config.WriteTimeout,
	}, nil
}

// resolve returns the dial address for ep. Behind a proxy the host is resolved remotely.
func (c *TCPConnector) resolve(ctx context.Context, ep models.Endpoint) (string, error) {
	port, err := c.resolver.LookupPort(ctx, "tcp", ep.Port)
	if err != nil {
		return "", fmt.Errorf("failed to resolve port: %w", err)
	}

	if c.proxied {
		return net.JoinHostPort(ep.Host, strconv.Itoa(port)), nil
	}

	ips, err := c.resolver.LookupNetIP(ctx, ipNetwork(c.config.Network), ep.Host)
	if err != nil {
		return "", fmt.Errorf("failed to resolve host: %w", err)
	}
	if len(ips) == 0 {
		return "", fmt.Errorf("no %s address for host %q", ipNetwork(c.config.Network), ep.Host)
	}

	return net.JoinHostPort(ips[0].Unmap().String(), strconv.Itoa(port)), nil
}

func ipNetwork(network string) string {
	switch network {
	case "tcp4":
		return "ip4"
	case "tcp6":
		return "ip6"
	default:
		return "ip"
	}
}

// tcpConn is a Conn over a net.Conn with optional per-operation deadlines
type tcpConn struct {
	conn         net.Conn
	endpoint     models.Endpoint
	readTimeout  time.Duration
	writeTimeout time.Duration

	closeOnce sync.Once
	closeErr  error
}

func (c *tcpConn) Send(p []byte) (int, error) {
	if c.writeTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return 0, fmt.Errorf("failed to set write deadline: %w", err)
		}
	}
	return c.conn.Write(p)
}

func (c *tcpConn) Receive(max int) ([]byte, error) {
	if max <= 0 {
		return nil, fmt.Errorf("invalid receive size %d", max)
	}
	if c.readTimeout > 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
			return nil, fmt.Errorf("failed to set read deadline: %w", err)
		}
	}

	buf := make([]byte, max)
	n, err := c.conn.Read(buf)
	if n > 0 {
		return buf[:n], nil
	}
	if err != nil {
		return nil, err
	}
	return nil, io.ErrNoProgress
}

func (c *tcpConn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

func (c *tcpConn) Endpoint() models.Endpoint {
	return c.endpoint
}
