package sensorsim

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/okamoto/esmart-sensor-client/internal/models"
	"github.com/okamoto/esmart-sensor-client/pkg/protocol"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Server roles
const (
	RoleDirectory = "directory"
	RoleSensor    = "sensor"
)

// Replies sent by the sensor server after authentication
const (
	AuthSuccess = "SUCCESS\n"
	AuthFailure = "FAILURE\n"
)

// ReadingFunc produces the reading returned for a query
type ReadingFunc func(q protocol.Query) protocol.Reading

// Config contains simulator settings
type Config struct {
	Host                string
	DirectoryPort       int // 0 picks a free port
	SensorPort          int // 0 picks a free port
	AdvertisedHost      string
	DirectoryCredential string
	SensorCredential    string
	ReadTimeout         time.Duration
	Readings            ReadingFunc
}

// DefaultConfig returns a loopback simulator speaking to the default client credentials
func DefaultConfig() Config {
	return Config{
		Host:                "127.0.0.1",
		AdvertisedHost:      "sensor.esmarttech.com",
		DirectoryCredential: "password123",
		SensorCredential:    "sensorpass321",
		ReadTimeout:         30 * time.Second,
		Readings:            CurrentReadings,
	}
}

// CurrentReadings returns fixed values stamped with the current time
func CurrentReadings(q protocol.Query) protocol.Reading {
	values := map[protocol.Query]int{
		protocol.AirTemperature:   72,
		protocol.RelativeHumidity: 45,
		protocol.WindSpeed:        12,
	}
	return protocol.Reading{Timestamp: time.Now().Unix(), Value: values[q], Unit: q.Unit()}
}

// Server runs a directory server and a sensor server on loopback listeners
type Server struct {
	config    Config
	directory net.Listener
	sensor    net.Listener
	connMgr   *ConnectionManager
	logger    *zap.Logger
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewServer creates a new simulator
func NewServer(cfg Config, logger *zap.Logger) *Server {
	ctx, cancel := context.WithCancel(context.Background())

	if cfg.Readings == nil {
		cfg.Readings = CurrentReadings
	}

	return &Server{
		config:  cfg,
		connMgr: NewConnectionManager(logger),
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start opens both listeners and begins accepting connections
func (s *Server) Start() error {
	sensor, err := net.Listen("tcp4", net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.SensorPort)))
	if err != nil {
		return fmt.Errorf("failed to start sensor server: %w", err)
	}

	directory, err := net.Listen("tcp4", net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.DirectoryPort)))
	if err != nil {
		sensor.Close()
		return fmt.Errorf("failed to start directory server: %w", err)
	}

	s.sensor = sensor
	s.directory = directory

	s.logger.Info("simulator started",
		zap.String("directory", directory.Addr().String()),
		zap.String("sensor", sensor.Addr().String()))

	s.wg.Add(2)
	go s.acceptConnections(RoleDirectory, directory, s.handleDirectory)
	go s.acceptConnections(RoleSensor, sensor, s.handleSensor)

	return nil
}

// DirectoryEndpoint returns the address clients should dial first
func (s *Server) DirectoryEndpoint() models.Endpoint {
	return endpointOf(s.directory)
}

// SensorEndpoint returns the address the redirect points at
func (s *Server) SensorEndpoint() models.Endpoint {
	return endpointOf(s.sensor)
}

// ConnectionManager returns the connection manager
func (s *Server) ConnectionManager() *ConnectionManager {
	return s.connMgr
}

func endpointOf(ln net.Listener) models.Endpoint {
	addr := ln.Addr().(*net.TCPAddr)
	return models.NewEndpoint(addr.IP.String(), strconv.Itoa(addr.Port))
}

func (s *Server) acceptConnections(role string, ln net.Listener, handle func(net.Conn)) {
	defer s.wg.Done()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Error("failed to accept connection", zap.String("role", role), zap.Error(err))
			continue
		}

		id := s.connMgr.Register(role, conn)

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.connMgr.Unregister(id)
			handle(conn)
		}()
	}
}

// handleDirectory answers a valid AUTH line with a redirect, then holds the
// connection until the client closes it
func (s *Server) handleDirectory(conn net.Conn) {
	line, err := s.readMessage(conn)
	if err != nil {
		s.logger.Debug("directory read failed", zap.Error(err))
		return
	}

	if line != protocol.AuthCommand+" "+s.config.DirectoryCredential {
		s.logger.Warn("directory authentication rejected", zap.String("line", line))
		conn.Write([]byte(AuthFailure))
		return
	}

	redirect := fmt.Sprintf("%s %s %s %s\n",
		protocol.RedirectCommand,
		s.config.AdvertisedHost,
		s.SensorEndpoint().Port,
		s.config.SensorCredential)
	if _, err := conn.Write([]byte(redirect)); err != nil {
		s.logger.Error("failed to send redirect", zap.Error(err))
		return
	}

	// wait for the client to hang up
	s.readMessage(conn)
}

// handleSensor authenticates the client and answers one query
func (s *Server) handleSensor(conn net.Conn) {
	line, err := s.readMessage(conn)
	if err != nil {
		s.logger.Debug("sensor read failed", zap.Error(err))
		return
	}

	if line != protocol.AuthCommand+" "+s.config.SensorCredential {
		s.logger.Warn("sensor authentication rejected", zap.String("line", line))
		conn.Write([]byte(AuthFailure))
		return
	}
	if _, err := conn.Write([]byte(AuthSuccess)); err != nil {
		return
	}

	keyword, err := s.readMessage(conn)
	if err != nil {
		s.logger.Debug("sensor query read failed", zap.Error(err))
		return
	}

	q, err := protocol.ParseQuery(keyword)
	if err != nil {
		s.logger.Warn("unknown sensor query", zap.String("keyword", keyword))
		return
	}

	r := s.config.Readings(q)
	reply := fmt.Sprintf("%d %d %s\n", r.Timestamp, r.Value, r.Unit)
	if _, err := conn.Write([]byte(reply)); err != nil {
		s.logger.Error("failed to send reading", zap.Error(err))
		return
	}

	s.logger.Debug("reading served", zap.Stringer("query", q), zap.String("reply", strings.TrimSpace(reply)))

	// wait for the client to hang up
	s.readMessage(conn)
}

// readMessage performs a single read, as the deployed servers do; the
// client does not always newline-terminate its queries
func (s *Server) readMessage(conn net.Conn) (string, error) {
	if s.config.ReadTimeout > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout)); err != nil {
			return "", err
		}
	}

	buf := make([]byte, 1024)
	n, err := conn.Read(buf)
	if n == 0 && err != nil {
		return "", err
	}
	return strings.TrimRight(string(buf[:n]), "\r\n\x00"), nil
}

// Stop closes the listeners and every open connection
func (s *Server) Stop() error {
	s.logger.Info("stopping simulator")

	s.cancel()

	var err error
	for _, ln := range []net.Listener{s.directory, s.sensor} {
		if ln != nil {
			err = multierr.Append(err, ln.Close())
		}
	}

	s.connMgr.CloseAll()
	s.wg.Wait()

	s.logger.Info("simulator stopped")
	return err
}
