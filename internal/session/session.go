package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/okamoto/esmart-sensor-client/internal/config"
	"github.com/okamoto/esmart-sensor-client/internal/models"
	"github.com/okamoto/esmart-sensor-client/internal/transport"
	"github.com/okamoto/esmart-sensor-client/pkg/protocol"
	"go.uber.org/zap"
)

// Session performs the directory → sensor handshake and query.
// Each call opens and closes its own connections; a Session holds no per-query state.
type Session struct {
	connector           transport.Connector
	directory           models.Endpoint
	directoryCredential models.Credential
	sensorHost          string
	sensorCredential    models.Credential
	legacyNewlines      bool
	maxResponseBytes    int
	logger              *zap.Logger
}

// Exchange describes one completed query
type Exchange struct {
	TraceID  string
	Query    protocol.Query
	Sensor   models.Endpoint
	Reading  protocol.Reading
	Duration time.Duration
}

// New creates a session from the configuration
func New(cfg *config.Config, connector transport.Connector, logger *zap.Logger) *Session {
	return &Session{
		connector:           connector,
		directory:           models.NewEndpoint(cfg.Directory.Host, cfg.Directory.PortString()),
		directoryCredential: models.Credential(cfg.Directory.Credential),
		sensorHost:          cfg.Sensor.Host,
		sensorCredential:    models.Credential(cfg.Sensor.Credential),
		legacyNewlines:      cfg.Protocol.LegacyNewlines,
		maxResponseBytes:    cfg.Transport.MaxResponseBytes,
		logger:              logger,
	}
}

// FetchReading retrieves the latest reading for q
func (s *Session) FetchReading(ctx context.Context, q protocol.Query) (*protocol.Reading, error) {
	ex, err := s.Fetch(ctx, q)
	if err != nil {
		return nil, err
	}
	return &ex.Reading, nil
}

// Fetch retrieves the latest reading for q along with details of the exchange.
// Every connection opened by the call is closed before it returns.
func (s *Session) Fetch(ctx context.Context, q protocol.Query) (*Exchange, error) {
	traceID := uuid.NewString()
	x := &exchange{
		session: s,
		state:   Idle,
		logger:  s.logger.With(zap.String("trace_id", traceID), zap.Stringer("query", q)),
	}
	defer x.releaseAll()

	start := time.Now()
	sensor, reading, err := x.run(ctx, q)
	if err != nil {
		x.logger.Warn("sensor query failed", zap.Error(err))
		return nil, err
	}

	ex := &Exchange{
		TraceID:  traceID,
		Query:    q,
		Sensor:   sensor,
		Reading:  *reading,
		Duration: time.Since(start),
	}

	x.logger.Info("sensor query completed",
		zap.Stringer("sensor", sensor),
		zap.Int64("timestamp", reading.Timestamp),
		zap.Int("value", reading.Value),
		zap.String("unit", reading.Unit),
		zap.Duration("duration", ex.Duration))

	return ex, nil
}

// exchange carries the state of a single Fetch call
type exchange struct {
	session *Session
	state   State
	open    []*tracked
	logger  *zap.Logger
}

type tracked struct {
	conn transport.Conn
	stop func() bool
}

func (x *exchange) run(ctx context.Context, q protocol.Query) (models.Endpoint, *protocol.Reading, error) {
	s := x.session

	queryLine, err := protocol.EncodeQuery(q, s.legacyNewlines)
	if err != nil {
		return models.Endpoint{}, nil, x.fail(KindProtocol, err)
	}

	// Step 1: connect to the directory
	x.transition(DirConnecting)
	dir, err := x.connect(ctx, s.directory)
	if err != nil {
		return models.Endpoint{}, nil, err
	}

	// Step 2: authenticate with the directory
	x.transition(DirAuthenticating)
	if err := x.send(ctx, dir, protocol.EncodeAuth(string(s.directoryCredential))); err != nil {
		return models.Endpoint{}, nil, err
	}

	// Step 3: receive the redirect
	x.transition(AwaitingRedirect)
	data, err := x.receive(ctx, dir)
	if err != nil {
		return models.Endpoint{}, nil, err
	}

	// Step 4: decode the redirect
	redirect, err := protocol.ParseRedirect(data)
	if err != nil {
		return models.Endpoint{}, nil, x.fail(KindProtocol, fmt.Errorf("failed to parse redirect: %w", err))
	}

	sensorHost := s.sensorHost
	if sensorHost == "" {
		sensorHost = redirect.Host
	}
	credential := s.sensorCredential
	if credential == "" {
		credential = models.Credential(redirect.Credential)
	}
	sensor := models.NewEndpoint(sensorHost, strconv.Itoa(redirect.Port))

	// Step 5: connect to the sensor, then let the directory go
	x.transition(SensorConnecting)
	conn, err := x.connect(ctx, sensor)
	if err != nil {
		return models.Endpoint{}, nil, err
	}
	x.release(dir)

	// Step 6: authenticate with the sensor
	x.transition(SensorAuthenticating)
	if err := x.send(ctx, conn, protocol.EncodeAuth(string(credential))); err != nil {
		return models.Endpoint{}, nil, err
	}

	// Step 7: wait for the acknowledgment; only its presence matters
	x.transition(AwaitingAuthAck)
	if _, err := x.receive(ctx, conn); err != nil {
		return models.Endpoint{}, nil, err
	}

	x.transition(QuerySent)
	if err := x.send(ctx, conn, queryLine); err != nil {
		return models.Endpoint{}, nil, err
	}

	// Step 8: receive the reading
	x.transition(AwaitingReading)
	data, err = x.receive(ctx, conn)
	if err != nil {
		return models.Endpoint{}, nil, err
	}

	// Step 9: decode the reading
	reading, err := protocol.ParseReading(data, q.Unit())
	if err != nil {
		return models.Endpoint{}, nil, x.fail(KindProtocol, fmt.Errorf("failed to parse reading: %w", err))
	}

	x.release(conn)
	x.transition(Done)

	return sensor, reading, nil
}

func (x *exchange) transition(to State) {
	x.logger.Debug("session state",
		zap.Stringer("from", x.state),
		zap.Stringer("to", to))
	x.state = to
}

func (x *exchange) fail(kind Kind, err error) error {
	failed := &Error{Kind: kind, State: x.state, Err: err}
	x.transition(Failed)
	return failed
}

// connect opens a connection and tracks it until released.
// Cancelling ctx closes the connection, unblocking any pending send or receive.
func (x *exchange) connect(ctx context.Context, ep models.Endpoint) (transport.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, x.fail(KindConnect, err)
	}

	conn, err := x.session.connector.Connect(ctx, ep)
	if err != nil {
		kind := KindConnect
		if errors.Is(err, transport.ErrResolution) {
			kind = KindResolution
		}
		return nil, x.fail(kind, err)
	}

	x.open = append(x.open, &tracked{
		conn: conn,
		stop: context.AfterFunc(ctx, func() { conn.Close() }),
	})

	return conn, nil
}

func (x *exchange) send(ctx context.Context, conn transport.Conn, p []byte) error {
	n, err := conn.Send(p)
	if err != nil {
		return x.fail(KindTransmission, x.cause(ctx, fmt.Errorf("failed to send to %s: %w", conn.Endpoint(), err)))
	}
	if n <= 0 {
		return x.fail(KindTransmission, fmt.Errorf("%w to %s", ErrNothingSent, conn.Endpoint()))
	}
	return nil
}

func (x *exchange) receive(ctx context.Context, conn transport.Conn) ([]byte, error) {
	data, err := conn.Receive(x.session.maxResponseBytes)
	if err != nil {
		return nil, x.fail(KindTransmission, x.cause(ctx, fmt.Errorf("failed to receive from %s: %w", conn.Endpoint(), err)))
	}
	if len(data) == 0 {
		return nil, x.fail(KindTransmission, fmt.Errorf("%w from %s", ErrEmptyResponse, conn.Endpoint()))
	}

	x.logger.Debug("received response",
		zap.Stringer("endpoint", conn.Endpoint()),
		zap.Int("bytes", len(data)))

	return data, nil
}

// cause prefers the context error when cancellation closed the connection
func (x *exchange) cause(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %v", ctxErr, err)
	}
	return err
}

// release closes conn if it is still tracked
func (x *exchange) release(conn transport.Conn) {
	for i, t := range x.open {
		if t.conn != conn {
			continue
		}
		x.open = append(x.open[:i], x.open[i+1:]...)
		x.closeTracked(t)
		return
	}
}

func (x *exchange) releaseAll() {
	for _, t := range x.open {
		x.closeTracked(t)
	}
	x.open = nil
}

func (x *exchange) closeTracked(t *tracked) {
	t.stop()
	if err := t.conn.Close(); err != nil {
		x.logger.Warn("failed to close connection",
			zap.Stringer("endpoint", t.conn.Endpoint()),
			zap.Error(err))
	}
}
