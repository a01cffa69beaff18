package models

import (
	"net"
	"time"
)

// Endpoint identifies a server by host and port
type Endpoint struct {
	Host string
	Port string
}

// NewEndpoint creates an endpoint
func NewEndpoint(host, port string) Endpoint {
	return Endpoint{Host: host, Port: port}
}

// Address returns the host:port form of the endpoint
func (e Endpoint) Address() string {
	return net.JoinHostPort(e.Host, e.Port)
}

func (e Endpoint) String() string {
	return e.Address()
}

// Credential is an opaque authentication token sent verbatim
type Credential string

// ReadingRecord represents an archived sensor reading
type ReadingRecord struct {
	ID         int64     `db:"id"`
	TraceID    string    `db:"trace_id"`
	Query      string    `db:"query_kind"`
	ReadAt     int64     `db:"read_at"`
	Value      int       `db:"reading_value"`
	Unit       string    `db:"unit"`
	SensorPort int       `db:"sensor_port"`
	FetchedAt  time.Time `db:"fetched_at"`
}
