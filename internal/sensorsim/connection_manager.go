package sensorsim

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ConnectionInfo represents an accepted client connection
type ConnectionInfo struct {
	ID          int64
	Role        string
	RemoteAddr  string
	ConnectedAt time.Time
}

// ConnectionManager tracks the connections held open by the simulator
type ConnectionManager struct {
	connections map[int64]net.Conn
	connInfo    map[int64]*ConnectionInfo
	nextID      atomic.Int64
	accepted    atomic.Int64
	mu          sync.RWMutex
	logger      *zap.Logger
}

// NewConnectionManager creates a new connection manager
func NewConnectionManager(logger *zap.Logger) *ConnectionManager {
	return &ConnectionManager{
		connections: make(map[int64]net.Conn),
		connInfo:    make(map[int64]*ConnectionInfo),
		logger:      logger,
	}
}

// Register adds a connection and returns its id
func (cm *ConnectionManager) Register(role string, conn net.Conn) int64 {
	id := cm.nextID.Add(1)
	cm.accepted.Add(1)

	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.connections[id] = conn
	cm.connInfo[id] = &ConnectionInfo{
		ID:          id,
		Role:        role,
		RemoteAddr:  conn.RemoteAddr().String(),
		ConnectedAt: time.Now(),
	}

	cm.logger.Debug("connection registered",
		zap.Int64("id", id),
		zap.String("role", role),
		zap.String("remote_addr", conn.RemoteAddr().String()))

	return id
}

// Unregister closes and removes a connection
func (cm *ConnectionManager) Unregister(id int64) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if conn, exists := cm.connections[id]; exists {
		conn.Close()
		delete(cm.connections, id)
		delete(cm.connInfo, id)

		cm.logger.Debug("connection unregistered", zap.Int64("id", id))
	}
}

// Count returns the number of active connections
func (cm *ConnectionManager) Count() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	return len(cm.connections)
}

// CountRole returns the number of active connections for one server role
func (cm *ConnectionManager) CountRole(role string) int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	n := 0
	for _, info := range cm.connInfo {
		if info.Role == role {
			n++
		}
	}
	return n
}

// Accepted returns the number of connections accepted since start
func (cm *ConnectionManager) Accepted() int64 {
	return cm.accepted.Load()
}

// CloseAll closes all active connections
func (cm *ConnectionManager) CloseAll() {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	for id, conn := range cm.connections {
		conn.Close()
		cm.logger.Debug("closing connection", zap.Int64("id", id))
	}

	cm.connections = make(map[int64]net.Conn)
	cm.connInfo = make(map[int64]*ConnectionInfo)
}
