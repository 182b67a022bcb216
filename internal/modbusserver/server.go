// Package modbusserver implements the TCP/502 Modbus server by wrapping
// github.com/simonvetter/modbus's ModbusServer: MBAP framing, PDU decoding,
// per-function-code validation, and transaction bookkeeping are all the
// library's job. This package supplies the modbus.RequestHandler that
// answers reads from the register map and routes coil writes to the alarm
// router, plus a net.Listener/net.Conn decorator pair that layers the two
// things the library has no hook for: a live client roster, and
// compatibility-mode reply suppression on coil writes.
package modbusserver

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/simonvetter/modbus"
	"github.com/sirupsen/logrus"

	"github.com/fluxionwatt/daqbridge/internal/broadcaster"
	"github.com/fluxionwatt/daqbridge/internal/regmap"
)

// NBConnection is the maximum number of concurrently admitted clients. The
// 26th connection attempt is refused at accept time.
const NBConnection = 25

const (
	fcWriteSingleCoil    = 0x05
	fcWriteMultipleCoils = 0x0F
)

// CoilSink is the capability the server needs to route a coil write;
// satisfied by internal/alarm.Router.
type CoilSink interface {
	SetCoil(addr uint16, state bool) error
}

// Config configures the server.
type Config struct {
	ListenAddr    string
	SlaveID       uint8
	Compatibility bool
}

// Server is the Modbus/TCP listener, a thin shell around a
// *modbus.ModbusServer.
type Server struct {
	cfg  Config
	regs *regmap.Map
	sink CoilSink
	log  logrus.FieldLogger

	roster         *ClientRoster
	onRosterChange *broadcaster.Broadcaster

	inner *modbus.ModbusServer

	mu       sync.Mutex
	listener net.Listener
	conns    map[string]*serverConn
}

// ClientRoster tracks connected clients under a mutex: socket identity to
// peer address.
type ClientRoster struct {
	mu      sync.RWMutex
	clients map[string]string // conn id -> peer addr
}

// NewClientRoster returns an empty roster.
func NewClientRoster() *ClientRoster {
	return &ClientRoster{clients: make(map[string]string)}
}

func (r *ClientRoster) add(id, peer string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[id] = peer
}

func (r *ClientRoster) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, id)
}

// Snapshot returns a copy of the current roster (conn id -> peer address).
func (r *ClientRoster) Snapshot() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string, len(r.clients))
	for k, v := range r.clients {
		out[k] = v
	}
	return out
}

// New builds a Server bound to regs for reads and sink for coil writes.
func New(cfg Config, regs *regmap.Map, sink CoilSink, log logrus.FieldLogger, onRosterChange *broadcaster.Broadcaster) *Server {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = "0.0.0.0:502"
	}
	s := &Server{
		cfg:            cfg,
		regs:           regs,
		sink:           sink,
		log:            log,
		roster:         NewClientRoster(),
		onRosterChange: onRosterChange,
		conns:          make(map[string]*serverConn),
	}

	opts := []modbus.Option{modbus.MaxClients(NBConnection)}
	if log != nil {
		opts = append(opts, modbus.Logger(logrusLeveledLogger{log}))
	}

	inner, err := modbus.New(serverHandler{s}, opts...)
	if err != nil {
		// New() only fails if an Option returns an error; none of ours do.
		panic(fmt.Sprintf("modbusserver: building inner server: %v", err))
	}
	s.inner = inner
	return s
}

// Roster returns the server's client roster.
func (s *Server) Roster() *ClientRoster {
	return s.roster
}

// Serve binds the listener and accepts connections until ctx is canceled.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("modbusserver: listen %s: %w", s.cfg.ListenAddr, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	wrapped := &rosterListener{Listener: ln, srv: s}
	if err := s.inner.Start(wrapped); err != nil {
		ln.Close()
		return fmt.Errorf("modbusserver: start: %w", err)
	}

	<-ctx.Done()
	_ = s.inner.Stop()
	return nil
}

// Close stops the listener, causing Serve to return.
func (s *Server) Close() error {
	return s.inner.Stop()
}

// track registers a newly accepted connection, making it visible to the
// roster and reachable by peer address for reply suppression.
func (s *Server) track(peer string, c *serverConn) {
	s.mu.Lock()
	s.conns[peer] = c
	s.mu.Unlock()
	s.roster.add(peer, peer)
	if s.onRosterChange != nil {
		s.onRosterChange.Signal()
	}
}

// untrack removes a closed connection from the roster and the peer index.
func (s *Server) untrack(peer string) {
	s.mu.Lock()
	delete(s.conns, peer)
	s.mu.Unlock()
	s.roster.remove(peer)
	if s.onRosterChange != nil {
		s.onRosterChange.Signal()
	}
}

// suppressReply arms a one-shot write suppression on the connection
// identified by peer, dropping the library's next reply to that client.
func (s *Server) suppressReply(peer string) {
	s.mu.Lock()
	c := s.conns[peer]
	s.mu.Unlock()
	if c != nil {
		c.suppressNextWrite()
	}
}

// rosterListener wraps the bound net.Listener so every accepted connection
// is tracked and wrapped before the library ever sees it.
type rosterListener struct {
	net.Listener
	srv *Server
}

func (l *rosterListener) Accept() (net.Conn, error) {
	conn, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}
	peer := conn.RemoteAddr().String()
	sc := &serverConn{Conn: conn, srv: l.srv, peer: peer}
	l.srv.track(peer, sc)
	return sc, nil
}

// serverConn decorates an accepted net.Conn with roster cleanup on Close
// and a one-shot suppressed Write, used to implement compatibility-mode
// reply suppression without the library's knowledge.
type serverConn struct {
	net.Conn
	srv  *Server
	peer string

	mu         sync.Mutex
	suppressed bool
}

func (c *serverConn) Write(b []byte) (int, error) {
	c.mu.Lock()
	suppressed := c.suppressed
	c.suppressed = false
	c.mu.Unlock()
	if suppressed {
		return len(b), nil
	}
	return c.Conn.Write(b)
}

func (c *serverConn) suppressNextWrite() {
	c.mu.Lock()
	c.suppressed = true
	c.mu.Unlock()
}

func (c *serverConn) Close() error {
	err := c.Conn.Close()
	c.srv.untrack(c.peer)
	return err
}

// serverHandler implements modbus.RequestHandler against a Server's
// register map and coil sink.
type serverHandler struct {
	s *Server
}

func (h serverHandler) checkUnit(unitID uint8) error {
	if unitID != h.s.cfg.SlaveID && unitID != 0 {
		return modbus.ErrGWTargetFailedToRespond
	}
	return nil
}

// HandleCoils answers read coils (0x01) and routes write single coil
// (0x05) / write multiple coils (0x0F) to the sink. Per the original
// bridge's handleClientRequest, a 0x05 reply is sent unless compatibility
// mode is enabled; a 0x0F request never gets a reply at all.
func (h serverHandler) HandleCoils(req *modbus.CoilsRequest) ([]bool, error) {
	if err := h.checkUnit(req.UnitId); err != nil {
		return nil, err
	}

	if !req.IsWrite {
		out := make([]bool, req.Quantity)
		for i := range out {
			v, ok := h.s.regs.ReadCoil(int(req.Addr) + i)
			if !ok {
				return nil, modbus.ErrIllegalDataAddress
			}
			out[i] = v
		}
		return out, nil
	}

	for i, state := range req.Args {
		addr := req.Addr + uint16(i)
		if h.s.sink != nil {
			if err := h.s.sink.SetCoil(addr, state); err != nil && h.s.log != nil {
				h.s.log.WithError(err).WithField("coil", addr).Warn("modbusserver: coil route failed")
			}
		}
	}

	switch req.WriteFuncCode {
	case fcWriteSingleCoil:
		if h.s.cfg.Compatibility {
			h.s.suppressReply(req.ClientAddr)
		}
	case fcWriteMultipleCoils:
		h.s.suppressReply(req.ClientAddr)
	}

	return nil, nil
}

// HandleDiscreteInputs answers read discrete inputs (0x02).
func (h serverHandler) HandleDiscreteInputs(req *modbus.DiscreteInputsRequest) ([]bool, error) {
	if err := h.checkUnit(req.UnitId); err != nil {
		return nil, err
	}
	out := make([]bool, req.Quantity)
	for i := range out {
		v, ok := h.s.regs.ReadDiscrete(int(req.Addr) + i)
		if !ok {
			return nil, modbus.ErrIllegalDataAddress
		}
		out[i] = v
	}
	return out, nil
}

// HandleHoldingRegisters answers read holding registers (0x03) from the
// same backing array as input registers. Register writes (0x06/0x10) are
// not part of the gateway's protocol surface.
func (h serverHandler) HandleHoldingRegisters(req *modbus.HoldingRegistersRequest) ([]uint16, error) {
	if err := h.checkUnit(req.UnitId); err != nil {
		return nil, err
	}
	if req.IsWrite {
		return nil, modbus.ErrIllegalFunction
	}
	return h.readRegisters(req.Addr, req.Quantity)
}

// HandleInputRegisters answers read input registers (0x04).
func (h serverHandler) HandleInputRegisters(req *modbus.InputRegistersRequest) ([]uint16, error) {
	if err := h.checkUnit(req.UnitId); err != nil {
		return nil, err
	}
	return h.readRegisters(req.Addr, req.Quantity)
}

func (h serverHandler) readRegisters(addr, quantity uint16) ([]uint16, error) {
	out := make([]uint16, quantity)
	for i := range out {
		v, ok := h.s.regs.ReadRegister(int(addr) + i)
		if !ok {
			return nil, modbus.ErrIllegalDataAddress
		}
		out[i] = v
	}
	return out, nil
}

// logrusLeveledLogger adapts a logrus.FieldLogger to the library's
// LeveledLogger interface.
type logrusLeveledLogger struct {
	log logrus.FieldLogger
}

func (l logrusLeveledLogger) Info(msg string)  { l.log.Info(msg) }
func (l logrusLeveledLogger) Warning(msg string) { l.log.Warn(msg) }
func (l logrusLeveledLogger) Error(msg string)  { l.log.Error(msg) }
func (l logrusLeveledLogger) Fatal(msg string)  { l.log.Fatal(msg) }

func (l logrusLeveledLogger) Infof(format string, args ...interface{})    { l.log.Infof(format, args...) }
func (l logrusLeveledLogger) Warningf(format string, args ...interface{}) { l.log.Warnf(format, args...) }
func (l logrusLeveledLogger) Errorf(format string, args ...interface{})   { l.log.Errorf(format, args...) }
func (l logrusLeveledLogger) Fatalf(format string, args ...interface{})   { l.log.Fatalf(format, args...) }
