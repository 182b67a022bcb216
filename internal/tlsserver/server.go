// Package tlsserver implements the line-delimited, semicolon-tokenized TLS
// control protocol: a small set of text commands for one-shot analog reads,
// toggling the simulation/acquisition drivers, and file transfer, all behind
// mandatory TLS. One goroutine per accepted client, grounded on the
// tls.Listen + per-connection goroutine pattern the teacher uses for its
// HTTPS listener.
package tlsserver

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/fluxionwatt/daqbridge/internal/devcert"
)

const (
	maxLineLength = 256
	maxTokens     = 20
)

// AnalogReader performs one-shot analog reads against hardware or the
// simulator, used to serve readCurrent/readVoltage.
type AnalogReader interface {
	ReadCurrent(ctx context.Context, module, channel string) (float64, error)
	ReadVoltage(ctx context.Context, module, channel string) (float64, error)
}

// DriverControl starts and stops the simulation and acquisition drivers,
// enforcing the mutual-exclusion invariant between them.
type DriverControl interface {
	StartSimulation() error
	StopSimulation() error
	StartAcquisition() error
	StopAcquisition() error
}

// AuditFunc records a completed command for the audit trail. detail is
// free-form (command + tokens), peer is the client's remote address.
type AuditFunc func(action, detail, peer string)

// Config configures the control server.
type Config struct {
	ListenAddr  string
	CertFile    string
	KeyFile     string
	TransferDir string // root for uploadToClient/downloadFromClient and listInifiles
}

// Server is the TLS control listener.
type Server struct {
	cfg     Config
	reader  AnalogReader
	ctrl    DriverControl
	audit   AuditFunc
	log     logrus.FieldLogger
	roster  *ClientRoster
	listener net.Listener
}

// New constructs an unstarted control server.
func New(cfg Config, reader AnalogReader, ctrl DriverControl, audit AuditFunc, log logrus.FieldLogger) *Server {
	return &Server{cfg: cfg, reader: reader, ctrl: ctrl, audit: audit, log: log, roster: NewClientRoster()}
}

// Roster exposes the connected-client set, for the status API.
func (s *Server) Roster() *ClientRoster { return s.roster }

func (s *Server) loadCertificate() (tls.Certificate, error) {
	if s.cfg.CertFile != "" && s.cfg.KeyFile != "" {
		if _, err := os.Stat(s.cfg.CertFile); err == nil {
			if _, err := os.Stat(s.cfg.KeyFile); err == nil {
				cert, err := tls.LoadX509KeyPair(s.cfg.CertFile, s.cfg.KeyFile)
				if err == nil {
					return cert, nil
				}
				if s.log != nil {
					s.log.WithError(err).Warn("tlsserver: failed to load configured cert, falling back to dev cert")
				}
			}
		}
	}
	if s.log != nil {
		s.log.Warn("tlsserver: configured TLS cert/key not found, using bundled development certificate")
	}
	return devcert.Pair()
}

// Serve accepts TLS connections until ctx is canceled or Close is called.
func (s *Server) Serve(ctx context.Context) error {
	cert, err := s.loadCertificate()
	if err != nil {
		return fmt.Errorf("tlsserver: load certificate: %w", err)
	}
	tlsCfg := &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}

	ln, err := tls.Listen("tcp", s.cfg.ListenAddr, tlsCfg)
	if err != nil {
		return fmt.Errorf("tlsserver: listen %s: %w", s.cfg.ListenAddr, err)
	}
	s.listener = ln

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		peer := conn.RemoteAddr().String()
		s.roster.Add(peer)
		go func() {
			defer s.roster.Remove(peer)
			s.handleConn(ctx, conn, peer)
		}()
	}
}

// Close stops accepting new connections.
func (s *Server) Close() error {
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn, peer string) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, maxLineLength+1), maxLineLength+1)
	scanner.Split(splitLinesWithLengthCap)

	for scanner.Scan() {
		line := scanner.Text()
		if len(line) > maxLineLength {
			writeReply(conn, "NACK: command rejected")
			return
		}
		reply := s.dispatch(ctx, conn, peer, line)
		if reply != "" {
			writeReply(conn, reply)
		}
	}
}

// splitLinesWithLengthCap is bufio.ScanLines, but refuses to assemble a
// token longer than maxLineLength+1 bytes, returning it as-is so the caller
// can reject it instead of the scanner silently erroring out.
func splitLinesWithLengthCap(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := indexByte(data, '\n'); i >= 0 {
		line := data[0:i]
		line = trimCR(line)
		return i + 1, line, nil
	}
	if atEOF {
		return len(data), data, nil
	}
	if len(data) > maxLineLength {
		return len(data), data, nil
	}
	return 0, nil, nil
}

func indexByte(b []byte, c byte) int {
	for i, x := range b {
		if x == c {
			return i
		}
	}
	return -1
}

func trimCR(b []byte) []byte {
	if len(b) > 0 && b[len(b)-1] == '\r' {
		return b[:len(b)-1]
	}
	return b
}

func writeReply(conn net.Conn, reply string) {
	_, _ = conn.Write([]byte(reply + "\n"))
}

func (s *Server) dispatch(ctx context.Context, conn net.Conn, peer, line string) string {
	tokens := strings.Split(line, ";")
	if len(tokens) == 0 || len(tokens) > maxTokens {
		return "NACK: Invalid command format"
	}
	cmd := tokens[0]
	args := tokens[1:]

	var reply string
	switch cmd {
	case "readCurrent":
		reply = s.cmdReadAnalog(ctx, args, s.reader.ReadCurrent)
	case "readVoltage":
		reply = s.cmdReadAnalog(ctx, args, s.reader.ReadVoltage)
	case "startModbusSimulation":
		reply = s.cmdDriverToggle(s.ctrl.StartSimulation)
	case "stopModbusSimulation":
		reply = s.cmdDriverToggle(s.ctrl.StopSimulation)
	case "startModbusAcquisition":
		reply = s.cmdDriverToggle(s.ctrl.StartAcquisition)
	case "stopModbusAcquisition":
		reply = s.cmdDriverToggle(s.ctrl.StopAcquisition)
	case "uploadToClient":
		reply = s.cmdUpload(conn, args)
	case "downloadFromClient":
		reply = s.cmdDownload(conn, args)
	case "clientList":
		reply = strings.Join(s.roster.Snapshot(), ";")
	case "listInifiles":
		reply = strings.Join(s.listIniFiles(), ";")
	default:
		reply = "NACK: Invalid command format"
	}

	if s.audit != nil {
		s.audit("tls_command", line, peer)
	}
	return reply
}

func (s *Server) cmdReadAnalog(ctx context.Context, args []string, read func(context.Context, string, string) (float64, error)) string {
	if len(args) != 2 {
		return "NACK: Invalid command format"
	}
	v, err := read(ctx, args[0], args[1])
	if err != nil {
		return "NACK: " + err.Error()
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func (s *Server) cmdDriverToggle(fn func() error) string {
	if err := fn(); err != nil {
		return "NACK: " + err.Error()
	}
	return "ACK"
}

func (s *Server) cmdUpload(conn net.Conn, args []string) string {
	if len(args) != 1 {
		return "NACK: Invalid command format"
	}
	path, err := s.safeJoin(args[0])
	if err != nil {
		return "NACK: " + err.Error()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "NACK: " + err.Error()
	}
	writeReply(conn, fmt.Sprintf("Size:%d", len(data)))
	_, _ = conn.Write(data)
	return ""
}

func (s *Server) cmdDownload(conn net.Conn, args []string) string {
	if len(args) != 2 {
		return "NACK: Invalid command format"
	}
	size, err := strconv.Atoi(args[1])
	if err != nil || size < 0 {
		return "NACK: Invalid command format"
	}
	path, err := s.safeJoin(args[0])
	if err != nil {
		return "NACK: " + err.Error()
	}
	buf := make([]byte, size)
	if _, err := readFull(conn, buf); err != nil {
		return "NACK: " + err.Error()
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return "NACK: " + err.Error()
	}
	return "ACK"
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (s *Server) safeJoin(name string) (string, error) {
	if strings.Contains(name, "..") || strings.ContainsAny(name, "/\\") {
		return "", fmt.Errorf("invalid filename")
	}
	return filepath.Join(s.cfg.TransferDir, name), nil
}

var iniFilePattern = regexp.MustCompile(`^NI.*_[0-9]+\.ini$`)

func (s *Server) listIniFiles() []string {
	entries, err := os.ReadDir(s.cfg.TransferDir)
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && iniFilePattern.MatchString(e.Name()) {
			names = append(names, e.Name())
		}
	}
	return names
}

// ClientRoster tracks connected TLS control-protocol peers.
type ClientRoster struct {
	mu   sync.RWMutex
	seen map[string]struct{}
}

// NewClientRoster constructs an empty roster.
func NewClientRoster() *ClientRoster {
	return &ClientRoster{seen: make(map[string]struct{})}
}

// Add records a newly connected peer.
func (r *ClientRoster) Add(peer string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen[peer] = struct{}{}
}

// Remove drops a disconnected peer.
func (r *ClientRoster) Remove(peer string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.seen, peer)
}

// Snapshot returns the currently connected peer addresses.
func (r *ClientRoster) Snapshot() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.seen))
	for p := range r.seen {
		out = append(out, p)
	}
	return out
}
