package tlsserver

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"
)

type fakeReader struct{}

func (fakeReader) ReadCurrent(ctx context.Context, module, channel string) (float64, error) {
	return 12.5, nil
}
func (fakeReader) ReadVoltage(ctx context.Context, module, channel string) (float64, error) {
	return 230.0, nil
}

type fakeCtrl struct {
	simActive bool
	acqActive bool
}

func (c *fakeCtrl) StartSimulation() error { c.simActive = true; c.acqActive = false; return nil }
func (c *fakeCtrl) StopSimulation() error  { c.simActive = false; return nil }
func (c *fakeCtrl) StartAcquisition() error { c.acqActive = true; c.simActive = false; return nil }
func (c *fakeCtrl) StopAcquisition() error  { c.acqActive = false; return nil }

func startTestTLSServer(t *testing.T) (*Server, string) {
	t.Helper()
	srv := New(Config{ListenAddr: "127.0.0.1:0", TransferDir: t.TempDir()}, fakeReader{}, &fakeCtrl{}, nil, nil)

	cert, err := srv.loadCertificate()
	if err != nil {
		t.Fatalf("loadCertificate: %v", err)
	}
	tlsCfg := &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}
	ln, err := tls.Listen("tcp", "127.0.0.1:0", tlsCfg)
	if err != nil {
		t.Fatalf("tls.Listen: %v", err)
	}
	srv.listener = ln

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			peer := conn.RemoteAddr().String()
			srv.roster.Add(peer)
			go func() {
				defer srv.roster.Remove(peer)
				srv.handleConn(ctx, conn, peer)
			}()
		}
	}()

	return srv, ln.Addr().String()
}

func dialTestClient(t *testing.T, addr string) net.Conn {
	t.Helper()
	conn, err := tls.Dial("tcp", addr, &tls.Config{InsecureSkipVerify: true})
	if err != nil {
		t.Fatalf("tls.Dial: %v", err)
	}
	return conn
}

func TestReadCurrentCommand(t *testing.T) {
	_, addr := startTestTLSServer(t)
	conn := dialTestClient(t, addr)
	defer conn.Close()

	fmt.Fprintf(conn, "readCurrent;mod1;c0\n")
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	reply, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		t.Fatalf("read reply: %v", err)
	}
	if strings.TrimSpace(reply) != "12.5" {
		t.Fatalf("expected 12.5, got %q", reply)
	}
}

func TestStartSimulationThenAcquisitionToggle(t *testing.T) {
	srv, addr := startTestTLSServer(t)
	conn := dialTestClient(t, addr)
	defer conn.Close()
	r := bufio.NewReader(conn)

	fmt.Fprintf(conn, "startModbusSimulation\n")
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	reply, _ := r.ReadString('\n')
	if strings.TrimSpace(reply) != "ACK" {
		t.Fatalf("expected ACK, got %q", reply)
	}

	fmt.Fprintf(conn, "startModbusAcquisition\n")
	reply, _ = r.ReadString('\n')
	if strings.TrimSpace(reply) != "ACK" {
		t.Fatalf("expected ACK, got %q", reply)
	}

	ctrl := srv.ctrl.(*fakeCtrl)
	if ctrl.simActive {
		t.Fatalf("expected simulation inactive after acquisition start")
	}
	if !ctrl.acqActive {
		t.Fatalf("expected acquisition active")
	}
}

func TestOverLengthLineClosesConnection(t *testing.T) {
	_, addr := startTestTLSServer(t)
	conn := dialTestClient(t, addr)
	defer conn.Close()

	line := strings.Repeat("a", 260) + "\n"
	fmt.Fprint(conn, line)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	r := bufio.NewReader(conn)
	reply, err := r.ReadString('\n')
	if err != nil {
		t.Fatalf("read reply: %v", err)
	}
	if strings.TrimSpace(reply) != "NACK: command rejected" {
		t.Fatalf("expected rejection, got %q", reply)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1)
	if _, err := conn.Read(buf); err == nil {
		t.Fatalf("expected connection closed after oversize line")
	}
}

func TestMalformedCommandFormat(t *testing.T) {
	_, addr := startTestTLSServer(t)
	conn := dialTestClient(t, addr)
	defer conn.Close()

	fmt.Fprintf(conn, "readCurrent;onlyOneArg\n")
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	reply, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		t.Fatalf("read reply: %v", err)
	}
	if strings.TrimSpace(reply) != "NACK: Invalid command format" {
		t.Fatalf("expected NACK, got %q", reply)
	}
}
