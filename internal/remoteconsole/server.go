// Package remoteconsole exposes the same shell.Dispatcher the local REPL
// uses over a QUIC listener: every stream a connection opens is served as its
// own session, newline-terminated commands in, newline-terminated output
// back, the same accept-loop shape
// a debug-protocol server exposes over a plain TCP socket, just over QUIC.
package remoteconsole

import (
	"bufio"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"io"
	"math/big"
	"sync"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/kacchi-os/kernel/internal/console"
	"github.com/kacchi-os/kernel/internal/shell"
)

// streamConsole adapts a single QUIC stream to console.Console, so a
// per-connection Dispatcher (see shell.Dispatcher.WithOutput) answers over
// that stream instead of the kernel's own console. Getc and Clear are
// unsupported over this transport: the remote console is read with a line
// scanner, and "clear" just no-ops rather than emitting ANSI escapes into
// someone else's terminal emulator of unknown capability.
type streamConsole struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *streamConsole) Putc(ch byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = s.w.Write([]byte{ch})
}

func (s *streamConsole) Puts(str string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = io.WriteString(s.w, str)
}

func (s *streamConsole) Getc() (byte, error) { return 0, io.EOF }

func (s *streamConsole) Clear() {}

// Server accepts QUIC connections and serves the shared command dispatcher
// over each one.
type Server struct {
	Addr string
	Base *shell.Dispatcher
	Con  console.Console
}

// NewServer constructs a Server. base's own Out is left untouched; each
// connection gets its own WithOutput clone.
func NewServer(addr string, base *shell.Dispatcher, con console.Console) *Server {
	return &Server{Addr: addr, Base: base, Con: con}
}

// Run listens on Addr and serves connections until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	tlsConf, err := selfSignedTLSConfig()
	if err != nil {
		return fmt.Errorf("remoteconsole: tls config: %w", err)
	}

	listener, err := quic.ListenAddr(s.Addr, tlsConf, &quic.Config{MaxIdleTimeout: 5 * time.Minute})
	if err != nil {
		return fmt.Errorf("remoteconsole: listen on %s: %w", s.Addr, err)
	}
	defer listener.Close()

	if s.Con != nil {
		console.Diagf(s.Con, "REMOTE", "listening on %s", s.Addr)
	}

	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept(ctx)
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				continue
			}
		}

		go s.handleConn(ctx, conn)
	}
}

func (s *Server) handleConn(ctx context.Context, conn *quic.Conn) {
	for {
		stream, err := conn.AcceptStream(ctx)
		if err != nil {
			return
		}

		go s.handleStream(stream)
	}
}

func (s *Server) handleStream(stream *quic.Stream) {
	defer stream.Close()

	out := &streamConsole{w: stream}
	d := s.Base.WithOutput(out)

	out.Puts("kacchiOS remote console. Type 'help' for commands.\n")

	scanner := bufio.NewScanner(stream)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		d.Execute(line)
	}
}

// selfSignedTLSConfig generates an ephemeral self-signed certificate, the
// way quic-go's own examples bootstrap TLS for a demo listener — this
// console is a debugging aid, not a hardened production endpoint.
func selfSignedTLSConfig() (*tls.Config, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}

	template := x509.Certificate{SerialNumber: big.NewInt(1)}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return nil, err
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})

	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, err
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{"kacchi-debug"},
	}, nil
}
