// Package httpsrc implements the HTTP source pipe of spec.md §4.8: a pipe
// with no input that fetches a stream over HTTP(S) and emits urefs carrying
// the fetched bytes. The package also defines a pluggable TLS "hook"
// interface and a probe that picks a hook (plain or TLS) from the URI
// scheme; Source itself fetches through net/http and does not use a hook.
//
// Grounded on internal/httpclient (retry/backoff policy, per-host
// semaphore) for the transport path, internal/safeurl for scheme
// validation, and content-sniffing (see detectFlowDef below) for picking
// the pipeline's initial flow.def.
package httpsrc

import (
	"crypto/tls"
	"errors"
	"net"
)

// Flags is a readiness bitmask a Hook reports so the driving pipe knows
// which of its four half-duplex paths currently have work to do (spec.md
// §4.8).
type Flags int

const (
	FlagTransportRead Flags = 1 << iota
	FlagTransportWrite
	FlagDataRead
	FlagDataWrite
)

func (f Flags) Has(bit Flags) bool { return f&bit != 0 }

// ErrNotSupported is returned by a Hook's Transport path when the
// underlying engine does not expose a separate encrypted-record buffer
// from its plaintext data path (see tlsHook below).
var ErrNotSupported = errors.New("httpsrc: transport path not supported by this hook")

// Hook is the two-half-duplex-path abstraction spec.md §4.8 requires:
// "transport" moves bytes between the socket and the engine, "data" moves
// bytes between the engine and the application. A plain pass-through hook
// makes both paths identical; an encrypting hook's data path carries
// plaintext and its transport path carries ciphertext.
type Hook interface {
	Flags() Flags
	TransportRead(p []byte) (int, error)
	TransportWrite(p []byte) (int, error)
	DataRead(p []byte) (int, error)
	DataWrite(p []byte) (int, error)
	Close() error
}

// plainHook is the pass-through implementation: transport and data are the
// same socket, so both path pairs forward directly to conn.
type plainHook struct {
	conn net.Conn
}

// NewPlainHook wraps conn with no encryption (spec.md §4.8 "a plain
// pass-through").
func NewPlainHook(conn net.Conn) Hook { return &plainHook{conn: conn} }

func (h *plainHook) Flags() Flags                       { return FlagTransportRead | FlagTransportWrite | FlagDataRead | FlagDataWrite }
func (h *plainHook) TransportRead(p []byte) (int, error)  { return h.conn.Read(p) }
func (h *plainHook) TransportWrite(p []byte) (int, error) { return h.conn.Write(p) }
func (h *plainHook) DataRead(p []byte) (int, error)       { return h.conn.Read(p) }
func (h *plainHook) DataWrite(p []byte) (int, error)      { return h.conn.Write(p) }
func (h *plainHook) Close() error                         { return h.conn.Close() }

// tlsHook wraps crypto/tls. The original pluggable-TLS pattern this
// replicates (BearSSL/OpenSSL) exposes handshake records and application
// data as two independent memory buffers so the driving pipe can pump each
// side non-blockingly. crypto/tls instead owns its net.Conn end-to-end and
// manages the handshake internally, so there is no separate encrypted-
// record buffer to expose: TransportRead/TransportWrite report
// ErrNotSupported here rather than faking a buffer crypto/tls does not
// give us, and the data path drives the handshake lazily on first use, the
// way tls.Conn itself does.
type tlsHook struct {
	conn *tls.Conn
}

// NewTLSHook wraps conn with stdlib TLS for serverName, standing in for
// the original's BearSSL/OpenSSL engines (DESIGN.md records why no
// cgo-backed binding from the pack is used here).
func NewTLSHook(conn net.Conn, serverName string) Hook {
	return &tlsHook{conn: tls.Client(conn, &tls.Config{ServerName: serverName})}
}

func (h *tlsHook) Flags() Flags                       { return FlagDataRead | FlagDataWrite }
func (h *tlsHook) TransportRead(p []byte) (int, error)  { return 0, ErrNotSupported }
func (h *tlsHook) TransportWrite(p []byte) (int, error) { return 0, ErrNotSupported }
func (h *tlsHook) DataRead(p []byte) (int, error)       { return h.conn.Read(p) }
func (h *tlsHook) DataWrite(p []byte) (int, error)      { return h.conn.Write(p) }
func (h *tlsHook) Close() error                         { return h.conn.Close() }
