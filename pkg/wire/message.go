package wire

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"time"
)

// Network magic values select which wire network a session speaks.
const (
	MainnetMagic uint32 = 0xd9b4bef9
	TestnetMagic uint32 = 0x0709110b
)

// Default peer ports per network.
const (
	MainnetPort = 8555
	TestnetPort = 18555
)

const (
	// ProtocolVersion is the version this implementation advertises.
	ProtocolVersion uint32 = 70001

	commandSize    = 12
	headerSize     = 4 + commandSize + 4 + 4
	maxPayloadSize = 1 << 20 // 1 MiB

	// MaxAddrPerMessage bounds addr payloads; peers sending more are
	// protocol violators.
	MaxAddrPerMessage = 1000

	addrEntrySize = 4 + 8 + 16 + 2
)

// Message commands.
const (
	CmdVersion = "version"
	CmdVerack  = "verack"
	CmdGetAddr = "getaddr"
	CmdAddr    = "addr"
)

var (
	ErrUnknownCommand = errors.New("wire: unknown command")
	ErrBadMagic       = errors.New("wire: bad network magic")
	ErrBadChecksum    = errors.New("wire: payload checksum mismatch")
	ErrOversized      = errors.New("wire: payload exceeds maximum size")
)

// Message is implemented by every protocol message.
type Message interface {
	Command() string
	encode(w io.Writer) error
	decode(r io.Reader) error
}

// NetAddress is one advertised peer address as carried in addr payloads.
type NetAddress struct {
	Timestamp time.Time
	Services  uint64
	IP        net.IP
	Port      uint16
}

// Key returns the registry deduplication key for the address.
func (na NetAddress) Key() string {
	return net.JoinHostPort(na.IP.String(), fmt.Sprintf("%d", na.Port))
}

// VersionMessage opens the handshake.
type VersionMessage struct {
	Version   uint32
	Services  uint64
	Timestamp time.Time
	Nonce     uint64
	Relay     bool
}

func (m *VersionMessage) Command() string { return CmdVersion }

func (m *VersionMessage) encode(w io.Writer) error {
	var relay uint8
	if m.Relay {
		relay = 1
	}
	fields := []any{m.Version, m.Services, m.Timestamp.Unix(), m.Nonce, relay}
	for _, f := range fields {
		if err := binary.Write(w, binary.LittleEndian, f); err != nil {
			return err
		}
	}
	return nil
}

func (m *VersionMessage) decode(r io.Reader) error {
	var (
		ts    int64
		relay uint8
	)
	if err := readFields(r, &m.Version, &m.Services, &ts, &m.Nonce, &relay); err != nil {
		return err
	}
	m.Timestamp = time.Unix(ts, 0).UTC()
	m.Relay = relay != 0
	return nil
}

// VerackMessage acknowledges a version.
type VerackMessage struct{}

func (m *VerackMessage) Command() string        { return CmdVerack }
func (m *VerackMessage) encode(io.Writer) error { return nil }
func (m *VerackMessage) decode(io.Reader) error { return nil }

// GetAddrMessage requests known peer addresses.
type GetAddrMessage struct{}

func (m *GetAddrMessage) Command() string        { return CmdGetAddr }
func (m *GetAddrMessage) encode(io.Writer) error { return nil }
func (m *GetAddrMessage) decode(io.Reader) error { return nil }

// AddrMessage carries a list of known peer addresses.
type AddrMessage struct {
	Addresses []NetAddress
}

func (m *AddrMessage) Command() string { return CmdAddr }

func (m *AddrMessage) encode(w io.Writer) error {
	if len(m.Addresses) > MaxAddrPerMessage {
		return fmt.Errorf("wire: %d addresses exceeds limit of %d", len(m.Addresses), MaxAddrPerMessage)
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(m.Addresses))); err != nil {
		return err
	}
	for _, na := range m.Addresses {
		ip := na.IP.To16()
		if ip == nil {
			return fmt.Errorf("wire: invalid address %v", na.IP)
		}
		if err := binary.Write(w, binary.LittleEndian, uint32(na.Timestamp.Unix())); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, na.Services); err != nil {
			return err
		}
		if _, err := w.Write(ip); err != nil {
			return err
		}
		// port travels in network byte order
		if err := binary.Write(w, binary.BigEndian, na.Port); err != nil {
			return err
		}
	}
	return nil
}

func (m *AddrMessage) decode(r io.Reader) error {
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return err
	}
	if count > MaxAddrPerMessage {
		return fmt.Errorf("wire: %d addresses exceeds limit of %d", count, MaxAddrPerMessage)
	}
	m.Addresses = make([]NetAddress, 0, count)
	for i := uint32(0); i < count; i++ {
		var (
			ts   uint32
			svcs uint64
			ip   [16]byte
			port uint16
		)
		if err := binary.Read(r, binary.LittleEndian, &ts); err != nil {
			return err
		}
		if err := binary.Read(r, binary.LittleEndian, &svcs); err != nil {
			return err
		}
		if _, err := io.ReadFull(r, ip[:]); err != nil {
			return err
		}
		if err := binary.Read(r, binary.BigEndian, &port); err != nil {
			return err
		}
		m.Addresses = append(m.Addresses, NetAddress{
			Timestamp: time.Unix(int64(ts), 0).UTC(),
			Services:  svcs,
			IP:        net.IP(ip[:]),
			Port:      port,
		})
	}
	return nil
}

func makeMessage(command string) (Message, error) {
	switch command {
	case CmdVersion:
		return &VersionMessage{}, nil
	case CmdVerack:
		return &VerackMessage{}, nil
	case CmdGetAddr:
		return &GetAddrMessage{}, nil
	case CmdAddr:
		return &AddrMessage{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, command)
}

func checksum(payload []byte) [4]byte {
	first := sha256.Sum256(payload)
	second := sha256.Sum256(first[:])
	var out [4]byte
	copy(out[:], second[:4])
	return out
}

// WriteMessage frames and writes one message:
// magic | command (12 bytes, zero padded) | payload length | checksum | payload.
func WriteMessage(w io.Writer, magic uint32, msg Message) error {
	var payload bytes.Buffer
	if err := msg.encode(&payload); err != nil {
		return err
	}
	if payload.Len() > maxPayloadSize {
		return ErrOversized
	}
	var cmd [commandSize]byte
	if len(msg.Command()) > commandSize {
		return fmt.Errorf("wire: command %q too long", msg.Command())
	}
	copy(cmd[:], msg.Command())

	var hdr bytes.Buffer
	_ = binary.Write(&hdr, binary.LittleEndian, magic)
	_, _ = hdr.Write(cmd[:])
	_ = binary.Write(&hdr, binary.LittleEndian, uint32(payload.Len()))
	ck := checksum(payload.Bytes())
	_, _ = hdr.Write(ck[:])

	if _, err := w.Write(hdr.Bytes()); err != nil {
		return err
	}
	_, err := w.Write(payload.Bytes())
	return err
}

// ReadMessage reads and decodes one framed message, validating magic, size and
// checksum before interpreting the payload.
func ReadMessage(r io.Reader, magic uint32) (Message, error) {
	var hdr [headerSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	gotMagic := binary.LittleEndian.Uint32(hdr[0:4])
	if gotMagic != magic {
		return nil, fmt.Errorf("%w: got %#x want %#x", ErrBadMagic, gotMagic, magic)
	}
	command := string(bytes.TrimRight(hdr[4:4+commandSize], "\x00"))
	length := binary.LittleEndian.Uint32(hdr[4+commandSize : 4+commandSize+4])
	if length > maxPayloadSize {
		return nil, ErrOversized
	}
	var wantCk [4]byte
	copy(wantCk[:], hdr[headerSize-4:])

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	if checksum(payload) != wantCk {
		return nil, ErrBadChecksum
	}
	msg, err := makeMessage(command)
	if err != nil {
		return nil, err
	}
	if err := msg.decode(bytes.NewReader(payload)); err != nil {
		return nil, fmt.Errorf("wire: decode %s: %w", command, err)
	}
	return msg, nil
}

func readFields(r io.Reader, fields ...any) error {
	for _, f := range fields {
		if err := binary.Read(r, binary.LittleEndian, f); err != nil {
			return err
		}
	}
	return nil
}
