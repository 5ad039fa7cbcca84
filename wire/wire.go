// Package wire implements Aegis's framing: the length-prefixed frame
// envelope, the 12-byte header that doubles as AEAD associated data, and
// message-type dispatch. Grounded on the teacher's own length-prefixed
// framing style in core/message (header-then-payload parsing with explicit
// bounds checks before any cryptographic operation is attempted).
package wire

import (
	"encoding/binary"

	"github.com/aegis-chat/aegis/internal/aerr"
)

// Type identifies the payload carried by a frame.
type Type byte

const (
	HandshakeHello   Type = 0x01
	HandshakeReply   Type = 0x02
	HandshakeConfirm Type = 0x03
	Data             Type = 0x10
	Rekey            Type = 0x11
	Heartbeat        Type = 0x20
	Close            Type = 0x21
)

func (t Type) String() string {
	switch t {
	case HandshakeHello:
		return "HandshakeHello"
	case HandshakeReply:
		return "HandshakeReply"
	case HandshakeConfirm:
		return "HandshakeConfirm"
	case Data:
		return "Data"
	case Rekey:
		return "Rekey"
	case Heartbeat:
		return "Heartbeat"
	case Close:
		return "Close"
	default:
		return "Unknown"
	}
}

// IsHandshake reports whether t is one of the two pre-session, unencrypted
// handshake message types (Hello/Reply).
func (t Type) IsHandshake() bool {
	return t == HandshakeHello || t == HandshakeReply
}

// Version is the only wire version this implementation speaks.
const Version = 0x01

// HeaderSize is the fixed 12-byte header: version(1) type(1) timestamp(8) key_id(2).
const HeaderSize = 12

// NonceSize and TagSize match crypto/aead's XChaCha20-Poly1305 parameters.
const (
	NonceSize = 24
	TagSize   = 16
)

// MaxFrameSize is the hard ceiling on frame_len, guarding against a
// malicious or corrupted length prefix causing an unbounded allocation. It
// bounds every configured limit: callers may pass a smaller maxFrameSize to
// EncodeFrame/ReadFrameLen to enforce a tighter, operator-configured cap,
// but nothing ever enforces a limit looser than this constant.
const MaxFrameSize = 16 * 1024 * 1024

// effectiveMaxFrameSize clamps a caller-supplied, possibly-zero configured
// limit to the absolute MaxFrameSize ceiling: non-positive or
// larger-than-ceiling values fall back to the ceiling itself.
func effectiveMaxFrameSize(configured int) int {
	if configured <= 0 || configured > MaxFrameSize {
		return MaxFrameSize
	}
	return configured
}

// ConfirmTag is the fixed ASCII tag the HandshakeConfirm message's AEAD
// plaintext must equal exactly.
var ConfirmTag = []byte("AEGIS/CONFIRM/01")

// MaxSkewSeconds bounds how far a frame's header timestamp may drift from
// the local clock before it is rejected as SkewTooLarge.
const MaxSkewSeconds = 5 * 60

// Header is the 12-byte, big-endian-packed frame header. Its encoded bytes
// double as the AEAD associated data for every encrypted frame.
type Header struct {
	Version   uint8
	Type      Type
	Timestamp uint64
	KeyID     uint16
}

// Encode packs h into exactly HeaderSize bytes, big-endian.
func (h Header) Encode() []byte {
	buf := make([]byte, HeaderSize)
	buf[0] = h.Version
	buf[1] = byte(h.Type)
	binary.BigEndian.PutUint64(buf[2:10], h.Timestamp)
	binary.BigEndian.PutUint16(buf[10:12], h.KeyID)
	return buf
}

// DecodeHeader parses a 12-byte header, rejecting an unknown version.
// Unknown types are returned as-is, without an error; the caller decides
// which types are valid at the call site (e.g. handshake vs established).
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) != HeaderSize {
		return Header{}, aerr.New(aerr.ProtocolError, "header has wrong length")
	}
	h := Header{
		Version:   buf[0],
		Type:      Type(buf[1]),
		Timestamp: binary.BigEndian.Uint64(buf[2:10]),
		KeyID:     binary.BigEndian.Uint16(buf[10:12]),
	}
	if h.Version != Version {
		return Header{}, aerr.New(aerr.ProtocolError, "unsupported header version")
	}
	return h, nil
}

// Frame is a fully parsed, not-yet-decrypted wire frame.
type Frame struct {
	Header     Header
	Nonce      [NonceSize]byte
	Ciphertext []byte // includes trailing tag for AEAD frames
}

// EncodeFrame serializes an encrypted frame: [frame_len][header][nonce][ciphertext||tag].
// For the two unencrypted handshake types the caller passes a zero nonce and
// passes the plaintext public-key bytes as ciphertext; EncodeFrame itself
// does not distinguish encrypted from unencrypted payloads.
func EncodeFrame(h Header, nonce [NonceSize]byte, ciphertext []byte, maxFrameSize int) ([]byte, error) {
	body := make([]byte, 0, HeaderSize+NonceSize+len(ciphertext))
	body = append(body, h.Encode()...)
	body = append(body, nonce[:]...)
	body = append(body, ciphertext...)

	if len(body) > effectiveMaxFrameSize(maxFrameSize) {
		return nil, aerr.New(aerr.ProtocolError, "frame exceeds MaxFrameSize")
	}

	out := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(out[0:4], uint32(len(body)))
	copy(out[4:], body)
	return out, nil
}

// DecodeFrameBody parses everything after the 4-byte length prefix: a
// 12-byte header, a 24-byte nonce, and the remaining ciphertext bytes. The
// caller is responsible for having already read exactly frame_len bytes
// (ReadFrameLen + a bounded read) off the transport.
func DecodeFrameBody(body []byte) (Header, [NonceSize]byte, []byte, error) {
	if len(body) < HeaderSize+NonceSize {
		return Header{}, [NonceSize]byte{}, nil, aerr.New(aerr.ProtocolError, "frame body too short")
	}
	h, err := DecodeHeader(body[:HeaderSize])
	if err != nil {
		return Header{}, [NonceSize]byte{}, nil, err
	}
	var nonce [NonceSize]byte
	copy(nonce[:], body[HeaderSize:HeaderSize+NonceSize])
	ciphertext := body[HeaderSize+NonceSize:]
	return h, nonce, ciphertext, nil
}

// ReadFrameLen decodes the 4-byte big-endian length prefix and validates it
// against maxFrameSize (clamped to the absolute MaxFrameSize ceiling) before
// the caller allocates a buffer to read into.
func ReadFrameLen(prefix []byte, maxFrameSize int) (uint32, error) {
	if len(prefix) != 4 {
		return 0, aerr.New(aerr.ProtocolError, "length prefix must be 4 bytes")
	}
	n := binary.BigEndian.Uint32(prefix)
	if n > uint32(effectiveMaxFrameSize(maxFrameSize)) {
		return 0, aerr.New(aerr.ProtocolError, "declared frame length exceeds MaxFrameSize")
	}
	if n < HeaderSize+NonceSize {
		return 0, aerr.New(aerr.ProtocolError, "declared frame length too short for header+nonce")
	}
	return n, nil
}

// CheckTimestamp validates a header's timestamp against the local clock,
// accepting drift of up to MaxSkewSeconds in either direction.
func CheckTimestamp(headerTS uint64, nowUnix int64) error {
	diff := int64(headerTS) - nowUnix
	if diff < 0 {
		diff = -diff
	}
	if diff > MaxSkewSeconds {
		return aerr.New(aerr.SkewTooLarge, "frame timestamp outside accepted skew window")
	}
	return nil
}

// EncodeSequence prefixes an 8-byte big-endian sequence number onto
// plaintext, per the frozen wire choice (sequence carried inside the AEAD
// plaintext, not the header) recorded in SPEC_FULL.md §6.
func EncodeSequence(seq uint64, plaintext []byte) []byte {
	out := make([]byte, 8+len(plaintext))
	binary.BigEndian.PutUint64(out[:8], seq)
	copy(out[8:], plaintext)
	return out
}

// DecodeSequence splits a decrypted plaintext into its 8-byte sequence
// prefix and the remaining application/control bytes.
func DecodeSequence(plaintext []byte) (seq uint64, rest []byte, err error) {
	if len(plaintext) < 8 {
		return 0, nil, aerr.New(aerr.ProtocolError, "plaintext too short for sequence prefix")
	}
	return binary.BigEndian.Uint64(plaintext[:8]), plaintext[8:], nil
}
