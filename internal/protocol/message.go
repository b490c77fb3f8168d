// FilePath: internal/protocol/message.go
package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Command codes on the wire. The numeric values are fixed by the existing
// hardware and app client firmware and must not be renumbered.
const (
	CmdResponse            uint8 = 0
	CmdLogin               uint8 = 2
	CmdDeviceConnected     uint8 = 4
	CmdPing                uint8 = 6
	CmdActivateDashboard   uint8 = 8
	CmdDeactivateDashboard uint8 = 9
	CmdTweet               uint8 = 12
	CmdEmail               uint8 = 13
	CmdPushNotification    uint8 = 14
	CmdHardwareSync        uint8 = 16
	CmdInternal            uint8 = 17
	CmdSetWidgetProperty   uint8 = 19
	CmdHardware            uint8 = 20
	CmdGraphData           uint8 = 24
	CmdAppSync             uint8 = 25
	CmdAddPushToken        uint8 = 27
	CmdCreateWidget        uint8 = 33
	CmdUpdateWidget        uint8 = 34
	CmdDeleteWidget        uint8 = 35
	CmdLogout              uint8 = 41
	CmdDeviceOffline       uint8 = 71
)

// Response status codes carried in the body-length field of a CmdResponse frame.
const (
	StatusOK                 uint16 = 200
	StatusIllegalCommand     uint16 = 2
	StatusNotAllowed         uint16 = 6
	StatusDeviceNotInNetwork uint16 = 7
	StatusNoActiveDashboard  uint16 = 8
	StatusInvalidToken       uint16 = 9
	StatusIllegalCommandBody uint16 = 11
	StatusServerError        uint16 = 12
)

// Reserved message ids. 888 marks messages originated by the rule engine,
// 7777 marks internal app-connected/app-disconnected signals to hardware and
// 1111 marks server-originated widget property pushes.
const (
	EventorMessageID  uint16 = 888
	PropertyMessageID uint16 = 1111
	InternalMessageID uint16 = 7777
)

// Bodies of the CmdInternal app attach/detach signal.
const (
	BodyAppConnected    = "acon"
	BodyAppDisconnected = "adis"
)

const headerLength = 5

// MaxBodyLength caps a single inbound frame. Value bodies are short; anything
// larger is a broken or hostile peer.
const MaxBodyLength = 32 * 1024

// Message is one wire frame: a command code, a client-chosen correlation id
// and an opaque body whose fields are separated by BodySeparator.
type Message struct {
	ID      uint16
	Command uint8
	Body    string
}

func (m Message) String() string {
	return fmt.Sprintf("cmd=%d id=%d body=%q", m.Command, m.ID, BodyToSpaces(m.Body))
}

// NewMessage builds a non-response frame.
func NewMessage(command uint8, id uint16, body string) Message {
	return Message{ID: id, Command: command, Body: body}
}

// NewResponse builds an acknowledgement frame for the given message id.
func NewResponse(id uint16, status uint16) Message {
	return Message{ID: id, Command: CmdResponse, Body: string([]byte{byte(status >> 8), byte(status)})}
}

// OK is the positive acknowledgement for id.
func OK(id uint16) Message { return NewResponse(id, StatusOK) }

// StatusOf extracts the status code from a response frame.
func StatusOf(m Message) uint16 {
	if m.Command != CmdResponse || len(m.Body) != 2 {
		return StatusServerError
	}
	return uint16(m.Body[0])<<8 | uint16(m.Body[1])
}

// ReadMessage reads one frame from r. The header is 5 bytes: command, big
// endian message id, big endian body length. For CmdResponse frames the
// length field carries the status code and no body follows.
func ReadMessage(r io.Reader) (Message, error) {
	var header [headerLength]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Message{}, err
	}

	m := Message{
		Command: header[0],
		ID:      binary.BigEndian.Uint16(header[1:3]),
	}

	length := binary.BigEndian.Uint16(header[3:5])
	if m.Command == CmdResponse {
		m.Body = string([]byte{header[3], header[4]})
		return m, nil
	}
	if length > MaxBodyLength {
		return Message{}, fmt.Errorf("frame body of %d bytes exceeds limit", length)
	}
	if length > 0 {
		body := make([]byte, length)
		if _, err := io.ReadFull(r, body); err != nil {
			return Message{}, err
		}
		m.Body = string(body)
	}
	return m, nil
}

// WriteMessage writes one frame to w.
func WriteMessage(w io.Writer, m Message) error {
	var header [headerLength]byte
	header[0] = m.Command
	binary.BigEndian.PutUint16(header[1:3], m.ID)

	if m.Command == CmdResponse {
		header[3], header[4] = m.Body[0], m.Body[1]
		_, err := w.Write(header[:])
		return err
	}

	if len(m.Body) > MaxBodyLength {
		return fmt.Errorf("frame body of %d bytes exceeds limit", len(m.Body))
	}
	binary.BigEndian.PutUint16(header[3:5], uint16(len(m.Body)))
	buf := make([]byte, 0, headerLength+len(m.Body))
	buf = append(buf, header[:]...)
	buf = append(buf, m.Body...)
	_, err := w.Write(buf)
	return err
}

// Conn is a writable peer endpoint. Implementations must be safe for
// concurrent Send calls; session loops and offline timers may both write.
type Conn interface {
	Send(m Message) error
	Close() error
}
