/*Package mailbox implements the scheduler's inter-process message
channel over a Unix-domain datagram socket, the wire-compatible
stand-in for the source's SysV message queue (DESIGN NOTES section 9:
"any wire-compatible alternative... suffices if multiple local clients
can enqueue and the server can dequeue by recipient id").

Each message is a fixed binary Header (encoding/binary, big-endian, to
match the encoder frame's own MSB-first convention) optionally followed
by a length-prefixed gob-encoded Record. SendTo retries up to
MaxSendAttempts times at SendRetryInterval spacing, mirroring
comm.RemoteDevice's use of a cenkalti/backoff constant backoff around a
flaky transport.
*/
package mailbox

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/cenkalti/backoff"
)

// Action identifies the operation a Message requests, matching
// spec.md section 6's action table.
type Action int32

// Mailbox actions.
const (
	Ping   Action = 1
	List   Action = 2
	Add    Action = 4
	Delete Action = 8
	Cancel Action = 16
	Stop   Action = 32
	Clear  Action = 64
)

func (a Action) String() string {
	switch a {
	case Ping:
		return "PING"
	case List:
		return "LIST"
	case Add:
		return "ADD"
	case Delete:
		return "DELETE"
	case Cancel:
		return "CANCEL"
	case Stop:
		return "STOP"
	case Clear:
		return "CLEAR"
	default:
		return "UNKNOWN"
	}
}

// ServiceRecipient is the mtype of the scheduler's own mailbox.
const ServiceRecipient = 1

// MaxSendAttempts and SendRetryInterval bound SendTo's retry loop, per
// spec.md section 7 "retry send up to 100 times with 10 ms back-off".
const (
	MaxSendAttempts   = 100
	SendRetryInterval = 10 * time.Millisecond
)

// MaxQueueBacklog is the threshold beyond which a restarting service
// discards stale queued messages instead of processing them.
const MaxQueueBacklog = 200

// header is the fixed-size wire prefix of every Message.
type header struct {
	Recipient   int32
	Sender      int32
	Action      Action
	SubAction   int32
	SeriesID    int32
	SeriesCount int32
	RecordLen   uint32
}

// Message is one mailbox datagram: routing fields plus an optional
// task Record payload.
type Message struct {
	Recipient   int32
	Sender      int32
	Action      Action
	SubAction   int32
	SeriesID    int32
	SeriesCount int32
	Record      *Record
}

// SocketPath returns the default socket path for a given numeric
// queue key, e.g. SocketPath(42) -> "/tmp/ratsche.42.sock".
func SocketPath(key int) string {
	return fmt.Sprintf("/tmp/ratsche.%d.sock", key)
}

// ClientSocketPath returns a per-process reply-address path derived
// from the queue key and the caller's own pid.
func ClientSocketPath(key int) string {
	return ClientSocketPathFor(key, int32(os.Getpid()))
}

// ClientSocketPathFor returns the reply-address path for the process
// identified by pid under queue key, letting the service address a
// specific sender without knowing its own pid.
func ClientSocketPathFor(key int, pid int32) string {
	return fmt.Sprintf("/tmp/ratsche.%d.%d.sock", key, pid)
}

// Mailbox is one endpoint bound to a Unix datagram socket.
type Mailbox struct {
	conn  *net.UnixConn
	laddr *net.UnixAddr
}

// Listen binds a Mailbox at path, removing any stale socket file
// left behind by a prior run first.
func Listen(path string) (*Mailbox, error) {
	os.Remove(path)
	laddr := &net.UnixAddr{Name: path, Net: "unixgram"}
	conn, err := net.ListenUnixgram("unixgram", laddr)
	if err != nil {
		return nil, fmt.Errorf("mailbox: listen %s: %w", path, err)
	}
	return &Mailbox{conn: conn, laddr: laddr}, nil
}

// Close releases the Mailbox's socket and removes its path.
func (mb *Mailbox) Close() error {
	err := mb.conn.Close()
	if mb.laddr != nil {
		os.Remove(mb.laddr.Name)
	}
	return err
}

// SendTo encodes m and writes it to the Unix datagram socket at path,
// retrying on transient send failure per MaxSendAttempts/
// SendRetryInterval.
func (mb *Mailbox) SendTo(path string, m Message) error {
	buf, err := encode(m)
	if err != nil {
		return err
	}
	raddr := &net.UnixAddr{Name: path, Net: "unixgram"}
	attempts := 0
	op := func() error {
		attempts++
		_, err := mb.conn.WriteToUnix(buf, raddr)
		return err
	}
	b := backoff.WithMaxRetries(backoff.NewConstantBackOff(SendRetryInterval), MaxSendAttempts)
	if err := backoff.Retry(op, b); err != nil {
		return fmt.Errorf("mailbox: send to %s failed after %d attempts: %w", path, attempts, err)
	}
	return nil
}

// Recv reads and decodes at most one pending Message, returning
// (Message{}, false, nil) when nothing is queued. This is the server's
// "poll once per loop with non-blocking read" primitive (spec.md
// section 9). A deadline already in the past fails before the read is
// even attempted, so the poll uses a minimal positive deadline instead.
func (mb *Mailbox) Recv() (Message, bool, error) {
	return mb.RecvTimeout(time.Millisecond)
}

// RecvTimeout reads and decodes at most one Message, waiting up to d
// for one to arrive. Clients use this to wait for a reply with a
// bounded timeout.
func (mb *Mailbox) RecvTimeout(d time.Duration) (Message, bool, error) {
	mb.conn.SetReadDeadline(time.Now().Add(d))
	buf := make([]byte, 64*1024)
	n, err := mb.conn.Read(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return Message{}, false, nil
		}
		return Message{}, false, err
	}
	m, err := decode(buf[:n])
	if err != nil {
		return Message{}, false, err
	}
	return m, true, nil
}

func encode(m Message) ([]byte, error) {
	var recBuf bytes.Buffer
	if m.Record != nil {
		if err := gob.NewEncoder(&recBuf).Encode(m.Record); err != nil {
			return nil, fmt.Errorf("mailbox: encode record: %w", err)
		}
	}
	h := header{
		Recipient:   m.Recipient,
		Sender:      m.Sender,
		Action:      m.Action,
		SubAction:   m.SubAction,
		SeriesID:    m.SeriesID,
		SeriesCount: m.SeriesCount,
		RecordLen:   uint32(recBuf.Len()),
	}
	var out bytes.Buffer
	if err := binary.Write(&out, binary.BigEndian, h); err != nil {
		return nil, fmt.Errorf("mailbox: encode header: %w", err)
	}
	out.Write(recBuf.Bytes())
	return out.Bytes(), nil
}

func decode(buf []byte) (Message, error) {
	r := bytes.NewReader(buf)
	var h header
	if err := binary.Read(r, binary.BigEndian, &h); err != nil {
		return Message{}, fmt.Errorf("mailbox: decode header: %w", err)
	}
	m := Message{
		Recipient:   h.Recipient,
		Sender:      h.Sender,
		Action:      h.Action,
		SubAction:   h.SubAction,
		SeriesID:    h.SeriesID,
		SeriesCount: h.SeriesCount,
	}
	if h.RecordLen > 0 {
		rec := new(Record)
		if err := gob.NewDecoder(r).Decode(rec); err != nil {
			return Message{}, fmt.Errorf("mailbox: decode record: %w", err)
		}
		m.Record = rec
	}
	return m, nil
}
