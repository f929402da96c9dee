package api

import (
	"bufio"
	"crypto/sha1"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/omnihq/omnilocation-go/internal/sim"
)

type wsMessage struct {
	Type   string       `json:"type"`
	SentAt string       `json:"sent_at,omitempty"`
	Status sim.Snapshot `json:"status"`
}

// StatusStreamer keeps the latest session snapshot and pushes every change
// to connected WebSocket clients. New clients get the current snapshot
// immediately on connect.
type StatusStreamer struct {
	mu      sync.RWMutex
	last    sim.Snapshot
	hasLast bool
	clients map[*wsClient]struct{}
}

func NewStatusStreamer() *StatusStreamer {
	return &StatusStreamer{
		clients: map[*wsClient]struct{}{},
	}
}

// Publish broadcasts the snapshot. Wired as the session's OnSnapshot
// callback.
func (s *StatusStreamer) Publish(snap sim.Snapshot) {
	s.mu.Lock()
	s.last = snap
	s.hasLast = true
	s.broadcastLocked(wsMessage{
		Type:   "status",
		SentAt: time.Now().UTC().Format(time.RFC3339),
		Status: snap,
	})
	s.mu.Unlock()
}

// Last returns the most recently published snapshot.
func (s *StatusStreamer) Last() (sim.Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last, s.hasLast
}

// ServeWS upgrades the connection and registers the client for pushes.
func (s *StatusStreamer) ServeWS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	conn, rw, err := websocketUpgrade(w, r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	client := newWSClient(conn, rw)
	s.addClient(client)

	if err := client.writeJSON(s.helloMessage()); err != nil {
		s.removeClient(client)
		return
	}

	go client.writePump(func() {
		s.removeClient(client)
	})
}

func (s *StatusStreamer) helloMessage() wsMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return wsMessage{
		Type:   "snapshot",
		SentAt: time.Now().UTC().Format(time.RFC3339),
		Status: s.last,
	}
}

func (s *StatusStreamer) addClient(c *wsClient) {
	s.mu.Lock()
	s.clients[c] = struct{}{}
	total := len(s.clients)
	s.mu.Unlock()
	logDebugf("[ws] client connected (%d total)", total)
}

func (s *StatusStreamer) removeClient(c *wsClient) {
	s.mu.Lock()
	delete(s.clients, c)
	total := len(s.clients)
	s.mu.Unlock()
	c.close()
	logDebugf("[ws] client disconnected (%d total)", total)
}

func (s *StatusStreamer) broadcastLocked(msg wsMessage) {
	if len(s.clients) == 0 {
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	for c := range s.clients {
		select {
		case c.send <- data:
		default:
			// Client is not keeping up; drop it.
			go s.removeClient(c)
		}
	}
}

// --- WebSocket utils (minimal server-push-only implementation) ---

const wsGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

func websocketUpgrade(w http.ResponseWriter, r *http.Request) (net.Conn, *bufio.ReadWriter, error) {
	if !headerContains(r.Header, "Connection", "Upgrade") || !headerContains(r.Header, "Upgrade", "websocket") {
		return nil, nil, errors.New("upgrade request expected")
	}
	key := strings.TrimSpace(r.Header.Get("Sec-WebSocket-Key"))
	if key == "" {
		return nil, nil, errors.New("missing Sec-WebSocket-Key")
	}
	accept := computeAcceptKey(key)

	hijacker, ok := w.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("http hijacking not supported")
	}
	conn, rw, err := hijacker.Hijack()
	if err != nil {
		return nil, nil, err
	}
	if rw == nil {
		rw = bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn))
	}

	response := fmt.Sprintf("HTTP/1.1 101 Switching Protocols\r\nUpgrade: websocket\r\nConnection: Upgrade\r\nSec-WebSocket-Accept: %s\r\n\r\n", accept)
	if _, err := rw.WriteString(response); err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	if err := rw.Flush(); err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	return conn, rw, nil
}

func computeAcceptKey(key string) string {
	h := sha1.Sum([]byte(key + wsGUID))
	return base64.StdEncoding.EncodeToString(h[:])
}

func headerContains(h http.Header, name, value string) bool {
	for _, v := range h.Values(name) {
		for _, part := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(part), value) {
				return true
			}
		}
	}
	return false
}

type wsClient struct {
	conn net.Conn
	rw   *bufio.ReadWriter
	send chan []byte
	once sync.Once
}

func newWSClient(conn net.Conn, rw *bufio.ReadWriter) *wsClient {
	return &wsClient{
		conn: conn,
		rw:   rw,
		send: make(chan []byte, 32),
	}
}

func (c *wsClient) writeJSON(msg wsMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return writeTextFrame(c.rw, data)
}

func (c *wsClient) writePump(onClose func()) {
	defer onClose()
	for msg := range c.send {
		if err := writeTextFrame(c.rw, msg); err != nil {
			return
		}
	}
}

func (c *wsClient) close() {
	c.once.Do(func() {
		_ = c.conn.Close()
		close(c.send)
	})
}

func writeTextFrame(w *bufio.ReadWriter, payload []byte) error {
	var header [10]byte
	header[0] = 0x81 // FIN + text frame
	var headerLen int
	switch {
	case len(payload) < 126:
		header[1] = byte(len(payload))
		headerLen = 2
	case len(payload) <= 0xFFFF:
		header[1] = 126
		binary.BigEndian.PutUint16(header[2:], uint16(len(payload)))
		headerLen = 4
	default:
		header[1] = 127
		binary.BigEndian.PutUint64(header[2:], uint64(len(payload)))
		headerLen = 10
	}
	if _, err := w.Write(header[:headerLen]); err != nil {
		return err
	}
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return err
		}
	}
	return w.Flush()
}
