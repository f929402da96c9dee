package main

import (
	"bufio"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/url"
	"sort"
	"strings"
)

// wsMessage reflects the server payload for snapshot/status messages.
type wsMessage struct {
	Type   string   `json:"type"`
	SentAt string   `json:"sent_at"`
	Status wsStatus `json:"status"`
}

type wsStatus struct {
	SessionID    string                    `json:"session_id"`
	State        string                    `json:"state"`
	Running      bool                      `json:"running"`
	CurrentIndex int                       `json:"current_index"`
	TotalPoints  int                       `json:"total_points"`
	Loop         bool                      `json:"loop"`
	CurrentLat   *float64                  `json:"current_lat"`
	CurrentLon   *float64                  `json:"current_lon"`
	Devices      map[string]wsDeviceStatus `json:"devices"`
	Degraded     bool                      `json:"degraded"`
	Error        string                    `json:"error,omitempty"`
}

type wsDeviceStatus struct {
	Pushes    int64  `json:"pushes"`
	Failures  int64  `json:"failures"`
	LastError string `json:"last_error,omitempty"`
}

func main() {
	var (
		raw    bool
		limit  int
		urlStr string
	)
	flag.StringVar(&urlStr, "url", "ws://127.0.0.1:8080/api/v1/ws/status", "WebSocket URL of omnilocation server")
	flag.BoolVar(&raw, "raw", false, "print raw JSON messages")
	flag.IntVar(&limit, "limit", 0, "stop after N status messages (0 = infinite)")
	flag.Parse()

	u, err := url.Parse(urlStr)
	if err != nil {
		log.Fatalf("invalid url: %v", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		log.Fatalf("url must start with ws:// or wss://")
	}
	addr := u.Host
	if !strings.Contains(addr, ":") {
		if u.Scheme == "wss" {
			addr += ":443"
		} else {
			addr += ":80"
		}
	}

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		log.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := sendHandshake(conn, u); err != nil {
		log.Fatalf("handshake: %v", err)
	}
	log.Printf("connected to %s", urlStr)

	reader := bufio.NewReader(conn)
	statusSeen := 0
	for {
		op, payload, err := readFrame(reader)
		if err != nil {
			if err == io.EOF {
				log.Println("connection closed by peer")
				return
			}
			log.Fatalf("read frame: %v", err)
		}
		if op == 0x8 { // close frame
			log.Println("received close frame")
			return
		}
		if op != 0x1 {
			continue
		}

		if raw {
			fmt.Println(string(payload))
			continue
		}

		var msg wsMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			log.Printf("invalid json: %v", err)
			continue
		}

		switch strings.ToLower(msg.Type) {
		case "snapshot":
			log.Printf("snapshot: %s", formatStatus(msg.Status))
		case "status":
			statusSeen++
			log.Printf("status: %s", formatStatus(msg.Status))
			if limit > 0 && statusSeen >= limit {
				log.Printf("limit reached (%d status messages), exiting", limit)
				return
			}
		default:
			log.Printf("message type=%s (ignored)", msg.Type)
		}
	}
}

func formatStatus(st wsStatus) string {
	pos := "no fix"
	if st.CurrentLat != nil && st.CurrentLon != nil {
		pos = fmt.Sprintf("%.6f,%.6f", *st.CurrentLat, *st.CurrentLon)
	}
	out := fmt.Sprintf("session=%s state=%s point=%d/%d pos=%s",
		st.SessionID, st.State, st.CurrentIndex, st.TotalPoints, pos)
	if st.Degraded {
		out += fmt.Sprintf(" DEGRADED err=%q", st.Error)
	}
	udids := make([]string, 0, len(st.Devices))
	for udid := range st.Devices {
		udids = append(udids, udid)
	}
	sort.Strings(udids)
	for i, udid := range udids {
		if i >= 5 {
			out += fmt.Sprintf(" ... and %d more", len(udids)-i)
			break
		}
		ds := st.Devices[udid]
		out += fmt.Sprintf(" %s=%d/%d", udid, ds.Pushes, ds.Pushes+ds.Failures)
	}
	return out
}

func sendHandshake(conn net.Conn, u *url.URL) error {
	key := make([]byte, 16)
	if _, err := rand.Read(key); err != nil {
		return err
	}
	secKey := base64.StdEncoding.EncodeToString(key)
	host := u.Host
	if host == "" {
		host = "localhost"
	}
	path := u.RequestURI()
	if path == "" {
		path = "/"
	}
	req := fmt.Sprintf("GET %s HTTP/1.1\r\nHost: %s\r\nUpgrade: websocket\r\nConnection: Upgrade\r\nSec-WebSocket-Version: 13\r\nSec-WebSocket-Key: %s\r\n\r\n", path, host, secKey)
	if _, err := io.WriteString(conn, req); err != nil {
		return err
	}

	reader := bufio.NewReader(conn)
	status, err := reader.ReadString('\n')
	if err != nil {
		return err
	}
	if !strings.HasPrefix(status, "HTTP/1.1 101") {
		return fmt.Errorf("unexpected status: %s", strings.TrimSpace(status))
	}
	var acceptOk bool
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return err
		}
		if line == "\r\n" {
			break
		}
		if strings.HasPrefix(strings.ToLower(line), "sec-websocket-accept") {
			parts := strings.SplitN(line, ":", 2)
			if len(parts) == 2 {
				accept := strings.TrimSpace(parts[1])
				expected := computeAccept(secKey)
				acceptOk = accept == expected
			}
		}
	}
	if !acceptOk {
		return fmt.Errorf("handshake failed: Sec-WebSocket-Accept mismatch")
	}
	return nil
}

func computeAccept(key string) string {
	const guid = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"
	sum := sha1.Sum([]byte(key + guid))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// readFrame reads a single unmasked text frame (server-to-client).
func readFrame(r *bufio.Reader) (opcode byte, payload []byte, err error) {
	h1, err := r.ReadByte()
	if err != nil {
		return 0, nil, err
	}
	h2, err := r.ReadByte()
	if err != nil {
		return 0, nil, err
	}
	opcode = h1 & 0x0f
	masked := h2&0x80 != 0
	if masked {
		return 0, nil, fmt.Errorf("server sent masked frame")
	}
	length := int(h2 & 0x7f)
	switch length {
	case 126:
		var buf [2]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return 0, nil, err
		}
		length = int(binary.BigEndian.Uint16(buf[:]))
	case 127:
		var buf [8]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return 0, nil, err
		}
		length = int(binary.BigEndian.Uint64(buf[:]))
	}
	if length < 0 {
		return 0, nil, fmt.Errorf("invalid length %d", length)
	}
	payload = make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, err
	}
	return opcode, payload, nil
}
