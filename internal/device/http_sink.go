package device

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// HTTPSink pushes coordinates to a device bridge over its HTTP API
// (GET /location/set?lat=..&lon=..). The bridge runs next to the device and
// owns the platform-specific transport.
type HTTPSink struct {
	BaseURL string
	UDID    string
	HTTP    *http.Client
	Logger  *log.Logger

	mu            sync.Mutex
	totalDuration time.Duration
	totalCalls    int64
}

func (s *HTTPSink) Push(ctx context.Context, lat, lon float64) error {
	if s == nil {
		return fmt.Errorf("http sink: nil receiver")
	}
	if s.BaseURL == "" {
		return fmt.Errorf("http sink: BaseURL is empty")
	}
	httpClient := s.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	endpoint, err := joinURL(s.BaseURL, "/location/set")
	if err != nil {
		return err
	}
	query := buildLocationQuery(s.UDID, lat, lon)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+query, nil)
	if err != nil {
		return fmt.Errorf("http sink: new request: %w", err)
	}

	start := time.Now()
	resp, err := httpClient.Do(req)
	if err != nil {
		if s.Logger != nil {
			s.Logger.Printf("bridge error: %v (elapsed %s)", err, time.Since(start))
		}
		return fmt.Errorf("http sink: do request: %w", err)
	}
	defer resp.Body.Close()

	elapsed := time.Since(start)
	if s.Logger != nil {
		s.mu.Lock()
		s.totalDuration += elapsed
		s.totalCalls++
		avg := time.Duration(int64(s.totalDuration) / s.totalCalls)
		s.Logger.Printf("bridge /location/set %s -> %s (%s, avg %s over %d calls)",
			req.URL.String(), resp.Status, elapsed, avg, s.totalCalls)
		s.mu.Unlock()
	}

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		if s.Logger != nil {
			s.Logger.Printf("bridge error body: %s", strings.TrimSpace(string(body)))
		}
		return fmt.Errorf("http sink: /location/set failed: status=%s body=%s", resp.Status, strings.TrimSpace(string(body)))
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

func buildLocationQuery(udid string, lat, lon float64) string {
	var b strings.Builder
	b.WriteByte('?')
	if udid != "" {
		b.WriteString("udid=")
		b.WriteString(url.QueryEscape(udid))
		b.WriteByte('&')
	}
	b.WriteString("lat=")
	b.WriteString(strconv.FormatFloat(lat, 'f', -1, 64))
	b.WriteString("&lon=")
	b.WriteString(strconv.FormatFloat(lon, 'f', -1, 64))
	return b.String()
}

func joinURL(base, path string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("http sink: parse base URL: %w", err)
	}
	joined, err := url.JoinPath(u.String(), path)
	if err != nil {
		return "", fmt.Errorf("http sink: join path: %w", err)
	}
	return joined, nil
}
