package device

import (
	"context"
	"fmt"
	"io"
)

// LogSink writes pushed coordinates to a writer. Used for mock devices and
// dry runs.
type LogSink struct {
	UDID   string
	Writer io.Writer
}

func (s *LogSink) Push(_ context.Context, lat, lon float64) error {
	if s.Writer == nil {
		return fmt.Errorf("log sink: writer is not set")
	}
	_, err := fmt.Fprintf(s.Writer, "LOC %s %.6f,%.6f\n", s.UDID, lat, lon)
	return err
}
