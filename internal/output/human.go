package output

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/yairfalse/tapio-enrich/pkg/domain"
)

// HumanFormatter prints one colored line per event
type HumanFormatter struct {
	Writer io.Writer

	mu sync.Mutex
}

// NewHumanFormatter creates a new human readable formatter
func NewHumanFormatter(w io.Writer) *HumanFormatter {
	return &HumanFormatter{Writer: w}
}

// Print formats and prints one event
func (f *HumanFormatter) Print(ev *domain.EnrichedEvent) error {
	var b strings.Builder

	fmt.Fprintf(&b, "%s %s %s pid=%d mnt_ns=%d",
		ev.Timestamp.Format(time.RFC3339Nano),
		Colors.Heading(fmt.Sprintf("%-13s", ev.Type)),
		Colors.Info(hostOrUnknown(ev.Hostname)),
		ev.Tgid,
		ev.MntNs)

	if ev.Path != "" {
		fmt.Fprintf(&b, " %s", ev.Path)
	}
	if ev.Target != 0 {
		fmt.Fprintf(&b, " target=%d arg=%d", ev.Target, ev.Arg)
	}

	switch {
	case ev.EnrichError != "":
		fmt.Fprintf(&b, " %s %s", Colors.Error(Icons.Error), ev.EnrichError)
	case ev.Hashes != nil && !ev.Hashes.Valid():
		fmt.Fprintf(&b, " %s %s", Colors.Warning(Icons.Warning), ev.Hashes.Error)
	case ev.Hashes != nil:
		fmt.Fprintf(&b, " %s sha256=%s size=%d", Colors.Success(Icons.Success), ev.Hashes.SHA256, ev.Hashes.Size)
	}
	b.WriteByte('\n')

	f.mu.Lock()
	defer f.mu.Unlock()
	_, err := io.WriteString(f.Writer, b.String())
	return err
}

func hostOrUnknown(hostname string) string {
	if hostname == "" {
		return "-"
	}
	return hostname
}
