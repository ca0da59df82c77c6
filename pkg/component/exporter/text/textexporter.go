package textexporter

import (
	"bufio"
	"fmt"
	"io"

	"github.com/kutrace/rawtoevent/pkg/core/model"
	"github.com/kutrace/rawtoevent/pkg/log"
)

// MaxNsec10 bounds sane output times; anything at or past it is a
// reconstruction bug and the record is dropped.
const MaxNsec10 = 99900000000

// TextExporter writes the canonical one-line event format:
//
//	time dur event cpu  pid rpc  arg retval ipc name (event_hex)
//
// and name lines:
//
//	time dur event argall name
type TextExporter struct {
	w       *bufio.Writer
	verbose bool
}

func NewTextExporter(w io.Writer, verbose bool) *TextExporter {
	return &TextExporter{w: bufio.NewWriter(w), verbose: verbose}
}

func (t *TextExporter) Consume(ev *model.DecodedEvent) error {
	// Avoid crazy big times
	fail := ev.Nsec10 >= MaxNsec10 ||
		ev.Duration >= MaxNsec10 ||
		ev.Nsec10+ev.Duration >= MaxNsec10
	if fail {
		if t.verbose {
			log.Loger.Warn("BUG %d %d", ev.Nsec10, ev.Duration)
		}
		return nil
	}

	_, err := fmt.Fprintf(t.w, "%d %d %d %d  %d %d  %d %d %d %s (%x)\n",
		ev.Nsec10, ev.Duration, ev.Event, ev.Cpu,
		ev.Pid, ev.Rpc,
		ev.Arg, ev.Retval, ev.Ipc, ev.Name, ev.Event)
	return err
}

func (t *TextExporter) ConsumeName(nd *model.NameDef) error {
	if nd.Nsec10 >= MaxNsec10 {
		if t.verbose {
			log.Loger.Warn("BUG ts=%d", nd.Nsec10)
		}
		return nil
	}

	// One initial word plus 8 chars per word
	length := uint64((len(nd.Name)+7)>>3) + 1
	event := (nd.Event & 0xF0F) | (length << 4)

	if _, err := fmt.Fprintf(t.w, "%d 1 %d %d %s\n", nd.Nsec10, event, nd.ArgAll, nd.Name); err != nil {
		return err
	}
	// Also put the name at the very front of the sorted event list
	_, err := fmt.Fprintf(t.w, "%d 1 %d %d %s\n", int64(-1), event, nd.ArgAll, nd.Name)
	return err
}

func (t *TextExporter) Comment(line string) error {
	_, err := fmt.Fprintln(t.w, line)
	return err
}

func (t *TextExporter) Pragma(line string) error {
	_, err := fmt.Fprintln(t.w, line)
	return err
}

func (t *TextExporter) Shutdown() error {
	return t.w.Flush()
}
