package textexporter

import (
	"bytes"
	"strings"
	"testing"

	"github.com/kutrace/rawtoevent/pkg/core/model"
	"github.com/kutrace/rawtoevent/pkg/log"
)

func init() {
	log.LogInit()
}

func TestEventLine(t *testing.T) {
	var buf bytes.Buffer
	te := NewTextExporter(&buf, false)

	te.Consume(&model.DecodedEvent{
		Nsec10: 100, Duration: 1, Event: 0x200, Cpu: 0,
		Pid: 7, Rpc: 0, Arg: 7, Retval: 0, Ipc: 0, Name: "worker.7",
	})
	te.Shutdown()

	want := "100 1 512 0  7 0  7 0 0 worker.7 (200)\n"
	if buf.String() != want {
		t.Errorf("event line got %q want %q", buf.String(), want)
	}
}

func TestNameLines(t *testing.T) {
	var buf bytes.Buffer
	te := NewTextExporter(&buf, false)

	te.ConsumeName(&model.NameDef{Nsec10: 0, Event: 2, ArgAll: 7, Name: "worker"})
	te.Shutdown()

	// Length nibble rewritten: one initial word plus one word of payload
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("name lines got %d want 2: %q", len(lines), buf.String())
	}
	if lines[0] != "0 1 34 7 worker" {
		t.Errorf("name line got %q", lines[0])
	}
	// Duplicated at sentinel -1 so sorted readers see names first
	if lines[1] != "-1 1 34 7 worker" {
		t.Errorf("sentinel name line got %q", lines[1])
	}
}

func TestCrazyTimesDropped(t *testing.T) {
	var buf bytes.Buffer
	te := NewTextExporter(&buf, false)

	te.Consume(&model.DecodedEvent{Nsec10: MaxNsec10, Duration: 1, Name: "x"})
	te.Consume(&model.DecodedEvent{Nsec10: MaxNsec10 - 1, Duration: 2, Name: "x"})
	te.Consume(&model.DecodedEvent{Nsec10: 1, Duration: MaxNsec10, Name: "x"})
	te.ConsumeName(&model.NameDef{Nsec10: MaxNsec10, Name: "x"})
	te.Shutdown()

	if buf.Len() != 0 {
		t.Errorf("crazy-time records not dropped: %q", buf.String())
	}
}

func TestCommentsAndPragmas(t *testing.T) {
	var buf bytes.Buffer
	te := NewTextExporter(&buf, false)

	te.Pragma("# ## VERSION: 3")
	te.Comment("# [0] 0000000000000000 cpu 00 block 0")
	te.Shutdown()

	want := "# ## VERSION: 3\n# [0] 0000000000000000 cpu 00 block 0\n"
	if buf.String() != want {
		t.Errorf("got %q want %q", buf.String(), want)
	}
}
