package core

import (
	"testing"

	"github.com/kutrace/rawtoevent/pkg/core/model"
)

func TestNameTableSeedsIdle(t *testing.T) {
	names := NewNameTable(false)
	name, ok := names.Get(model.PidToEvent(0))
	if !ok || name != model.IdleName {
		t.Errorf("idle seed got %q %v", name, ok)
	}
}

func TestFixupIdlePid(t *testing.T) {
	names := NewNameTable(false)

	pid, name := names.FixupIdlePid(11, "idle:3")
	if pid != 0 || name != model.IdleName {
		t.Errorf("idle fixup got pid %d name %q", pid, name)
	}
	// The original pid stays remapped for later context switches
	if got := names.RemapIdlePid(11); got != 0 {
		t.Errorf("RemapIdlePid(11) got %d want 0", got)
	}
	if got := names.RemapIdlePid(12); got != 12 {
		t.Errorf("RemapIdlePid(12) got %d want 12", got)
	}

	// Non-idle names pass through
	pid, name = names.FixupIdlePid(7, "worker")
	if pid != 7 || name != "worker" {
		t.Errorf("worker fixup got pid %d name %q", pid, name)
	}

	// pid 0 always renames to -idle-
	_, name = names.FixupIdlePid(0, "swapper/0")
	if name != model.IdleName {
		t.Errorf("pid 0 name got %q", name)
	}
}

func TestFixupIdlePidKeepIdle(t *testing.T) {
	names := NewNameTable(true)
	pid, name := names.FixupIdlePid(11, "idle:3")
	if pid != 11 || name != "idle:3" {
		t.Errorf("keep-idle fixup got pid %d name %q", pid, name)
	}
	if got := names.RemapIdlePid(11); got != 11 {
		t.Errorf("keep-idle remap got %d", got)
	}
}

func TestRemapHighPid(t *testing.T) {
	if got := RemapHighPid(100123); got != 123 {
		t.Errorf("RemapHighPid(100123) got %d", got)
	}
	if got := RemapHighPid(4242); got != 4242 {
		t.Errorf("RemapHighPid(4242) got %d", got)
	}
}
