package core

import (
	"strings"

	"github.com/kutrace/rawtoevent/pkg/core/model"
)

// NameTable maps 21-bit synthetic keys (type nibble in bits 16+, identifier
// in bits 15:0) to sanitized names. Entries are append-only for the run.
//
// It also carries the set of PIDs that were originally idle threads.
// FreeBSD and others run multiple idle threads named idle:xxx with distinct
// PID numbers; all of them collapse to canonical PID 0.
type NameTable struct {
	names    map[uint64]string
	idlePids map[uint64]struct{}
	keepIdle bool
}

func NewNameTable(keepIdle bool) *NameTable {
	t := &NameTable{
		names:    make(map[uint64]string),
		idlePids: make(map[uint64]struct{}),
		keepIdle: keepIdle,
	}
	// Context-switch events are 0x10000 + pid; seed the idle process, pid 0.
	t.names[model.PidToEvent(0)] = model.IdleName
	return t
}

func (t *NameTable) Set(key uint64, name string) { t.names[key] = name }

func (t *NameTable) Get(key uint64) (string, bool) {
	s, ok := t.names[key]
	return s, ok
}

// FixupIdlePid remaps an idle:xxx thread to canonical pid 0 named -idle-,
// remembering the original pid for later context switches.
func (t *NameTable) FixupIdlePid(pid uint64, pidname string) (uint64, string) {
	if t.keepIdle {
		return pid, pidname
	}
	if strings.HasPrefix(pidname, "idle:") {
		t.idlePids[pid] = struct{}{}
		pid = 0
	}
	if pid == 0 {
		pidname = model.IdleName
	}
	return pid, pidname
}

// RemapIdlePid filters context-switch targets through the remembered set.
func (t *NameTable) RemapIdlePid(pid uint64) uint64 {
	if _, ok := t.idlePids[pid]; ok {
		return 0
	}
	return pid
}

// RemapHighPid handles FreeBSD thread numbers 100000..165535 in block
// headers.
func RemapHighPid(pid uint64) uint64 {
	if pid >= 100000 {
		return pid - 100000
	}
	return pid
}
