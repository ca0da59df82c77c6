package core

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/kutrace/rawtoevent/pkg/core/model"
)

func serializeWords(words []uint64) []byte {
	b := make([]byte, len(words)*8)
	for i, w := range words {
		binary.LittleEndian.PutUint64(b[i*8:], w)
	}
	return b
}

func TestBlockReaderPlain(t *testing.T) {
	words := make([]uint64, model.TraceBufSize)
	words[0] = uint64(3) << 56          // cpu 3
	words[1] = uint64(0x03)<<56 | 12345 // flags v3, gtod
	words[100] = 0xdead

	var in bytes.Buffer
	in.Write(serializeWords(words))

	br := NewBlockReader(&in)
	var block TraceBlock
	if err := br.Next(&block); err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if block.Cpu() != 3 {
		t.Errorf("cpu got %d want 3", block.Cpu())
	}
	if block.Flags() != 0x03 {
		t.Errorf("flags got %#x want 0x03", block.Flags())
	}
	if block.Gtod() != 12345 {
		t.Errorf("gtod got %d", block.Gtod())
	}
	if block.HasIpc {
		t.Errorf("IPC sidecar claimed without the flag")
	}
	if block.Words[100] != 0xdead {
		t.Errorf("word 100 got %#x", block.Words[100])
	}
	if err := br.Next(&block); err != io.EOF {
		t.Errorf("second Next got %v want EOF", err)
	}
}

func TestBlockReaderIpcSidecar(t *testing.T) {
	words := make([]uint64, model.TraceBufSize)
	words[1] = uint64(0x83) << 56 // IPC flag + v3

	ipc := make([]byte, model.TraceBufSize)
	ipc[7] = 0x42

	var in bytes.Buffer
	in.Write(serializeWords(words))
	in.Write(ipc)

	br := NewBlockReader(&in)
	var block TraceBlock
	if err := br.Next(&block); err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if !block.HasIpc {
		t.Fatalf("IPC sidecar not detected")
	}
	if block.Ipc[7] != 0x42 {
		t.Errorf("ipc[7] got %#x want 0x42", block.Ipc[7])
	}
}

func TestBlockReaderIpcZeroFilled(t *testing.T) {
	// A block with IPC leaves residue; the next one without must be zeroed.
	wordsIpc := make([]uint64, model.TraceBufSize)
	wordsIpc[1] = uint64(0x83) << 56
	ipc := make([]byte, model.TraceBufSize)
	for i := range ipc {
		ipc[i] = 0xFF
	}
	wordsPlain := make([]uint64, model.TraceBufSize)
	wordsPlain[1] = uint64(0x03) << 56

	var in bytes.Buffer
	in.Write(serializeWords(wordsIpc))
	in.Write(ipc)
	in.Write(serializeWords(wordsPlain))

	br := NewBlockReader(&in)
	var block TraceBlock
	if err := br.Next(&block); err != nil {
		t.Fatalf("first Next failed: %v", err)
	}
	if err := br.Next(&block); err != nil {
		t.Fatalf("second Next failed: %v", err)
	}
	for i, v := range block.Ipc {
		if v != 0 {
			t.Fatalf("ipc[%d] not zero filled: %#x", i, v)
		}
	}
}

func TestBlockReaderTruncated(t *testing.T) {
	var in bytes.Buffer
	in.Write(make([]byte, 100)) // much less than a block

	br := NewBlockReader(&in)
	var block TraceBlock
	if err := br.Next(&block); err != io.EOF {
		t.Errorf("truncated block got %v want EOF", err)
	}
}
