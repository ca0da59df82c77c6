package core

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/kutrace/rawtoevent/pkg/core/model"
)

// TraceBlock is one fixed 64 KiB block of trace words plus its optional
// 8 KiB IPC sidecar, one byte per entry word.
type TraceBlock struct {
	Words  [model.TraceBufSize]uint64
	Ipc    [model.TraceBufSize]uint8
	HasIpc bool
}

func (b *TraceBlock) Cpu() uint64 { return b.Words[0] >> 56 }

func (b *TraceBlock) BaseCycle() uint64 { return b.Words[0] & 0x00ffffffffffffff }

func (b *TraceBlock) Flags() uint8 { return uint8(b.Words[1] >> 56) }

func (b *TraceBlock) Gtod() uint64 { return b.Words[1] & 0x00ffffffffffffff }

// BlockReader consumes fixed-size trace blocks from a byte stream.
type BlockReader struct {
	r   *bufio.Reader
	buf [model.TraceBufSize * 8]byte
}

func NewBlockReader(r io.Reader) *BlockReader {
	return &BlockReader{r: bufio.NewReaderSize(r, model.TraceBufSize*8)}
}

// Next reads one block and, when the block's flags say so, its IPC sidecar.
// Returns io.EOF at a clean end of input; a truncated final block also ends
// the stream.
func (br *BlockReader) Next(block *TraceBlock) error {
	if _, err := io.ReadFull(br.r, br.buf[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return io.EOF
		}
		return err
	}
	for i := 0; i < model.TraceBufSize; i++ {
		block.Words[i] = binary.LittleEndian.Uint64(br.buf[i*8:])
	}

	block.HasIpc = model.HasIPC(block.Flags())
	if block.HasIpc {
		// Two 4-bit IPC values per byte: before-call, within-call
		if _, err := io.ReadFull(br.r, block.Ipc[:]); err != nil {
			return io.EOF
		}
	} else {
		for i := range block.Ipc {
			block.Ipc[i] = 0
		}
	}
	return nil
}
