package core

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/kutrace/rawtoevent/pkg/core/model"
	"github.com/kutrace/rawtoevent/pkg/log"
)

func init() {
	log.LogInit()
}

// calblock builds just enough of a first block for Calibrate: the two header
// words, the start/stop timepairs, and the preamble command name.
func calblock(startCycles, startUsec, stopCycles, stopUsec uint64, name string) []uint64 {
	words := make([]uint64, model.TraceBufSize)
	words[0] = 0
	words[1] = uint64(0x03) << 56
	words[2] = startCycles
	words[3] = startUsec
	words[4] = stopCycles
	words[5] = stopUsec
	var nb [16]byte
	copy(nb[:], name)
	words[10] = binary.LittleEndian.Uint64(nb[0:8])
	words[11] = binary.LittleEndian.Uint64(nb[8:16])
	return words
}

func TestCalibrateSlope(t *testing.T) {
	// 100000 cycles over 1000 usec: 100 counts/usec
	cal, err := Calibrate(calblock(0, 0, 100000, 1000, "worker"), false)
	if err != nil {
		t.Fatalf("Calibrate failed: %v", err)
	}
	if math.Abs(cal.Params.Slope-0.01) > 1e-12 {
		t.Errorf("slope got %v want 0.01", cal.Params.Slope)
	}
	if math.Abs(cal.Params.SlopeNsec10-1.0) > 1e-9 {
		t.Errorf("slope nsec10 got %v want 1.0", cal.Params.SlopeNsec10)
	}
	if cal.LowResTs {
		t.Errorf("100 MHz counter flagged low resolution")
	}
	// Base minute of usec 0 is cycle 0, mapping to nsec10 0
	if got := cal.Params.CyclesToNsec10(256); got != 256 {
		t.Errorf("CyclesToNsec10(256) got %d want 256", got)
	}
}

func TestCalibrateBaseMinute(t *testing.T) {
	// Start 90 seconds after the epoch at 10 counts/usec: base minute is 60s
	start := uint64(90 * 1000000)
	cal, err := Calibrate(calblock(0, start, 10*1000000, start+1000000, "w"), false)
	if err != nil {
		t.Fatalf("Calibrate failed: %v", err)
	}
	// Cycle 0 is 30 seconds past the base minute
	got := cal.Params.CyclesToNsec10(0)
	want := uint64(30 * 100000000)
	if got != want {
		t.Errorf("base minute offset got %d want %d", got, want)
	}
}

func TestCalibrateLowRes(t *testing.T) {
	// 5 counts/usec is valid but low resolution
	cal, err := Calibrate(calblock(0, 0, 5000000, 1000000, "w"), false)
	if err != nil {
		t.Fatalf("Calibrate failed: %v", err)
	}
	if !cal.LowResTs {
		t.Errorf("5 MHz counter not flagged low resolution")
	}
}

func TestCalibrateRejects(t *testing.T) {
	// Too slow
	if _, err := Calibrate(calblock(0, 0, 1000, 1000000, "w"), false); err == nil {
		t.Errorf("0.001 MHz slope not rejected")
	}
	// Too fast
	if _, err := Calibrate(calblock(0, 0, 1000000000, 1000, "w"), false); err == nil {
		t.Errorf("1000 MHz slope not rejected")
	}
	// Reversed usec
	if _, err := Calibrate(calblock(0, 2000, 100000, 1000, "w"), false); err == nil {
		t.Errorf("reversed start/stop usec not rejected")
	}
}

func TestCalibrateRiscvFixup(t *testing.T) {
	// The u74 sets a bogus bit<32> in stop cycles. Nominal 50 MHz counter:
	// with the bogus bit the ratio is ~150 MHz, after masking it is ~50.
	start := uint64(0x10000)
	stop := uint64(0x180000000)
	stopUsec := uint64(42948362)
	cal, err := Calibrate(calblock(start, 0, stop, stopUsec, "u74-mc"), false)
	if err != nil {
		t.Fatalf("riscv fixup Calibrate failed: %v", err)
	}
	wantSlope := float64(stopUsec) / float64(uint64(0x80000000)-start)
	if math.Abs(cal.Params.Slope-wantSlope) > 1e-12 {
		t.Errorf("riscv slope got %v want %v", cal.Params.Slope, wantSlope)
	}
}

func TestCalibrateArm32Fixup(t *testing.T) {
	// 54 MHz 32-bit counter wrapped once across a 100 second trace
	start := uint64(1000)
	trueStop := start + 54*100000000
	storedStop := trueStop & 0xffffffff
	cal, err := Calibrate(calblock(start, 0, storedStop, 100000000, "pi"), false)
	if err != nil {
		t.Fatalf("arm32 fixup Calibrate failed: %v", err)
	}
	wantSlope := 1.0 / 54.0
	if math.Abs(cal.Params.Slope-wantSlope) > 1e-9 {
		t.Errorf("arm32 slope got %v want %v", cal.Params.Slope, wantSlope)
	}
}

func TestUsecToCyclesRoundTrip(t *testing.T) {
	cal, err := Calibrate(calblock(5000, 100, 105000, 1100, "w"), false)
	if err != nil {
		t.Fatalf("Calibrate failed: %v", err)
	}
	cycles := cal.Params.UsecToCycles(600)
	back := cal.Params.CyclesToUsec(cycles)
	if back < 599 || back > 601 {
		t.Errorf("usec round trip got %d want ~600", back)
	}
}
