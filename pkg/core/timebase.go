package core

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/kutrace/rawtoevent/pkg/core/model"
	"github.com/kutrace/rawtoevent/pkg/log"
)

// CyclesToUsecParams maps raw cycle counts to wall-adjacent time:
// F(cycles) gives usec = base_usec + (cycles - base_cycles) * m.
// The nsec10 mapping is rebased so the trace's base minute maps to zero.
type CyclesToUsecParams struct {
	BaseCycles   int64
	BaseUsec     int64
	BaseCycles10 int64
	BaseNsec10   int64
	Slope        float64 // usec per cycle
	SlopeNsec10  float64 // 10ns units per cycle
}

func (p *CyclesToUsecParams) SetParams(startCycles, startUsec, stopCycles, stopUsec int64, verbose bool) {
	p.BaseCycles = startCycles
	p.BaseUsec = startUsec
	if stopCycles <= startCycles {
		stopCycles = startCycles + 1 // avoid zdiv
	}
	p.Slope = float64(stopUsec-startUsec) / float64(stopCycles-startCycles)
	p.SlopeNsec10 = p.Slope * 100.0
	if verbose {
		log.Loger.Info("SetParams maps %18dcy ==> %18dus", startCycles, startUsec)
		log.Loger.Info("SetParams maps %18dcy ==> %18dus", stopCycles, stopUsec)
		log.Loger.Info("SetParams slope %f us/cy", p.Slope)
	}
}

func (p *CyclesToUsecParams) SetParams10(startCycles10, startNsec10 int64, verbose bool) {
	p.BaseCycles10 = startCycles10
	p.BaseNsec10 = startNsec10
	if verbose {
		log.Loger.Info("SetParams10 maps %16dcy ==> %dns10", startCycles10, startNsec10)
	}
}

func (p *CyclesToUsecParams) CyclesToUsec(cycles int64) int64 {
	deltaUsec := int64(float64(cycles-p.BaseCycles) * p.Slope)
	return p.BaseUsec + deltaUsec
}

func (p *CyclesToUsecParams) CyclesToNsec10(cycles uint64) uint64 {
	deltaNsec10 := int64(float64(int64(cycles)-p.BaseCycles10) * p.SlopeNsec10)
	return uint64(p.BaseNsec10 + deltaNsec10)
}

func (p *CyclesToUsecParams) UsecToCycles(usec int64) int64 {
	deltaCycles := float64(usec-p.BaseUsec) / p.Slope
	return p.BaseCycles + int64(deltaCycles)
}

// Calibration holds the result of processing the very first block.
type Calibration struct {
	Params   CyclesToUsecParams
	BaseUsec uint64 // trace start gettimeofday
	LowResTs bool   // counter slower than 10 counts/usec
}

func blockPrefixBytes(block []uint64, words int) []byte {
	b := make([]byte, words*8)
	for i := 0; i < words; i++ {
		binary.LittleEndian.PutUint64(b[i*8:], block[i])
	}
	return b
}

// Calibrate picks the time conversion parameters out of the first block's
// start/stop timepairs, repairing known-bad counter values first.
//
// The sifive u74 chip sometimes sets a bogus bit<32> in the stop cycles.
// Arm-32 has a 32-bit 54 MHz counter that wraps about every 79 seconds,
// leaving the stored stop count small by some multiple of 4G.
func Calibrate(block []uint64, verbose bool) (*Calibration, error) {
	startCounts := int64(block[2])
	startUsec := int64(block[3])
	stopCounts := int64(block[4])
	stopUsec := int64(block[5])

	cal := &Calibration{BaseUsec: uint64(startUsec)}

	deltaCounts := stopCounts - startCounts
	deltaUsec := stopUsec - startUsec
	if deltaUsec <= 0 {
		deltaUsec = 1 // avoid zdiv
	}
	countsPerUsec := float64(deltaCounts) / float64(deltaUsec)

	prefix := blockPrefixBytes(block, 32)
	lowBitsMax := int64(^uint32(0))
	highBitsMask := lowBitsMax << 32
	has32BitCounts := ((startCounts | stopCounts) & highBitsMask) == 0
	likelyRiscv := bytes.Contains(prefix, []byte("u74-mc"))

	if likelyRiscv {
		if countsPerUsec > 100.1 && (startCounts>>32) == 0 && (stopCounts>>32) == 1 {
			stopCounts &= 0x00000000FFFFFFFF
			deltaCounts = stopCounts - startCounts
			countsPerUsec = float64(deltaCounts) / float64(deltaUsec)
			log.Loger.Info("RISC-V fixup done.")
		}
	}

	if has32BitCounts && !likelyRiscv {
		elapsedUsec := uint64(deltaUsec)
		expectedCounts := elapsedUsec * model.Mhz32BitCounts
		// Pick off the high bits
		approxHi := expectedCounts & ^uint64(0xffffffff)
		// A 32-bit 54 MHz counter cannot wrap in under ~79 seconds; with no
		// expected high bits the stored stop count needs no repair.
		if approxHi != 0 {
			// Put the high bits in
			stopCounts |= int64(approxHi)
			// Cross-check and change by one wrap if right at a boundary and
			// off by more than 12.5% from the expected MHz
			elapsedCounts := uint64(stopCounts - startCounts)
			ratio := elapsedCounts / elapsedUsec
			if ratio > (model.Mhz32BitCounts + (model.Mhz32BitCounts >> 3)) {
				stopCounts -= 0x0000000100000000
			}
			if ratio < (model.Mhz32BitCounts - (model.Mhz32BitCounts >> 3)) {
				stopCounts += 0x0000000100000000
			}
			deltaCounts = stopCounts - startCounts
			countsPerUsec = float64(deltaCounts) / float64(deltaUsec)
			log.Loger.Info("RPi fixup done.")
		}
	}

	if countsPerUsec < 10.0 {
		cal.LowResTs = true
		log.Loger.Warn("... Low-resolution timestamps ...")
	}

	if verbose {
		log.Loger.Info("block[0] %016x = %dcy %dus (%d mod 1min)",
			block[2], startCounts, startUsec, startUsec%60000000)
		log.Loger.Info("block[0] %016x = %dcy %dus (%d mod 1min)",
			block[4], stopCounts, stopUsec, stopUsec%60000000)
	}

	if countsPerUsec < 0.99 {
		return nil, fmt.Errorf("cycles per us %3.1f < 0.99 MHz", countsPerUsec)
	}
	if countsPerUsec > 100.1 {
		return nil, fmt.Errorf("cycles per us %3.1f > 100.1 MHz", countsPerUsec)
	}
	if startCounts > stopCounts {
		return nil, fmt.Errorf("block[0] start_cy > stop_cy %d %d", startCounts, stopCounts)
	}
	if startUsec > stopUsec {
		return nil, fmt.Errorf("block[0] start_usec > stop_usec %d %d", startUsec, stopUsec)
	}
	if UsecPer100Years <= startCounts {
		return nil, fmt.Errorf("block[0] start_counts crazy large %016x", startCounts)
	}
	if UsecPer100Years <= stopCounts {
		return nil, fmt.Errorf("block[0] stop_counts crazy large %016x", stopCounts)
	}

	// Map start_counts <==> start_usec
	cal.Params.SetParams(startCounts, startUsec, stopCounts, stopUsec, verbose)

	// Round usec down to a whole minute, backmap it to cycles, then map
	// that cycle to nsec10 zero.
	baseMinuteUsec := (startUsec / 60000000) * 60000000
	baseMinuteCycle := cal.Params.UsecToCycles(baseMinuteUsec)
	cal.Params.SetParams10(baseMinuteCycle, 0, verbose)

	return cal, nil
}

const UsecPer100Years = int64(model.UsecPer100Years)
