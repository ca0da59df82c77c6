package core

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/kutrace/rawtoevent/pkg/component/consumer"
	"github.com/kutrace/rawtoevent/pkg/core/model"
	"github.com/kutrace/rawtoevent/pkg/log"
	"github.com/kutrace/rawtoevent/pkg/util"
)

type SessionConfig struct {
	MaxBlock int // stop after this many blocks, 0 means no limit
	Verbose  bool
	HexEvent bool
	KeepIdle bool
}

type Stats struct {
	EventCount   uint64
	LoTimestamp  uint64
	HiTimestamp  uint64
	CtxSwitches  uint64
	TotalMarks   uint64
	EventsByType [16]uint64 // from high nibble of event number
	UniqueCpus   map[uint64]struct{}
	UniquePids   map[uint64]struct{}
	LoSeconds    float64
	HiSeconds    float64
	TotalSeconds float64
}

// DecodeSession turns raw trace blocks into the enriched event stream.
// Strictly sequential: one input, per-CPU state keyed by the block header's
// CPU number, no workers.
type DecodeSession struct {
	cfg       *SessionConfig
	consumers []consumer.Consumer

	cal   *Calibration
	names *NameTable

	currentPid          [model.MaxCPUs]uint64
	currentRpc          [model.MaxCPUs]uint64
	priorTimerIrqNsec10 [model.MaxCPUs]uint64
	atFirstCpuBlock     [model.MaxCPUs]bool

	// Learned per run from name definitions; these vary across kernels.
	timerIrqEvent uint64
	schedEvent    uint64

	lowResTs bool

	allFlags   uint8
	firstFlags uint8

	stats Stats
}

func NewDecodeSession(cfg *SessionConfig, consumers ...consumer.Consumer) *DecodeSession {
	s := &DecodeSession{
		cfg:           cfg,
		consumers:     consumers,
		names:         NewNameTable(cfg.KeepIdle),
		timerIrqEvent: model.Irq | 0xec,       // local_timer
		schedEvent:    model.Syscall64 | 0x1ff, // -sched-
	}
	s.stats.LoTimestamp = 0x7FFFFFFFFFFFFFFF
	s.stats.UniqueCpus = make(map[uint64]struct{})
	s.stats.UniquePids = make(map[uint64]struct{})
	for i := range s.atFirstCpuBlock {
		s.atFirstCpuBlock[i] = true
	}
	return s
}

func (s *DecodeSession) Stats() *Stats { return &s.stats }

// We wrapped if prior > now, except that a modest backward step is allowed
// because an interrupt entry can get recorded in the midst of recording a
// syscall entry, leaving the stored entry's timestamp later than the
// subsequently-written one. 4K counts is about 80 usec at 20 ns/count.
func Wrapped(prior, now uint64) bool {
	if prior <= now {
		return false
	}
	return prior > now+4096
}

func LateStore(prior, now uint64) bool {
	if prior <= now {
		return false
	}
	return prior <= now+model.LateStoreThresh
}

func (s *DecodeSession) emitEvent(ev *model.DecodedEvent) {
	for _, c := range s.consumers {
		if err := c.Consume(ev); err != nil {
			log.Loger.Error("consume event failed:%v", err)
		}
	}
}

func (s *DecodeSession) emitName(nd *model.NameDef) {
	for _, c := range s.consumers {
		if err := c.ConsumeName(nd); err != nil {
			log.Loger.Error("consume name failed:%v", err)
		}
	}
}

func (s *DecodeSession) comment(format string, a ...any) {
	line := fmt.Sprintf(format, a...)
	for _, c := range s.consumers {
		if err := c.Comment(line); err != nil {
			log.Loger.Error("consume comment failed:%v", err)
		}
	}
}

func (s *DecodeSession) pragma(format string, a ...any) {
	line := fmt.Sprintf(format, a...)
	for _, c := range s.consumers {
		if err := c.Pragma(line); err != nil {
			log.Loger.Error("consume pragma failed:%v", err)
		}
	}
}

// Turn usec since the epoch into date_hh:mm:ss.usec.
func formatUsecDateTime(us uint64) string {
	if us == 0 {
		return "unknown"
	}
	sec := int64(us / 1000000)
	usec := us % 1000000
	t := time.Unix(sec, 0)
	return fmt.Sprintf("%04d-%02d-%02d_%02d:%02d:%02d.%06d",
		t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second(), usec)
}

// Run drives the whole-file sequential pass: blocks to completion, then the
// trailing FLAGS and TIMES pragmas. Only a bad first block is fatal.
func (s *DecodeSession) Run(r io.Reader) error {
	// Needs to sort in front of all the timestamps
	s.pragma("# ## VERSION: %d", model.RawVersionNumber)

	br := NewBlockReader(r)
	block := &TraceBlock{}
	blocknumber := 0
	for {
		err := br.Next(block)
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if s.cfg.MaxBlock > 0 && blocknumber >= s.cfg.MaxBlock {
			break
		}
		if err := s.decodeBlock(block, blocknumber); err != nil {
			return err
		}
		blocknumber++
	}

	s.finish()
	return nil
}

func (s *DecodeSession) decodeBlock(block *TraceBlock, blocknumber int) error {
	currentCpu := block.Cpu()
	baseCycle := block.BaseCycle()
	flags := block.Flags()
	gtod := block.Gtod()

	// Stylized comments that downstream span reconstruction depends on for
	// its initial base time.
	s.comment("# [0] %016x cpu %02x block %d", block.Words[0], currentCpu, blocknumber)
	s.comment("# [1] %s cpu %02x flags %02x block %d",
		formatUsecDateTime(gtod), currentCpu, flags, blocknumber)
	s.comment("# TS      DUR EVENT CPU PID RPC ARG0 RETVAL IPC NAME (t and dur multiples of 10ns)")

	fail := false
	if currentCpu >= model.MaxCPUs {
		log.Loger.Error("block[%d] CPU number %d > max %d", blocknumber, currentCpu, model.MaxCPUs)
		fail = true
	}
	// No constraints on base_cycle or flags
	if gtod >= model.UsecPer100Years {
		log.Loger.Error("block[%d] gettimeofday crazy large %016x", blocknumber, gtod)
		fail = true
	}

	s.allFlags |= flags

	firstRealEntry := 8
	veryFirstBlock := blocknumber == 0
	if veryFirstBlock {
		s.firstFlags = flags
		cal, err := Calibrate(block.Words[:], s.cfg.Verbose)
		if err != nil {
			log.Loger.Error("%v", err)
			log.Loger.Error("**** FAIL in block[0] is fatal ****")
			return fmt.Errorf("block[0] calibration: %v", err)
		}
		s.cal = cal
		s.lowResTs = s.lowResTs || cal.LowResTs
	} else {
		firstRealEntry = 2
	}

	if fail {
		if veryFirstBlock {
			log.Loger.Error("**** FAIL in block[0] is fatal ****")
			return fmt.Errorf("block[0] header invalid")
		}
		log.Loger.Error("**** FAIL -- skipping block[%d] ****", blocknumber)
		for i := 0; i < 16; i++ {
			log.Loger.Error("  [%d] %016x", i, block.Words[i])
		}
		return nil
	}

	s.stats.UniqueCpus[currentCpu] = struct{}{}

	// Rolling high bits of the reconstructed cycle counter, re-anchored to
	// this block's base cycle.
	prepend := baseCycle &^ uint64(0xfffff)

	// The block's base cycle count may be slightly later than the truncated
	// time in the first real entry and may have wrapped in its low 20 bits;
	// if so the prepended high bits need to be one smaller.
	firstTimestamp := block.Words[firstRealEntry] >> 44
	priorT := firstTimestamp

	// Wraparound traces: block 0 is the oldest data and may long predate the
	// wrapped blocks, so keep only its names and hardware description.
	keepJustNames := model.HasWraparound(s.firstFlags) && veryFirstBlock

	if model.TracefileVersion(s.firstFlags) >= model.RawVersionNumber {
		// Every block has PID and pidname at the front; the CPU frequency
		// may ride in the high half of the PID word on each CPU's first
		// block.
		pid := block.Words[firstRealEntry] & 0x00000000ffffffff
		freqMhz := block.Words[firstRealEntry] >> 32
		pid = RemapHighPid(pid)
		pidname := util.TrimTrailingNul(blockNameBytes(block, firstRealEntry+2, 2))

		pid, pidname = s.names.FixupIdlePid(pid, pidname)

		if s.cfg.Verbose || s.cfg.HexEvent {
			if s.atFirstCpuBlock[currentCpu] {
				log.Loger.Info("block[%d] cpu %d pid %d freq %d %s",
					blocknumber, currentCpu, pid, freqMhz, pidname)
			}
			s.comment("%% %016x pid %d", block.Words[firstRealEntry], pid)
			s.comment("%% %016x unused", block.Words[firstRealEntry+1])
			s.comment("%% %016x name %s", block.Words[firstRealEntry+2], pidname)
			s.comment("%% %016x name", block.Words[firstRealEntry+3])
		}

		// Remember the name for this pid
		nameinsert := model.PidToEvent(pid)
		name := util.MakeSafeAscii(util.ReduceSpaces(pidname))
		s.names.Set(nameinsert, name)

		// To allow updates of the reconstruction stack downstream
		nsec10 := s.cal.Params.CyclesToNsec10(baseCycle)
		s.emitName(&model.NameDef{Nsec10: nsec10, Event: model.PidName, ArgAll: pid, Name: name})

		s.stats.UniquePids[pid] = struct{}{}
		if s.currentPid[currentCpu] != pid {
			s.stats.CtxSwitches++
		}
		s.currentPid[currentCpu] = pid

		if !keepJustNames {
			name = util.AppendNum(name, pid) // foo.12345

			// The block-boundary PID is almost surely the same process as
			// the block's first entry, and its timestamp postdates that
			// entry, so a context switch here would be wrong. Emit one only
			// at each CPU's first block, for the process running at trace
			// startup, along with its initial frequency if known.
			if s.atFirstCpuBlock[currentCpu] {
				s.atFirstCpuBlock[currentCpu] = false
				s.emitEvent(&model.DecodedEvent{
					Nsec10: nsec10, Duration: 1, Event: model.UserPid,
					Cpu: currentCpu, Pid: pid, Name: name,
				})
				if freqMhz > 0 {
					s.emitEvent(&model.DecodedEvent{
						Nsec10: nsec10, Duration: 1, Event: model.Pstate,
						Cpu: currentCpu, Pid: pid, Arg: freqMhz, Name: "-freq-",
					})
				}
			}
		}

		firstRealEntry += 4
	}

	if Wrapped(firstTimestamp, baseCycle) {
		prepend -= 0x100000
	}

	s.decodeEntries(block, blocknumber, currentCpu, firstRealEntry, prepend, priorT, keepJustNames)
	return nil
}

func blockNameBytes(block *TraceBlock, word, words int) []byte {
	b := make([]byte, 0, words*8)
	for w := 0; w < words; w++ {
		v := block.Words[word+w]
		for k := 0; k < 8; k++ {
			b = append(b, byte(v>>(8*k)))
		}
	}
	return b
}

func (s *DecodeSession) decodeEntries(block *TraceBlock, blocknumber int,
	currentCpu uint64, firstRealEntry int, prepend, priorT uint64, keepJustNames bool) {

	for i := firstRealEntry; i < model.TraceBufSize; i++ {
		entryI := i
		ipc := block.Ipc[i]
		raw := block.Words[i]

		// All-zero NOP entries are skippable; an all-ones entry ends the block.
		if raw == 0 {
			continue
		}
		if raw == ^uint64(0) {
			break
		}

		entry := model.RawEntry(raw)
		t := entry.Ts()
		n := entry.Event()
		arg := entry.Arg()
		argall := entry.ArgAll()
		deltaT := entry.DeltaT()
		retval := model.SignExtendRetval(entry.RawRetval())

		// Skip mostly-FFFF entries, but keep the FFF return of 32-bit -sched-
		if t == 0xFFFFF && n == 0xFFF {
			continue
		}

		if s.cfg.Verbose {
			s.comment("%% [%d,%d] %05x %03x %04x %04x = %d %d %d, %d %d %02x",
				blocknumber, i,
				(raw>>44)&0xFFFFF, (raw>>32)&0xFFF, (raw>>16)&0xFFFF, raw&0xFFFF,
				t, n, deltaT, retval, arg, ipc)
		}

		if model.IsMark(n) {
			s.stats.TotalMarks++
		} else {
			s.stats.EventsByType[n>>8]++
		}

		event := n

		// The module records only the low 20 bits of each timestamp. A
		// TSDELTA entry carries the full difference from the previous entry
		// when the gap cannot be inferred; a large value means slightly
		// backward time.
		if n == model.TsDelta {
			oldfull := prepend | priorT
			var newfull uint64
			if argall < model.LargeTsdelta {
				newfull = oldfull + argall
			} else {
				// Negative TSDELTA: sign extend, unsigned add
				newfull = oldfull + (0xFFFFFFFF00000000 | argall)
			}
			prepend = newfull &^ uint64(0xfffff)
			t = newfull & 0xfffff
			priorT = t
			continue
		}
		// Carry the prepend forward when the truncated time rolls over and
		// the step backward is not just a late store.
		if Wrapped(priorT, t) && !LateStore(priorT, t) {
			prepend += 0x100000
		}

		// tfull is cycle counts from the base minute for this trace
		tfull := prepend | t
		priorT = t

		nsec10 := s.cal.Params.CyclesToNsec10(tfull)
		duration := uint64(0)
		deferredRpcid0 := false

		if model.HasRpcid(n) {
			// Working on this RPC until one with arg 0; defer the switch to
			// zero until after this event is emitted
			if arg != 0 {
				s.currentRpc[currentCpu] = arg
			} else {
				deferredRpcid0 = true
			}
		}

		if model.IsNameDef(n) {
			i += s.decodeNameDef(block, i, n, arg, argall, nsec10)
			continue
		}

		if model.IsCpuDescription(n) {
			// Pass network speed straight through for span reconstruction
			s.emitEvent(&model.DecodedEvent{
				Nsec10: nsec10, Duration: 1, Event: event,
				Cpu: currentCpu, Arg: argall,
			})
		}

		if keepJustNames {
			continue
		}

		// Name definitions skip this code, so they do not affect lo/hi
		if s.stats.LoTimestamp > nsec10 {
			s.stats.LoTimestamp = nsec10
		}
		if s.stats.HiTimestamp < nsec10 {
			s.stats.HiTimestamp = nsec10
		}

		// New user-mode process id
		if model.IsContextSwitch(n) {
			arg = s.names.RemapIdlePid(arg)
			s.stats.UniquePids[arg] = struct{}{}
			if s.currentPid[currentCpu] != arg {
				s.stats.CtxSwitches++
			}
			s.currentPid[currentCpu] = arg
		}

		var name string
		if model.IsReturn(n) {
			callEvent := event &^ uint64(0x0200)
			if callName, ok := s.names.Get(callEvent); ok {
				name += "/" + callName
			}
		} else {
			if evName, ok := s.names.Get(event); ok {
				name += evName
			}
		}

		if model.IsContextSwitch(n) {
			target := model.PidToEvent(arg)
			if targetName, ok := s.names.Get(target); ok {
				name += targetName
			}
			name = util.AppendNum(name, arg)
		}

		// Optimized call: duration from delta_t, return value kept. The IPC
		// byte for this packs IPC before the call and IPC within it.
		if model.IsOptCall(n, deltaT) {
			duration = s.cal.Params.CyclesToNsec10(tfull+deltaT) - nsec10
			if s.lowResTs && deltaT == 1 {
				duration = model.DefaultLowResNsec10
			}
			if duration == 0 {
				duration = 1 // minimum duration of 10ns
			}
		} else {
			retval = 0
		}

		// Remember timer interrupt start time, for PC sample fixup below
		if n == s.timerIrqEvent {
			s.priorTimerIrqNsec10[currentCpu] = nsec10
		}

		// A PC sample is two words; the second is the raw 64-bit PC, kernel
		// if bit 63 is set. Samples are generated after the local timer
		// interrupt but belong just before it, so the timestamp moves back.
		// The CPU frequency may ride in arg0; extract it as a PSTATE event.
		if model.IsPcSample(n) {
			if i+1 >= model.TraceBufSize {
				break
			}
			freqMhz := arg
			i++
			pcSample := block.Words[i]
			if pcSample&0x8000000000000000 != 0 {
				n = model.PcK
			} else {
				n = model.PcU
			}
			event = n
			if s.priorTimerIrqNsec10[currentCpu] != 0 {
				nsec10 = s.priorTimerIrqNsec10[currentCpu] - 1
			}
			// Hash of the PC into arg so the HTML display can pick colors
			arg = (pcSample >> 6) & 0xFFFF
			retval = 0
			ipc = 0
			name = fmt.Sprintf("PC=%012x", pcSample)

			if freqMhz > 0 {
				s.emitEvent(&model.DecodedEvent{
					Nsec10: nsec10, Duration: 1, Event: model.Pstate,
					Cpu: currentCpu, Pid: s.currentPid[currentCpu],
					Rpc: s.currentRpc[currentCpu], Arg: freqMhz, Name: "-freq-",
				})
				s.stats.EventCount++
			}
		}

		if model.IsSpecial(n) {
			name += model.SpecialName[n&0x001f]
			if model.HasRpcid(n) {
				methodName, _ := s.names.Get(arg | model.NameKeyMethod)
				name = util.AppendNum(methodName, arg) // method.rpcid
			} else if model.IsLock(n) {
				lockName, _ := s.names.Get(arg | model.NameKeyLock)
				name = model.SpecialName[n&0x001f] + lockName // try_lockname etc.
			} else if model.IsRawPktHash(n) || model.IsUserMsgHash(n) {
				hash16 := ((argall >> 16) ^ argall) & 0xffff
				name = util.AppendHexNum(name, hash16)
			} else if n == model.Runnable {
				// Include which PID is being made runnable
				name = util.AppendNum(name, arg)
			}
			if duration == 0 {
				duration = 1
			}
		}

		// Unoptimized return: the arg value is the return value
		if model.IsReturn(n) {
			retval = arg
			arg = 0
		}

		// Call to an irq bottom-half routine: name it BH:something
		if model.IsBottomHalf(n) {
			name += ":" + model.SoftIrqName[arg&0x000f]
		}

		// Packet rx/tx and user messages keep the full 32-bit hash.
		// hash16 is always shown in hex caps, other numbers in decimal.
		if model.IsRawPktHash(n) || model.IsUserMsgHash(n) {
			arg = argall
		}

		// RPC message processing start keeps rpcid plus packet-front hash
		if model.IsRpcMsg(n) && arg != 0 {
			arg = argall
		}

		// MARK_A,B,C arg is six base-40 chars; MARK_D is an unsigned int
		if model.IsMarkAbc(n) {
			arg = argall
			name += "=" + util.Base40ToChar(argall)
		}

		if s.cfg.HexEvent {
			s.comment("%%hex %05x.%03x %04x%04x",
				(block.Words[entryI]>>44)&0xFFFFF,
				(block.Words[entryI]>>32)&0xFFF,
				(block.Words[entryI]>>16)&0xFFFF,
				block.Words[entryI]&0xFFFF)
			if i != entryI {
				s.comment("%%hex   %016x", block.Words[entryI+1])
			}
		}

		// Empty name in the first 4K event numbers: synthesize one
		if name == "" && event <= 0xFFF {
			nummask := uint64(0x0FF)
			if event >= 0x800 {
				nummask = 0x1FF
			}
			name = fmt.Sprintf("%s%d", model.MissingEventName[event>>8], event&nummask)
			// Traces using syscall/ret 511 for -sched- without a matching
			// name definition get fixed right here
			switch event {
			case 0x9ff, 0xdff:
				name = "-sched-"
			case 0xbff, 0xfff:
				name = "/-sched-"
			}
		}

		s.emitEvent(&model.DecodedEvent{
			Nsec10: nsec10, Duration: duration, Event: event, Cpu: currentCpu,
			Pid: s.currentPid[currentCpu], Rpc: s.currentRpc[currentCpu],
			Arg: arg, Retval: retval, Ipc: ipc, Name: name,
		})
		s.stats.EventCount++

		if deferredRpcid0 {
			s.currentRpc[currentCpu] = 0
		}
	}
}

// decodeNameDef handles a variable-length name entry starting at word i and
// returns how many extra words it consumed.
func (s *DecodeSession) decodeNameDef(block *TraceBlock, i int, n, arg, argall, nsec10 uint64) int {
	// Remap the raw numbering to unique ranges in the name table
	var nameinsert uint64
	switch {
	case model.IsPidNameDef(n):
		nameinsert = model.PidToEvent(arg) // idle fixup below
	case model.IsLockNameDef(n):
		nameinsert = arg | model.NameKeyLock
	case model.IsMethodNameDef(n):
		nameinsert = (arg & 0xffff) | model.NameKeyMethod
	case model.IsKernelNameDef(n):
		nameinsert = arg | model.NameKeyKernel
	case model.IsModelNameDef(n):
		nameinsert = arg | model.NameKeyModel
	case model.IsHostNameDef(n):
		nameinsert = arg | model.NameKeyHost
	case model.IsQueueNameDef(n):
		nameinsert = arg | model.NameKeyQueue
	case model.IsResNameDef(n):
		nameinsert = arg | model.NameKeyRes
	default:
		nameinsert = ((n & 0x00f) << 8) | arg // syscall/irq/trap names
	}

	length := int((n >> 4) & 0x00f)
	if length < 1 || length > 8 {
		return 0
	}
	if i+length > model.TraceBufSize {
		return model.TraceBufSize - 1 - i
	}

	// Ignore any timepair but keep the names
	if !model.IsTimePair(n) {
		rawName := util.TrimTrailingNul(blockNameBytes(block, i+1, length-1))

		if model.IsPidNameDef(n) {
			var fixedPid uint64
			fixedPid, rawName = s.names.FixupIdlePid(arg, rawName)
			arg = fixedPid
			nameinsert = model.PidToEvent(arg)
		}

		if model.IsModelNameDef(n) && strings.HasPrefix(rawName, "u74-mc") {
			s.lowResTs = true
		}

		name := util.MakeSafeAscii(util.ReduceSpaces(rawName))
		if name != "" {
			s.names.Set(nameinsert, name)
			s.emitName(&model.NameDef{Nsec10: nsec10, Event: n, ArgAll: argall, Name: name})
		}

		// Remember which event number is local_timer and which is -sched-;
		// these vary in different historical traces
		if strings.HasPrefix(rawName, "local_timer") {
			s.timerIrqEvent = model.Irq | (arg & 0xffff)
		}
		if strings.HasPrefix(rawName, "-sched-") {
			s.schedEvent = model.Syscall64 | model.MapNr(arg&0xffff)
		}
	}

	return length - 1
}

// finish emits the trailing pragmas and fills in the derived statistics.
func (s *DecodeSession) finish() {
	// Pass along the OR of all incoming block flags, in particular IPC
	s.pragma("# ## FLAGS: %d", s.allFlags)

	lo := s.stats.LoTimestamp
	hi := s.stats.HiTimestamp
	if lo > hi {
		// No emitted events at all
		lo, hi = 0, 0
	}

	// Reduce timestamps to start at no more than 60 seconds after the base
	// minute. With wraparound tracing the true lo isn't known until the very
	// last block, so the offset is applied here; the larger times already in
	// the output get reduced downstream.
	extraMinutes := lo / 6000000000
	offset := extraMinutes * 6000000000
	lo -= offset
	hi -= offset
	loSeconds := float64(lo) / 100000000.0
	hiSeconds := float64(hi) / 100000000.0
	totalSeconds := hiSeconds - loSeconds
	if totalSeconds <= 0.0 {
		loSeconds = 0.0
		hiSeconds = 1.0
		totalSeconds = 1.0 // avoid zdiv
	}
	s.pragma("# ## TIMES: %10.8f %10.8f", loSeconds, hiSeconds)

	s.stats.LoSeconds = loSeconds
	s.stats.HiSeconds = hiSeconds
	s.stats.TotalSeconds = totalSeconds

	for _, c := range s.consumers {
		if err := c.Shutdown(); err != nil {
			log.Loger.Error("exporter shutdown failed:%v", err)
		}
	}
}
