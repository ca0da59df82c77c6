package model

// 12-bit raw trace event numbers, as written by the kernel tracing module.

// Variable-length name entries (low nibble is the name type, bits 7:4 carry
// the word count of the entry).
const (
	PidName       = 0x002
	MethodName    = 0x003
	TrapName      = 0x004
	InterruptName = 0x005
	TimePair      = 0x006
	LockName      = 0x007
	Syscall64Name = 0x008
	KernelVer     = 0x009
	ModelName     = 0x00A
	HostName      = 0x00B
	Syscall32Name = 0x00C
	QueueName     = 0x00D
	ResName       = 0x00E

	// Two-word PC sample scaffolding entry
	PcTemp = 0x101
)

// Specials are point events.
const (
	UserPid       = 0x200 // Context switch: new PID
	RpcidReq      = 0x201
	RpcidResp     = 0x202
	RpcidMid      = 0x203
	RpcidRxMsg    = 0x204
	RpcidTxMsg    = 0x205
	Runnable      = 0x206 // Set process runnable: PID
	IPI           = 0x207 // Send IPI; receive is an interrupt
	Mwait         = 0x208 // C-states
	Pstate        = 0x209 // P-states
	MarkA         = 0x20A
	MarkB         = 0x20B
	MarkC         = 0x20C
	MarkD         = 0x20D
	LockNoAcquire = 0x210
	LockAcquire   = 0x211
	LockWakeup    = 0x212
	RxPkt         = 0x214
	TxPkt         = 0x215
	RxUser        = 0x216
	TxUser        = 0x217
	MbitSec       = 0x218 // Network speed description
	TsDelta       = 0x21D // Signed timestamp delta
	PcU           = 0x21E // Sampled user-mode PC
	PcK           = 0x21F // Sampled kernel-mode PC
	MaxSpecial    = 0x21F
)

// Call/return ranges, blocks of 256 or 512 numbers.
const (
	Trap      = 0x400
	Irq       = 0x500
	TrapRet   = 0x600
	IrqRet    = 0x700
	Syscall64 = 0x800
	Sysret64  = 0xA00
	Syscall32 = 0xC00
	Sysret32  = 0xE00
)

// BottomHalf reuses the spurious-APIC vector to show soft IRQ handlers.
const BottomHalf = 255

// Trace block flags, top byte of block word 1.
const (
	IpcFlag     = 0x80
	WrapFlag    = 0x40
	VersionMask = 0x0F
)

// Module and control must be at least version 3.
const RawVersionNumber = 3

const (
	MaxCPUs = 80

	// Number of uint64 values per trace block
	TraceBufSize = 8192

	// Large TSDELTA arg means slightly backward time
	LargeTsdelta = 2000000000

	// A backward step at or below this is a late store, not a wrap
	LateStoreThresh = 0x20000

	// Low-res riscv: delta_t 1 becomes 350 nsec
	DefaultLowResNsec10 = 35

	Mhz32BitCounts = 54
)

// UsecPer100Years bounds sane gettimeofday values, through ~2070.
const UsecPer100Years = 1000000 * 86400 * 365 * 100

const IdleName = "-idle-"

// SoftIrqName indexes bottom-half handlers by arg & 0xF.
var SoftIrqName = [16]string{
	"hi", "timer", "tx", "rx", "block", "irq_p", "taskl", "sched",
	"hrtim", "rcu", "", "", "", "", "", "ast",
}

// MissingEventName supplies placeholder prefixes by event high nibble.
var MissingEventName = [16]string{
	"nam#", "nam#", "spl#", "spl#",
	"trp#", "irq#", "/trp#", "/irq#",
	"sys#", "sys#", "/sys#", "/sys#",
	"s32#", "s32#", "/s32#", "/s32#",
}

// SpecialName indexes point-event names by event & 0x1F.
var SpecialName = [32]string{
	"userpid", "rpcidreq", "rpcidresp", "rpcidmid",
	"rpcidrxmsg", "rpcidtxmsg", "runnable", "sendipi",
	"mwait", "-freq-", "mark_a", "mark_b",
	"mark_c", "mark_d", "", "",
	"try_", "acq_", "rel_", "",
	"rx_pkt", "tx_pkt", "rx_user", "tx_user",
	"mbit_sec", "", "", "",
	"", "", "", "",
}

// MapNr relocates 32-bit syscall numbers 0x200..0x3FF to 0x400..0x5FF.
func MapNr(nr uint64) uint64 { return nr + (nr & 0x200) }

// PidToEvent returns the user-mode-execution event for a pid, pid plus 64K.
func PidToEvent(pid uint64) uint64 { return (pid & 0xFFFF) | 0x10000 }

func EventToPid(event uint64) uint64 { return event & 0xFFFF }

// Name-table key type prefixes (bits 16+ of the synthetic key).
const (
	NameKeyPid    = 0x10000
	NameKeyLock   = 0x20000
	NameKeyMethod = 0x30000
	NameKeyKernel = 0x40000
	NameKeyModel  = 0x50000
	NameKeyHost   = 0x60000
	NameKeyQueue  = 0x70000
	NameKeyRes    = 0x80000
)

func IsCpuDescription(event uint64) bool { return event == MbitSec }

func IsContextSwitch(event uint64) bool { return event == UserPid }

func IsIdle(event uint64) bool { return event == 0x10000 }

func IsUserMode(event uint64) bool { return event > 0xffff && !IsIdle(event) }

// IsCall reports a syscall/interrupt/trap entry event.
func IsCall(event uint64) bool {
	return event <= 0xffff && Trap <= event && (event&0x0200) == 0
}

// IsOptCall reports an optimized call with included return.
func IsOptCall(event, deltaT uint64) bool { return deltaT > 0 && IsCall(event) }

// IsReturn reports a syscall/interrupt/trap return event.
func IsReturn(event uint64) bool {
	return event <= 0xffff && Trap <= event && (event&0x0200) != 0
}

func IsTimePair(event uint64) bool { return (event &^ 0x0f0) == TimePair }

func IsNameDef(event uint64) bool {
	return 0x010 <= event && event <= 0x1ff && event != PcTemp
}

func IsPidNameDef(event uint64) bool { return (event & 0xf0f) == PidName }

func IsMethodNameDef(event uint64) bool { return (event & 0xf0f) == MethodName }

func IsLockNameDef(event uint64) bool { return (event & 0xf0f) == LockName }

func IsKernelNameDef(event uint64) bool { return (event & 0xf0f) == KernelVer }

func IsModelNameDef(event uint64) bool { return (event & 0xf0f) == ModelName }

func IsHostNameDef(event uint64) bool { return (event & 0xf0f) == HostName }

func IsQueueNameDef(event uint64) bool { return (event & 0xf0f) == QueueName }

func IsResNameDef(event uint64) bool { return (event & 0xf0f) == ResName }

// IsSpecial reports a special point marker (but not UserPid itself).
func IsSpecial(event uint64) bool { return 0x0200 < event && event <= MaxSpecial }

func IsMark(event uint64) bool { return MarkA <= event && event <= MarkD }

func IsMarkAbc(event uint64) bool {
	return event == MarkA || event == MarkB || event == MarkC
}

func IsPcSample(event uint64) bool {
	return event == PcU || event == PcK || event == PcTemp
}

// HasRpcid reports rpcreq, rpcresp, rpcmid, rpcrxmsg, rpctxmsg.
func HasRpcid(event uint64) bool { return RpcidReq <= event && event <= RpcidTxMsg }

// IsRawPktHash reports raw kernel packet receive/send time and hash.
func IsRawPktHash(event uint64) bool { return RxPkt <= event && event <= TxPkt }

// IsUserMsgHash reports user message receive/send time and hash.
func IsUserMsgHash(event uint64) bool { return RxUser <= event && event <= TxUser }

// IsRpcMsg reports RPC message processing begin/end.
func IsRpcMsg(event uint64) bool { return RpcidReq <= event && event <= RpcidResp }

func IsLock(event uint64) bool { return LockNoAcquire <= event && event <= LockWakeup }

// IsBottomHalf reports an irq call/ret to a bottom-half soft IRQ handler.
func IsBottomHalf(event uint64) bool { return (event &^ 0x0200) == Irq+BottomHalf }

func TracefileVersion(flags uint8) int { return int(flags & VersionMask) }

func HasIPC(flags uint8) bool { return (flags & IpcFlag) != 0 }

func HasWraparound(flags uint8) bool { return (flags & WrapFlag) != 0 }
