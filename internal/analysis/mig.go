package analysis

import (
	"encoding/binary"
	"fmt"
)

// MIG subsystem descriptor fields (struct mig_subsystem, 64-bit).
const (
	MIGServer   = "server"    // demux routine pointer
	MIGStart    = "start"     // first message id
	MIGEnd      = "end"       // last message id + 1
	MIGMaxSize  = "maxsize"   // max reply message size
	MIGReserved = "reserved"  // always zero in generated code
	MIGRoutine  = "routine"   // first routine descriptor pointer
	MIGMsgCount = "msg_count" // derived: end - start

	migDescriptorSize = 40
)

// MIGLimits bounds what counts as a plausible message-id range.
type MIGLimits struct {
	MaxStartID  uint64
	MaxRoutines uint64
}

// DefaultMIGLimits returns the limits used by the machipc pass.
func DefaultMIGLimits() MIGLimits {
	return MIGLimits{
		MaxStartID:  0x100000,
		MaxRoutines: 512,
	}
}

// Known subsystem start ids from XNU MIG definitions.
var migSubsystemNames = map[uint64]string{
	0xC8:    "mach_host",
	0x190:   "host_priv",
	0x3E8:   "clock",
	0x961:   "catch_exc",
	0x965:   "catch_mach_exc",
	0xAF0:   "is_iokit",
	0xBB8:   "processor",
	0xC80:   "mach_port",
	0xD48:   "task",
	0xE10:   "thread_act",
	0xED8:   "vm32_map",
	0xFA0:   "processor_set",
	0x12C0:  "mach_vm",
	0x1324:  "memory_entry",
	0x1518:  "mach_voucher",
	0x1838:  "UNDReply",
	0x1F40:  "task_restartable",
	0xC90F:  "arcade_register",
	0xAEDA8: "mach_eventlink",
}

// MIGSubsystemName returns the XNU subsystem name for a start id.
func MIGSubsystemName(start uint64) (string, bool) {
	name, ok := migSubsystemNames[start]
	return name, ok
}

// MIGSubsystemLayout returns the layout of a MIG subsystem descriptor:
//
//	server   @0  u64
//	start    @8  u32
//	end      @12 u32
//	maxsize  @16 u32
//	reserved @24 u64
//	routine  @32 u64
//
// A window is accepted when reserved is zero, start is a small positive id
// and end exceeds start by at most MaxRoutines. maxsize is recorded only.
func MIGSubsystemLayout(limits MIGLimits) Layout {
	return Layout{
		Name:   "mig_subsystem",
		Size:   migDescriptorSize,
		Stride: DefaultStructStride,
		Order:  binary.LittleEndian,
		Fields: []Field{
			{Name: MIGServer, Offset: 0, Width: 8},
			{Name: MIGStart, Offset: 8, Width: 4},
			{Name: MIGEnd, Offset: 12, Width: 4},
			{Name: MIGMaxSize, Offset: 16, Width: 4},
			{Name: MIGReserved, Offset: 24, Width: 8},
			{Name: MIGRoutine, Offset: 32, Width: 8},
		},
		Validate: func(r Record) bool {
			start, end := r.Value(MIGStart), r.Value(MIGEnd)
			if r.Value(MIGReserved) != 0 {
				return false
			}
			if start == 0 || start >= limits.MaxStartID {
				return false
			}
			return end > start && end-start <= limits.MaxRoutines
		},
		Derive: func(r *Record) {
			r.Values[MIGMsgCount] = r.Value(MIGEnd) - r.Value(MIGStart)
		},
		Describe: describeMIGSubsystem,
	}
}

func describeMIGSubsystem(r Record) string {
	start, end := r.Value(MIGStart), r.Value(MIGEnd)
	name, known := MIGSubsystemName(start)
	if !known {
		name = "subsystem"
	}
	return fmt.Sprintf("%s: msg ids %d-%d (%d routines), max reply %d bytes, server %#x",
		name, start, end-1, r.Value(MIGMsgCount), r.Value(MIGMaxSize), r.Value(MIGServer))
}

// MIGSubsystem is a typed view of a recovered descriptor.
type MIGSubsystem struct {
	Address  uint64 `json:"address"`
	Name     string `json:"name,omitempty"`
	Server   uint64 `json:"server"`
	Start    uint32 `json:"start"`
	End      uint32 `json:"end"`
	MaxSize  uint32 `json:"maxsize"`
	Routine  uint64 `json:"routine"`
	MsgCount uint32 `json:"msg_count"`
}

// NewMIGSubsystem converts a record produced by MIGSubsystemLayout.
func NewMIGSubsystem(r Record) MIGSubsystem {
	name, _ := MIGSubsystemName(r.Value(MIGStart))
	return MIGSubsystem{
		Address:  r.Address,
		Name:     name,
		Server:   r.Value(MIGServer),
		Start:    uint32(r.Value(MIGStart)),
		End:      uint32(r.Value(MIGEnd)),
		MaxSize:  uint32(r.Value(MIGMaxSize)),
		Routine:  r.Value(MIGRoutine),
		MsgCount: uint32(r.Value(MIGMsgCount)),
	}
}
