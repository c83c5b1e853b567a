package machine

import (
	"encoding/binary"
	"testing"

	"github.com/nr32/nr32emu/emu/bus"
	"github.com/nr32/nr32emu/emu/gpu"
)

type nullVideo struct{}

func (nullVideo) DrawTriangles(tris []gpu.Triangle) {}
func (nullVideo) DisplayFramebuffer()               {}

type nullAudio struct{}

func (nullAudio) QueueSamples(samples []int16) {}

type recordingConsole struct{ lines [][]byte }

func (r *recordingConsole) WriteDebug(b []byte) {
	r.lines = append(r.lines, append([]byte(nil), b...))
}

func addiInstr(rd, rs1 uint8, imm int32) uint32 {
	return uint32(imm&0xFFF)<<20 | uint32(rs1)<<15 | uint32(rd)<<7 | 0x13
}

const ecallInstr = 0x00000073

func putRecord(buf []byte, off int, code, p0, p1, p2 uint32) {
	binary.LittleEndian.PutUint32(buf[off:], code)
	binary.LittleEndian.PutUint32(buf[off+4:], p0)
	binary.LittleEndian.PutUint32(buf[off+8:], p1)
	binary.LittleEndian.PutUint32(buf[off+12:], p2)
}

// buildShutdownROM assembles a bootscript that copies a three-instruction
// program into RAM and boots straight into it as the idle task: the
// program sets a7=SYS_SHUTDOWN, a0=code, then ECALLs.
func buildShutdownROM(code int32) []byte {
	const progOff = 0x100
	rom := make([]byte, 0x200)
	copy(rom, "NR32CRT0")

	putRecord(rom, 0x10, bootCOPY, bus.ROMBase+progOff, 0x0, 12)
	putRecord(rom, 0x20, bootHEAP, 0x1000, 0x1000, 0)
	putRecord(rom, 0x30, bootHEAP, 0x2000, 0x1000, 0)
	putRecord(rom, 0x40, bootEXEC, 0x0, 0, 0)
	putRecord(rom, 0x50, 0xFFFFFFFF, 0, 0, 0)

	binary.LittleEndian.PutUint32(rom[progOff:], addiInstr(17, 0, 0x09))
	binary.LittleEndian.PutUint32(rom[progOff+4:], addiInstr(10, 0, code))
	binary.LittleEndian.PutUint32(rom[progOff+8:], ecallInstr)

	return rom
}

func TestBootscriptRunsProgramToShutdown(t *testing.T) {
	m := New(nullVideo{}, nullAudio{}, &recordingConsole{})
	if err := m.LoadROM(buildShutdownROM(42)); err != nil {
		t.Fatalf("LoadROM: %v", err)
	}
	m.Start()

	code, halted, err := m.Run(1000)
	if err != nil {
		t.Fatalf("Run faulted: %v", err)
	}
	if !halted {
		t.Fatal("expected guest to request shutdown within 1000 steps")
	}
	if code != 42 {
		t.Fatalf("shutdown code = %d, want 42", code)
	}
}

func TestLoadROMRejectsBadMagic(t *testing.T) {
	m := New(nullVideo{}, nullAudio{}, &recordingConsole{})
	bad := make([]byte, 0x20)
	copy(bad, "NOTNR32X")
	if err := m.LoadROM(bad); err == nil {
		t.Fatal("expected error for bad magic")
	}
}

func TestDbgPutsReachesConsoleSink(t *testing.T) {
	const (
		msgROMOff   = 0x100 // "hi\n", padded to a 4-byte copy unit
		progROMOff  = 0x110
		msgRAMAddr  = 0x40
		progRAMAddr = 0x300
	)
	rom := make([]byte, 0x400)
	copy(rom, "NR32CRT0")
	copy(rom[msgROMOff:], "hi\n")

	// Program: DBG_PUTS(msgRAMAddr, 3), then SHUTDOWN(0).
	binary.LittleEndian.PutUint32(rom[progROMOff:], addiInstr(17, 0, 0x08))         // a7 = SYS_DBG_PUTS
	binary.LittleEndian.PutUint32(rom[progROMOff+4:], addiInstr(10, 0, msgRAMAddr)) // a0 = ptr
	binary.LittleEndian.PutUint32(rom[progROMOff+8:], addiInstr(11, 0, 3))          // a1 = len
	binary.LittleEndian.PutUint32(rom[progROMOff+12:], ecallInstr)
	binary.LittleEndian.PutUint32(rom[progROMOff+16:], addiInstr(17, 0, 0x09)) // a7 = SYS_SHUTDOWN
	binary.LittleEndian.PutUint32(rom[progROMOff+20:], addiInstr(10, 0, 0))
	binary.LittleEndian.PutUint32(rom[progROMOff+24:], ecallInstr)

	putRecord(rom, 0x10, bootCOPY, bus.ROMBase+msgROMOff, msgRAMAddr, 4)
	putRecord(rom, 0x20, bootCOPY, bus.ROMBase+progROMOff, progRAMAddr, 28)
	putRecord(rom, 0x30, bootHEAP, 0x1000, 0x1000, 0)
	putRecord(rom, 0x40, bootHEAP, 0x2000, 0x1000, 0)
	putRecord(rom, 0x50, bootEXEC, progRAMAddr, 0, 0)
	putRecord(rom, 0x60, 0xFFFFFFFF, 0, 0, 0)

	sink := &recordingConsole{}
	m := New(nullVideo{}, nullAudio{}, sink)
	if err := m.LoadROM(rom); err != nil {
		t.Fatalf("LoadROM: %v", err)
	}
	m.Start()
	if _, halted, err := m.Run(1000); err != nil {
		t.Fatalf("Run faulted: %v", err)
	} else if !halted {
		t.Fatal("expected guest to request shutdown within 1000 steps")
	}
	if len(sink.lines) != 1 || string(sink.lines[0]) != "hi" {
		t.Fatalf("console lines = %v, want [\"hi\"]", sink.lines)
	}
}
