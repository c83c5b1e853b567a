package cpu

// Op tags the decoded instruction variant. Dispatch in exec.go is a
// single switch on this tag, per the no-function-pointer-table design
// note.
type Op uint8

const (
	OpIllegal Op = iota
	OpLUI
	OpAUIPC
	OpJAL
	OpJALR
	OpBranch
	OpLoad
	OpStore
	OpImm
	OpReg
	OpFence
	OpECALL
	OpEBREAK
	OpMRET
	OpWFI
	OpCSRRW
	OpCSRRS
	OpCSRRC
	OpAMO
)

// Branch/load/store/imm/reg sub-operations, carried in Funct3/Funct7.
const (
	f3BEQ, f3BNE, f3BLT, f3BGE, f3BLTU, f3BGEU = 0, 1, 4, 5, 6, 7
	f3LB, f3LH, f3LW, f3LBU, f3LHU             = 0, 1, 2, 4, 5
	f3SB, f3SH, f3SW                           = 0, 1, 2
)

// AMO funct5 values (bits [31:27] of the encoding), restricted to the
// subset NR32 implements.
const (
	amoLR     = 0b00010
	amoSC     = 0b00011
	amoADD    = 0b00000
	amoOR     = 0b01000
)

// Instr is one decoded instruction, tagged-union style: only the fields
// relevant to Op are meaningful.
type Instr struct {
	Op     Op
	Rd     uint8
	Rs1    uint8
	Rs2    uint8
	Imm    int32
	Funct3 uint8
	Funct7 uint8
	CSR    uint16
	Length uint8 // 2 (compressed) or 4
}

func signExtend(v uint32, bits int) int32 {
	shift := 32 - bits
	return int32(v<<shift) >> shift
}

// DecodeAt decodes the instruction whose first halfword is at buf[off:],
// where buf holds at least off+6 bytes (page bytes plus lookahead) so a
// 4-byte instruction spanning the buffer's end can still be read; missing
// lookahead bytes must be pre-filled with 0xFF by the caller, per the
// page cache's cross-page fetch contract.
func DecodeAt(buf []byte, off int) Instr {
	lo := uint16(buf[off]) | uint16(buf[off+1])<<8
	if lo&0x3 != 0x3 {
		return decodeCompressed(lo)
	}
	word := uint32(lo) | uint32(buf[off+2])<<16 | uint32(buf[off+3])<<24
	return decodeFull(word)
}

func decodeFull(w uint32) Instr {
	opcode := w & 0x7F
	rd := uint8((w >> 7) & 0x1F)
	funct3 := uint8((w >> 12) & 0x7)
	rs1 := uint8((w >> 15) & 0x1F)
	rs2 := uint8((w >> 20) & 0x1F)
	funct7 := uint8((w >> 25) & 0x7F)

	in := Instr{Rd: rd, Rs1: rs1, Rs2: rs2, Funct3: funct3, Funct7: funct7, Length: 4}

	switch opcode {
	case 0x37: // LUI
		in.Op = OpLUI
		in.Imm = int32(w & 0xFFFFF000)
	case 0x17: // AUIPC
		in.Op = OpAUIPC
		in.Imm = int32(w & 0xFFFFF000)
	case 0x6F: // JAL
		in.Op = OpJAL
		imm := ((w>>31)&1)<<20 | ((w>>12)&0xFF)<<12 | ((w>>20)&1)<<11 | ((w>>21)&0x3FF)<<1
		in.Imm = signExtend(imm, 21)
	case 0x67: // JALR
		in.Op = OpJALR
		in.Imm = signExtend(w>>20, 12)
	case 0x63: // Branch
		in.Op = OpBranch
		imm := ((w>>31)&1)<<12 | ((w>>7)&1)<<11 | ((w>>25)&0x3F)<<5 | ((w>>8)&0xF)<<1
		in.Imm = signExtend(imm, 13)
	case 0x03: // Load
		in.Op = OpLoad
		in.Imm = signExtend(w>>20, 12)
	case 0x23: // Store
		in.Op = OpStore
		imm := ((w>>25)&0x7F)<<5 | (w>>7)&0x1F
		in.Imm = signExtend(imm, 12)
	case 0x13: // Imm ALU
		in.Op = OpImm
		if funct3 == 1 || funct3 == 5 {
			in.Imm = int32(rs2) // shamt
			in.Funct7 = funct7
		} else {
			in.Imm = signExtend(w>>20, 12)
		}
	case 0x33: // Reg ALU / M extension
		in.Op = OpReg
	case 0x0F: // FENCE / FENCE.I
		in.Op = OpFence
	case 0x73: // SYSTEM
		decodeSystem(w, funct3, &in)
	case 0x2F: // AMO
		in.Op = OpAMO
		in.Funct7 = uint8((w >> 27) & 0x1F) // funct5 stored in Funct7
	default:
		in.Op = OpIllegal
	}
	return in
}

func decodeSystem(w uint32, funct3 uint8, in *Instr) {
	imm12 := w >> 20
	switch funct3 {
	case 0:
		switch imm12 {
		case 0x000:
			in.Op = OpECALL
		case 0x001:
			in.Op = OpEBREAK
		case 0x302:
			in.Op = OpMRET
		case 0x105:
			in.Op = OpWFI
		default:
			in.Op = OpIllegal
		}
	case 1:
		in.Op = OpCSRRW
		in.CSR = uint16(imm12)
	case 2:
		in.Op = OpCSRRS
		in.CSR = uint16(imm12)
	case 3:
		in.Op = OpCSRRC
		in.CSR = uint16(imm12)
	case 5:
		in.Op = OpCSRRW
		in.CSR = uint16(imm12)
		in.Imm = int32(in.Rs1) // immediate form carries the 5-bit uimm in rs1's field
		in.Rs1 = 0
		in.Funct7 = 1 // marks "immediate variant" for exec.go
	case 6:
		in.Op = OpCSRRS
		in.CSR = uint16(imm12)
		in.Imm = int32(in.Rs1)
		in.Rs1 = 0
		in.Funct7 = 1
	case 7:
		in.Op = OpCSRRC
		in.CSR = uint16(imm12)
		in.Imm = int32(in.Rs1)
		in.Rs1 = 0
		in.Funct7 = 1
	default:
		in.Op = OpIllegal
	}
}

// decodeCompressed expands a 16-bit RVC encoding into the equivalent
// tagged Instr the base dispatcher understands, so exec.go has only one
// execution path regardless of encoding width.
func decodeCompressed(c uint16) Instr {
	quadrant := c & 0x3
	funct3 := uint8((c >> 13) & 0x7)
	in := Instr{Length: 2}

	rdRs1p := uint8((c>>7)&0x7) + 8
	rs2p := uint8((c>>2)&0x7) + 8
	rd := uint8((c >> 7) & 0x1F)
	rs2 := uint8((c >> 2) & 0x1F)

	switch quadrant {
	case 0:
		switch funct3 {
		case 0: // C.ADDI4SPN
			nzuimm := (uint32(c>>11)&0x3)<<4 | (uint32(c>>7)&0xF)<<6 | (uint32(c>>6)&0x1)<<2 | (uint32(c>>5)&0x1)<<3
			in.Op = OpImm
			in.Rd = rs2p
			in.Rs1 = 2
			in.Imm = int32(nzuimm)
		case 2: // C.LW
			off := (uint32(c>>6)&0x1)<<2 | (uint32(c>>10)&0x7)<<3 | (uint32(c>>5)&0x1)<<6
			in.Op = OpLoad
			in.Funct3 = f3LW
			in.Rd = rs2p
			in.Rs1 = rdRs1p
			in.Imm = int32(off)
		case 6: // C.SW
			off := (uint32(c>>6)&0x1)<<2 | (uint32(c>>10)&0x7)<<3 | (uint32(c>>5)&0x1)<<6
			in.Op = OpStore
			in.Funct3 = f3SW
			in.Rs1 = rdRs1p
			in.Rs2 = rs2p
			in.Imm = int32(off)
		default:
			in.Op = OpIllegal
		}
	case 1:
		switch funct3 {
		case 0: // C.NOP / C.ADDI
			imm := signExtend((uint32(c>>12)&1)<<5|(uint32(c>>2)&0x1F), 6)
			in.Op = OpImm
			in.Rd = rd
			in.Rs1 = rd
			in.Imm = imm
		case 1: // C.JAL (RV32 only)
			off := decodeCJOffset(c)
			in.Op = OpJAL
			in.Rd = 1
			in.Imm = off
		case 2: // C.LI
			imm := signExtend((uint32(c>>12)&1)<<5|(uint32(c>>2)&0x1F), 6)
			in.Op = OpImm
			in.Rd = rd
			in.Rs1 = 0
			in.Imm = imm
		case 3:
			if rd == 2 { // C.ADDI16SP
				imm := signExtend((uint32(c>>12)&1)<<9|(uint32(c>>3)&0x3)<<7|(uint32(c>>5)&0x1)<<6|(uint32(c>>2)&0x1)<<5|(uint32(c>>6)&0x1)<<4, 10)
				in.Op = OpImm
				in.Rd = 2
				in.Rs1 = 2
				in.Imm = imm
			} else { // C.LUI
				imm := signExtend((uint32(c>>12)&1)<<17|(uint32(c>>2)&0x1F)<<12, 18)
				in.Op = OpLUI
				in.Rd = rd
				in.Imm = imm
			}
		case 4:
			funct2 := (c >> 10) & 0x3
			switch funct2 {
			case 0: // C.SRLI
				in.Op = OpImm
				in.Funct3 = 5
				in.Funct7 = 0
				in.Rd = rdRs1p
				in.Rs1 = rdRs1p
				in.Imm = int32((c >> 2) & 0x1F)
			case 1: // C.SRAI
				in.Op = OpImm
				in.Funct3 = 5
				in.Funct7 = 0x20
				in.Rd = rdRs1p
				in.Rs1 = rdRs1p
				in.Imm = int32((c >> 2) & 0x1F)
			case 2: // C.ANDI
				imm := signExtend((uint32(c>>12)&1)<<5|(uint32(c>>2)&0x1F), 6)
				in.Op = OpImm
				in.Funct3 = 7
				in.Rd = rdRs1p
				in.Rs1 = rdRs1p
				in.Imm = imm
			case 3:
				funct6b := (c >> 5) & 0x3
				in.Op = OpReg
				in.Rd = rdRs1p
				in.Rs1 = rdRs1p
				in.Rs2 = rs2p
				if c&0x1000 == 0 {
					switch funct6b {
					case 0:
						in.Funct3, in.Funct7 = 0, 0x20 // C.SUB
					case 1:
						in.Funct3, in.Funct7 = 4, 0 // C.XOR
					case 2:
						in.Funct3, in.Funct7 = 6, 0 // C.OR
					case 3:
						in.Funct3, in.Funct7 = 7, 0 // C.AND
					}
				} else {
					in.Op = OpIllegal // C.SUBW/ADDW/etc — RV64-only, not in RV32C
				}
			}
		case 5: // C.J
			off := decodeCJOffset(c)
			in.Op = OpJAL
			in.Rd = 0
			in.Imm = off
		case 6: // C.BEQZ
			off := decodeCBOffset(c)
			in.Op = OpBranch
			in.Funct3 = f3BEQ
			in.Rs1 = rdRs1p
			in.Rs2 = 0
			in.Imm = off
		case 7: // C.BNEZ
			off := decodeCBOffset(c)
			in.Op = OpBranch
			in.Funct3 = f3BNE
			in.Rs1 = rdRs1p
			in.Rs2 = 0
			in.Imm = off
		}
	case 2:
		switch funct3 {
		case 0: // C.SLLI
			in.Op = OpImm
			in.Funct3 = 1
			in.Funct7 = 0
			in.Rd = rd
			in.Rs1 = rd
			in.Imm = int32((c >> 2) & 0x1F)
		case 2: // C.LWSP
			off := (uint32(c>>4)&0x7)<<2 | (uint32(c>>12)&0x1)<<5 | (uint32(c>>2)&0x3)<<6
			in.Op = OpLoad
			in.Funct3 = f3LW
			in.Rd = rd
			in.Rs1 = 2
			in.Imm = int32(off)
		case 4:
			if c&0x1000 == 0 {
				if rs2 == 0 { // C.JR
					in.Op = OpJALR
					in.Rd = 0
					in.Rs1 = rd
					in.Imm = 0
				} else { // C.MV
					in.Op = OpReg
					in.Funct3 = 0
					in.Funct7 = 0
					in.Rd = rd
					in.Rs1 = 0
					in.Rs2 = rs2
				}
			} else {
				if rd == 0 && rs2 == 0 { // C.EBREAK
					in.Op = OpEBREAK
				} else if rs2 == 0 { // C.JALR
					in.Op = OpJALR
					in.Rd = 1
					in.Rs1 = rd
					in.Imm = 0
				} else { // C.ADD
					in.Op = OpReg
					in.Funct3 = 0
					in.Funct7 = 0
					in.Rd = rd
					in.Rs1 = rd
					in.Rs2 = rs2
				}
			}
		case 6: // C.SWSP
			off := (uint32(c>>9)&0xF)<<2 | (uint32(c>>7)&0x3)<<6
			in.Op = OpStore
			in.Funct3 = f3SW
			in.Rs1 = 2
			in.Rs2 = rs2
			in.Imm = int32(off)
		default:
			in.Op = OpIllegal
		}
	default: // quadrant 3: not a compressed instruction
		in.Op = OpIllegal
	}
	return in
}

func decodeCJOffset(c uint16) int32 {
	off := (uint32(c>>12)&1)<<11 | (uint32(c>>11)&1)<<4 | (uint32(c>>9)&0x3)<<8 |
		(uint32(c>>8)&1)<<10 | (uint32(c>>7)&1)<<6 | (uint32(c>>6)&1)<<7 |
		(uint32(c>>3)&0x7)<<1 | (uint32(c>>2)&1)<<5
	return signExtend(off, 12)
}

func decodeCBOffset(c uint16) int32 {
	off := (uint32(c>>12)&1)<<8 | (uint32(c>>10)&0x3)<<3 | (uint32(c>>5)&0x3)<<6 |
		(uint32(c>>3)&0x3)<<1 | (uint32(c>>2)&1)<<5
	return signExtend(off, 9)
}
