package chip8

import "fmt"

// Kind selects the operation of a decoded instruction word.
type Kind uint8

const (
	OpSys Kind = iota // 0nnn, recognized but ignored
	OpCls             // 00E0
	OpRet             // 00EE
	OpJump            // 1nnn
	OpCall            // 2nnn
	OpSkipEq          // 3xnn
	OpSkipNe          // 4xnn
	OpSkipEqReg       // 5xy0
	OpLoad            // 6xnn
	OpAdd             // 7xnn
	OpLoadReg         // 8xy0
	OpOr              // 8xy1
	OpAnd             // 8xy2
	OpXor             // 8xy3
	OpAddReg          // 8xy4
	OpSub             // 8xy5
	OpShiftRight      // 8xy6
	OpSubReverse      // 8xy7
	OpShiftLeft       // 8xyE
	OpSkipNeReg       // 9xy0
	OpLoadI           // Annn
	OpJumpV0          // Bnnn
	OpRandom          // Cxnn
	OpDraw            // Dxyn
	OpSkipKey         // Ex9E
	OpSkipNoKey       // ExA1
	OpReadDelay       // Fx07
	OpWaitKey         // Fx0A
	OpSetDelay        // Fx15
	OpSetSound        // Fx18
	OpAddI            // Fx1E
	OpFontAddr        // Fx29
	OpStoreBCD        // Fx33
	OpStoreRegs       // Fx55
	OpLoadRegs        // Fx65
)

// Op is a decoded instruction: a kind plus its typed operands. Only the
// fields the kind uses are meaningful. Once Decode has succeeded every Op is
// executable; there is no unknown variant.
type Op struct {
	Kind Kind
	X    uint8  // first register field
	Y    uint8  // second register field
	N    uint8  // low nibble (sprite height)
	NN   uint8  // low byte immediate
	NNN  uint16 // 12-bit address
}

// Decode maps a raw instruction word to its operation. Words outside the
// instruction table fail with an UnknownInstructionError naming the word;
// executing past a malformed instruction would corrupt interpreter state, so
// unknown words halt rather than skip.
func Decode(word uint16) (Op, error) {
	op := Op{
		X:   uint8(word >> 8 & 0xF),
		Y:   uint8(word >> 4 & 0xF),
		N:   uint8(word & 0xF),
		NN:  uint8(word),
		NNN: word & 0xFFF,
	}

	switch word & 0xF000 {
	case 0x0000:
		switch word {
		case 0x00E0:
			op.Kind = OpCls
		case 0x00EE:
			op.Kind = OpRet
		default:
			op.Kind = OpSys
		}
	case 0x1000:
		op.Kind = OpJump
	case 0x2000:
		op.Kind = OpCall
	case 0x3000:
		op.Kind = OpSkipEq
	case 0x4000:
		op.Kind = OpSkipNe
	case 0x5000:
		op.Kind = OpSkipEqReg
	case 0x6000:
		op.Kind = OpLoad
	case 0x7000:
		op.Kind = OpAdd
	case 0x8000:
		switch word & 0xF {
		case 0x0:
			op.Kind = OpLoadReg
		case 0x1:
			op.Kind = OpOr
		case 0x2:
			op.Kind = OpAnd
		case 0x3:
			op.Kind = OpXor
		case 0x4:
			op.Kind = OpAddReg
		case 0x5:
			op.Kind = OpSub
		case 0x6:
			op.Kind = OpShiftRight
		case 0x7:
			op.Kind = OpSubReverse
		case 0xE:
			op.Kind = OpShiftLeft
		default:
			return Op{}, UnknownInstructionError{Word: word}
		}
	case 0x9000:
		if word&0xF != 0 {
			return Op{}, UnknownInstructionError{Word: word}
		}
		op.Kind = OpSkipNeReg
	case 0xA000:
		op.Kind = OpLoadI
	case 0xB000:
		op.Kind = OpJumpV0
	case 0xC000:
		op.Kind = OpRandom
	case 0xD000:
		op.Kind = OpDraw
	case 0xE000:
		switch word & 0xFF {
		case 0x9E:
			op.Kind = OpSkipKey
		case 0xA1:
			op.Kind = OpSkipNoKey
		default:
			return Op{}, UnknownInstructionError{Word: word}
		}
	case 0xF000:
		switch word & 0xFF {
		case 0x07:
			op.Kind = OpReadDelay
		case 0x0A:
			op.Kind = OpWaitKey
		case 0x15:
			op.Kind = OpSetDelay
		case 0x18:
			op.Kind = OpSetSound
		case 0x1E:
			op.Kind = OpAddI
		case 0x29:
			op.Kind = OpFontAddr
		case 0x33:
			op.Kind = OpStoreBCD
		case 0x55:
			op.Kind = OpStoreRegs
		case 0x65:
			op.Kind = OpLoadRegs
		default:
			return Op{}, UnknownInstructionError{Word: word}
		}
	}

	return op, nil
}

// String renders the operation in the assembler's mnemonic form.
func (o Op) String() string {
	switch o.Kind {
	case OpSys:
		return fmt.Sprintf("SYS #%d", o.NNN)
	case OpCls:
		return "CLS"
	case OpRet:
		return "RET"
	case OpJump:
		return fmt.Sprintf("JP #%d", o.NNN)
	case OpCall:
		return fmt.Sprintf("CALL #%d", o.NNN)
	case OpSkipEq:
		return fmt.Sprintf("SE $V%X %d", o.X, o.NN)
	case OpSkipNe:
		return fmt.Sprintf("SNE $V%X %d", o.X, o.NN)
	case OpSkipEqReg:
		return fmt.Sprintf("SE $V%X $V%X", o.X, o.Y)
	case OpLoad:
		return fmt.Sprintf("LD $V%X %d", o.X, o.NN)
	case OpAdd:
		return fmt.Sprintf("ADD $V%X %d", o.X, o.NN)
	case OpLoadReg:
		return fmt.Sprintf("LD $V%X $V%X", o.X, o.Y)
	case OpOr:
		return fmt.Sprintf("OR $V%X $V%X", o.X, o.Y)
	case OpAnd:
		return fmt.Sprintf("AND $V%X $V%X", o.X, o.Y)
	case OpXor:
		return fmt.Sprintf("XOR $V%X $V%X", o.X, o.Y)
	case OpAddReg:
		return fmt.Sprintf("ADD $V%X $V%X", o.X, o.Y)
	case OpSub:
		return fmt.Sprintf("SUB $V%X $V%X", o.X, o.Y)
	case OpShiftRight:
		return fmt.Sprintf("SHR $V%X", o.X)
	case OpSubReverse:
		return fmt.Sprintf("SUBN $V%X $V%X", o.X, o.Y)
	case OpShiftLeft:
		return fmt.Sprintf("SHL $V%X", o.X)
	case OpSkipNeReg:
		return fmt.Sprintf("SNE $V%X $V%X", o.X, o.Y)
	case OpLoadI:
		return fmt.Sprintf("LDI #%d", o.NNN)
	case OpJumpV0:
		return fmt.Sprintf("JPREL #%d", o.NNN)
	case OpRandom:
		return fmt.Sprintf("RND $V%X %d", o.X, o.NN)
	case OpDraw:
		return fmt.Sprintf("DRW $V%X $V%X %d", o.X, o.Y, o.N)
	case OpSkipKey:
		return fmt.Sprintf("SKP $V%X", o.X)
	case OpSkipNoKey:
		return fmt.Sprintf("SKNP $V%X", o.X)
	case OpReadDelay:
		return fmt.Sprintf("CPDT $V%X", o.X)
	case OpWaitKey:
		return fmt.Sprintf("LDKP $V%X", o.X)
	case OpSetDelay:
		return fmt.Sprintf("LDDT $V%X", o.X)
	case OpSetSound:
		return fmt.Sprintf("LDST $V%X", o.X)
	case OpAddI:
		return fmt.Sprintf("ADDI $V%X", o.X)
	case OpFontAddr:
		return fmt.Sprintf("LDIS $V%X", o.X)
	case OpStoreBCD:
		return fmt.Sprintf("LDIB $V%X", o.X)
	case OpStoreRegs:
		return fmt.Sprintf("LDIR $V%X", o.X)
	case OpLoadRegs:
		return fmt.Sprintf("LDIM $V%X", o.X)
	}
	return fmt.Sprintf("Op(%d)", o.Kind)
}
