// Package asm implements a small two-pass assembler for the interpreter's
// instruction set. It understands the same mnemonic forms the disassembler
// emits, plus labels and data directives, so listings round-trip.
package asm

import (
	"fmt"
	"strconv"
	"strings"

	"gochip8/pkg/chip8"
)

// Assemble translates source text into a ROM image loadable at the program
// start address. Labels resolve to their load address.
func Assemble(source string) ([]byte, error) {
	lines := splitLines(source)

	labels, err := collectLabels(lines)
	if err != nil {
		return nil, err
	}

	var rom []byte
	for _, ln := range lines {
		encoded, err := encodeLine(ln, labels)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", ln.number, err)
		}
		rom = append(rom, encoded...)
	}
	return rom, nil
}

type line struct {
	number int
	label  string
	fields []string
}

func splitLines(source string) []line {
	var lines []line
	for i, raw := range strings.Split(source, "\n") {
		text := raw
		if idx := strings.IndexByte(text, ';'); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}

		ln := line{number: i + 1}
		if idx := strings.IndexByte(text, ':'); idx >= 0 {
			ln.label = strings.TrimSpace(text[:idx])
			text = strings.TrimSpace(text[idx+1:])
		}
		if text != "" {
			ln.fields = strings.Fields(strings.ReplaceAll(text, ",", " "))
		}
		if ln.label != "" || len(ln.fields) > 0 {
			lines = append(lines, ln)
		}
	}
	return lines
}

// collectLabels runs the sizing pass: every instruction occupies one word,
// data directives occupy their payload.
func collectLabels(lines []line) (map[string]uint16, error) {
	labels := make(map[string]uint16)
	addr := uint16(chip8.ProgramStart)

	for _, ln := range lines {
		if ln.label != "" {
			if _, exists := labels[ln.label]; exists {
				return nil, fmt.Errorf("line %d: duplicate label %q", ln.number, ln.label)
			}
			labels[ln.label] = addr
		}
		if len(ln.fields) == 0 {
			continue
		}
		switch strings.ToUpper(ln.fields[0]) {
		case ".BYTE":
			addr += uint16(len(ln.fields) - 1)
		case ".WORD":
			addr += uint16(len(ln.fields)-1) * 2
		default:
			addr += 2
		}
	}
	return labels, nil
}

func encodeLine(ln line, labels map[string]uint16) ([]byte, error) {
	if len(ln.fields) == 0 {
		return nil, nil
	}
	mnemonic := strings.ToUpper(ln.fields[0])
	args := ln.fields[1:]

	switch mnemonic {
	case ".BYTE":
		var data []byte
		for _, arg := range args {
			v, err := parseNumber(arg, 0xFF)
			if err != nil {
				return nil, err
			}
			data = append(data, byte(v))
		}
		return data, nil
	case ".WORD":
		var data []byte
		for _, arg := range args {
			v, err := parseNumber(arg, 0xFFFF)
			if err != nil {
				return nil, err
			}
			data = append(data, byte(v>>8), byte(v))
		}
		return data, nil
	}

	word, err := encodeOp(mnemonic, args, labels)
	if err != nil {
		return nil, err
	}
	return []byte{byte(word >> 8), byte(word)}, nil
}

var addrOps = map[string]uint16{
	"SYS": 0x0000, "JP": 0x1000, "CALL": 0x2000, "LDI": 0xA000, "JPREL": 0xB000,
}

var aluOps = map[string]uint16{
	"OR": 0x1, "AND": 0x2, "XOR": 0x3, "SUB": 0x5, "SUBN": 0x7,
}

var oneRegOps = map[string]uint16{
	"SHR": 0x8006, "SHL": 0x800E,
	"SKP": 0xE09E, "SKNP": 0xE0A1,
	"CPDT": 0xF007, "LDKP": 0xF00A, "LDDT": 0xF015, "LDST": 0xF018,
	"ADDI": 0xF01E, "LDIS": 0xF029, "LDIB": 0xF033,
	"LDIR": 0xF055, "LDIM": 0xF065,
}

func encodeOp(mnemonic string, args []string, labels map[string]uint16) (uint16, error) {
	switch mnemonic {
	case "CLS":
		return 0x00E0, nil
	case "RET":
		return 0x00EE, nil
	case "SE", "SNE", "LD", "ADD":
		return encodeDualForm(mnemonic, args)
	case "RND":
		if len(args) != 2 {
			return 0, fmt.Errorf("RND: want register and byte, got %d operands", len(args))
		}
		x, ok := parseRegister(args[0])
		if !ok {
			return 0, fmt.Errorf("RND: bad register %q", args[0])
		}
		nn, err := parseNumber(args[1], 0xFF)
		if err != nil {
			return 0, fmt.Errorf("RND: %w", err)
		}
		return 0xC000 | x<<8 | nn, nil
	case "DRW":
		if len(args) != 3 {
			return 0, fmt.Errorf("DRW: want two registers and a height, got %d operands", len(args))
		}
		x, okX := parseRegister(args[0])
		y, okY := parseRegister(args[1])
		if !okX || !okY {
			return 0, fmt.Errorf("DRW: bad registers %q %q", args[0], args[1])
		}
		n, err := parseNumber(args[2], 0xF)
		if err != nil {
			return 0, fmt.Errorf("DRW: %w", err)
		}
		return 0xD000 | x<<8 | y<<4 | n, nil
	}

	if base, ok := addrOps[mnemonic]; ok {
		if len(args) != 1 {
			return 0, fmt.Errorf("%s: want one address, got %d operands", mnemonic, len(args))
		}
		addr, err := parseAddress(args[0], labels)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", mnemonic, err)
		}
		return base | addr, nil
	}

	if sub, ok := aluOps[mnemonic]; ok {
		if len(args) != 2 {
			return 0, fmt.Errorf("%s: want two registers, got %d operands", mnemonic, len(args))
		}
		x, okX := parseRegister(args[0])
		y, okY := parseRegister(args[1])
		if !okX || !okY {
			return 0, fmt.Errorf("%s: bad registers %q %q", mnemonic, args[0], args[1])
		}
		return 0x8000 | x<<8 | y<<4 | sub, nil
	}

	if low, ok := oneRegOps[mnemonic]; ok {
		if len(args) != 1 {
			return 0, fmt.Errorf("%s: want one register, got %d operands", mnemonic, len(args))
		}
		x, okX := parseRegister(args[0])
		if !okX {
			return 0, fmt.Errorf("%s: bad register %q", mnemonic, args[0])
		}
		return low | x<<8, nil
	}

	return 0, fmt.Errorf("unknown mnemonic %q", mnemonic)
}

// encodeDualForm handles the mnemonics whose encoding depends on whether the
// second operand is a register or an immediate.
func encodeDualForm(mnemonic string, args []string) (uint16, error) {
	if len(args) != 2 {
		return 0, fmt.Errorf("%s: want two operands, got %d", mnemonic, len(args))
	}
	x, ok := parseRegister(args[0])
	if !ok {
		return 0, fmt.Errorf("%s: bad register %q", mnemonic, args[0])
	}

	if y, isReg := parseRegister(args[1]); isReg {
		switch mnemonic {
		case "SE":
			return 0x5000 | x<<8 | y<<4, nil
		case "SNE":
			return 0x9000 | x<<8 | y<<4, nil
		case "LD":
			return 0x8000 | x<<8 | y<<4, nil
		default: // ADD
			return 0x8004 | x<<8 | y<<4, nil
		}
	}

	nn, err := parseNumber(args[1], 0xFF)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", mnemonic, err)
	}
	switch mnemonic {
	case "SE":
		return 0x3000 | x<<8 | nn, nil
	case "SNE":
		return 0x4000 | x<<8 | nn, nil
	case "LD":
		return 0x6000 | x<<8 | nn, nil
	default: // ADD
		return 0x7000 | x<<8 | nn, nil
	}
}

// parseRegister accepts $V0-$VF and V0-VF.
func parseRegister(s string) (uint16, bool) {
	s = strings.ToUpper(strings.TrimPrefix(s, "$"))
	if len(s) != 2 || s[0] != 'V' {
		return 0, false
	}
	v, err := strconv.ParseUint(s[1:], 16, 4)
	if err != nil {
		return 0, false
	}
	return uint16(v), true
}

// parseAddress accepts #-prefixed or bare numbers and label references.
func parseAddress(s string, labels map[string]uint16) (uint16, error) {
	num := strings.TrimPrefix(s, "#")
	if v, err := strconv.ParseUint(num, 0, 16); err == nil {
		if v > 0xFFF {
			return 0, fmt.Errorf("address %q out of range", s)
		}
		return uint16(v), nil
	}
	if addr, ok := labels[s]; ok {
		return addr, nil
	}
	return 0, fmt.Errorf("undefined label %q", s)
}

func parseNumber(s string, max uint64) (uint16, error) {
	v, err := strconv.ParseUint(strings.TrimPrefix(s, "#"), 0, 16)
	if err != nil {
		return 0, fmt.Errorf("bad number %q", s)
	}
	if v > max {
		return 0, fmt.Errorf("value %q exceeds %d", s, max)
	}
	return uint16(v), nil
}
