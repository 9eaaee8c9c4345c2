// Package disasm renders ROM images as assembly listings. It performs a
// linear sweep: every word is decoded in place, with addresses reported
// relative to the interpreter's program start.
package disasm

import (
	"fmt"
	"strings"

	"github.com/retroenv/retrogolib/log"

	"gochip8/pkg/chip8"
)

// Disassembler turns ROM bytes into a listing.
type Disassembler struct {
	logger *log.Logger
}

// New returns a Disassembler logging undecodable words through logger.
func New(logger *log.Logger) *Disassembler {
	return &Disassembler{logger: logger}
}

// Listing disassembles a whole ROM image. Words outside the instruction
// table are emitted as .word directives so the listing reassembles to the
// same image; a trailing odd byte becomes a .byte directive.
func (d *Disassembler) Listing(rom []byte) string {
	var b strings.Builder

	for offset := 0; offset+1 < len(rom); offset += 2 {
		addr := chip8.ProgramStart + offset
		word := uint16(rom[offset])<<8 | uint16(rom[offset+1])

		op, err := chip8.Decode(word)
		if err != nil {
			d.logger.Debug("not an instruction, emitting data word",
				log.Hex("address", uint16(addr)),
				log.Hex("word", word))
			fmt.Fprintf(&b, "0x%04X: %04X  .word 0x%04X\n", addr, word, word)
			continue
		}

		fmt.Fprintf(&b, "0x%04X: %04X  %s\n", addr, word, op)
	}

	if len(rom)%2 != 0 {
		last := rom[len(rom)-1]
		addr := chip8.ProgramStart + len(rom) - 1
		fmt.Fprintf(&b, "0x%04X: %02X    .byte 0x%02X\n", addr, last, last)
	}

	return b.String()
}
