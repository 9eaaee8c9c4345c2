package chip8

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidROM reports a ROM image larger than the program region.
	ErrInvalidROM = errors.New("invalid ROM")

	// ErrStackOverflow reports a CALL beyond the 16 supported nesting levels.
	ErrStackOverflow = errors.New("stack overflow")

	// ErrStackUnderflow reports a RET with no pending call.
	ErrStackUnderflow = errors.New("stack underflow")
)

// UnknownInstructionError is returned when a fetched word matches no entry in
// the instruction table. Execution cannot safely continue past one.
type UnknownInstructionError struct {
	Word uint16
}

func (e UnknownInstructionError) Error() string {
	return fmt.Sprintf("unknown instruction: %#04X", e.Word)
}
