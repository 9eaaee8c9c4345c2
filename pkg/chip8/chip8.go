// Package chip8 implements the CHIP-8 interpreter core: the instruction
// decoder and the machine that fetches, decodes and executes one instruction
// per Step call.
//
// The core is single-threaded and never blocks. A driver owns one Console,
// calls Step at its chosen rate from one goroutine, and feeds key state
// between steps; the Console performs no locking of its own.
package chip8

import (
	"fmt"
	"io"
	"math/rand/v2"

	"github.com/retroenv/retrogolib/log"

	"gochip8/pkg/display"
)

const (
	// MemorySize is the byte-addressable memory of the machine.
	MemorySize = 4096
	// ProgramStart is where ROM images are loaded and execution begins.
	ProgramStart = 0x200
	// StackSize is the maximum call nesting depth.
	StackSize = 16
	// RegisterCount is the number of general registers V0-VF.
	RegisterCount = 16
	// KeyCount is the number of keypad keys.
	KeyCount = 16
)

// flagRegister doubles as the carry/borrow/collision flag.
const flagRegister = 0xF

// SignalKind tags the per-step signal consumed by the driver.
type SignalKind uint8

const (
	// SignalNop reports a step with no driver-visible effect.
	SignalNop SignalKind = iota
	// SignalDraw reports that the screen changed; Pixels holds the full set
	// of lit cells.
	SignalDraw
	// SignalWaitKey reports that a key-wait instruction found no key pressed
	// and will re-execute on the next step.
	SignalWaitKey
	// SignalExit reports that the program counter left the loaded program.
	// The machine is halted; the driver should stop stepping.
	SignalExit
)

// Signal is the outcome of one Step call.
type Signal struct {
	Kind   SignalKind
	Pixels []display.Pixel
}

// Console owns all machine state: registers, memory, call stack, timers,
// keypad latch and the screen. One Console runs one loaded program; run a
// different program by constructing a new Console or reloading via LoadROM.
type Console struct {
	v      [RegisterCount]uint8
	i      uint16
	pc     uint16
	dt     uint8
	st     uint8
	sp     uint8
	stack  [StackSize]uint16
	memory [MemorySize]byte
	keys   [KeyCount]bool
	screen display.Screen
	romEnd uint16
	halted bool

	rng    *rand.Rand
	logger *log.Logger
}

// New constructs a Console with the font table installed and the given ROM
// image loaded at ProgramStart. A ROM larger than the program region fails
// construction with ErrInvalidROM; read failures are passed through.
func New(rom io.Reader) (*Console, error) {
	c := &Console{
		pc:  ProgramStart,
		rng: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	copy(c.memory[:len(fontSet)], fontSet[:])

	if err := c.LoadROM(rom); err != nil {
		return nil, err
	}
	return c, nil
}

// SetLogger enables per-instruction execution tracing at debug level.
func (c *Console) SetLogger(logger *log.Logger) {
	c.logger = logger
}

// SetRand replaces the random source used by RND. Tests inject a seeded
// source to make RND deterministic.
func (c *Console) SetRand(rng *rand.Rand) {
	c.rng = rng
}

// LoadROM clears the program region, copies the ROM image to ProgramStart
// and rewinds the program counter. Registers, timers and the screen are left
// untouched; a full reset is a fresh Console.
func (c *Console) LoadROM(rom io.Reader) error {
	data, err := io.ReadAll(rom)
	if err != nil {
		return fmt.Errorf("reading ROM: %w", err)
	}
	if len(data) > MemorySize-ProgramStart {
		return fmt.Errorf("%w: %d bytes exceed the %d byte program region",
			ErrInvalidROM, len(data), MemorySize-ProgramStart)
	}

	for i := ProgramStart; i < MemorySize; i++ {
		c.memory[i] = 0
	}
	copy(c.memory[ProgramStart:], data)

	c.romEnd = ProgramStart + uint16(len(data))
	c.pc = ProgramStart
	c.halted = false
	return nil
}

// KeyPress latches a keypad key as held. Out-of-range keys are ignored.
func (c *Console) KeyPress(key uint8) {
	if key < KeyCount {
		c.keys[key] = true
	}
}

// KeyRelease clears a keypad key. Out-of-range keys are ignored.
func (c *Console) KeyRelease(key uint8) {
	if key < KeyCount {
		c.keys[key] = false
	}
}

// SoundTimer returns the current sound timer value. A non-zero value is the
// program's audio cue; the core models only the counter.
func (c *Console) SoundTimer() uint8 {
	return c.st
}

// pressedKey returns the lowest-indexed held key.
func (c *Console) pressedKey() (uint8, bool) {
	for key, held := range c.keys {
		if held {
			return uint8(key), true
		}
	}
	return 0, false
}

func (c *Console) isPressed(key uint8) bool {
	return key < KeyCount && c.keys[key]
}

// fetch reads the next instruction word and advances the program counter.
// It reports false once the counter leaves the loaded program.
func (c *Console) fetch() (uint16, bool) {
	if c.pc < ProgramStart || c.pc >= c.romEnd || int(c.pc)+1 >= MemorySize {
		return 0, false
	}
	word := uint16(c.memory[c.pc])<<8 | uint16(c.memory[c.pc+1])
	c.pc += 2
	return word, true
}

// Step runs one machine cycle: decrement the timers, fetch, decode and
// execute a single instruction, and report the resulting signal. Timers tick
// on every call, even the one that halts. Decode failures and stack faults
// are fatal; the Console stays halted afterwards.
func (c *Console) Step() (Signal, error) {
	if c.dt > 0 {
		c.dt--
	}
	if c.st > 0 {
		c.st--
	}

	if c.halted {
		return Signal{Kind: SignalExit}, nil
	}

	word, ok := c.fetch()
	if !ok {
		c.halted = true
		return Signal{Kind: SignalExit}, nil
	}

	op, err := Decode(word)
	if err != nil {
		c.halted = true
		return Signal{}, err
	}

	if c.logger != nil {
		c.logger.Debug("exec",
			log.Hex("word", word),
			log.Stringer("op", op))
	}

	return c.execute(op)
}

// execute dispatches a decoded operation. Decode has already rejected every
// word outside the table, so the switch is exhaustive over Kind.
func (c *Console) execute(op Op) (Signal, error) {
	nop := Signal{Kind: SignalNop}

	switch op.Kind {
	case OpSys:
		// Legacy machine call, ignored.

	case OpCls:
		c.screen.Clear()
		return Signal{Kind: SignalDraw, Pixels: c.screen.Pixels()}, nil

	case OpRet:
		addr, err := c.pop()
		if err != nil {
			return Signal{}, err
		}
		c.pc = addr

	case OpJump:
		c.pc = op.NNN

	case OpCall:
		if err := c.push(c.pc); err != nil {
			return Signal{}, err
		}
		c.pc = op.NNN

	case OpSkipEq:
		if c.v[op.X] == op.NN {
			c.pc += 2
		}

	case OpSkipNe:
		if c.v[op.X] != op.NN {
			c.pc += 2
		}

	case OpSkipEqReg:
		if c.v[op.X] == c.v[op.Y] {
			c.pc += 2
		}

	case OpLoad:
		c.v[op.X] = op.NN

	case OpAdd:
		c.v[op.X] += op.NN

	case OpLoadReg:
		c.v[op.X] = c.v[op.Y]

	case OpOr:
		c.v[op.X] |= c.v[op.Y]

	case OpAnd:
		c.v[op.X] &= c.v[op.Y]

	case OpXor:
		c.v[op.X] ^= c.v[op.Y]

	case OpAddReg:
		sum := uint16(c.v[op.X]) + uint16(c.v[op.Y])
		c.v[op.X] = uint8(sum)
		c.setFlag(sum > 0xFF)

	case OpSub:
		// Flag convention: VF=1 when the subtraction borrows. Kept in sync
		// with OpSubReverse.
		borrow := c.v[op.X] < c.v[op.Y]
		c.v[op.X] -= c.v[op.Y]
		c.setFlag(borrow)

	case OpShiftRight:
		c.v[flagRegister] = c.v[op.X] & 0x01
		c.v[op.X] >>= 1

	case OpSubReverse:
		// Same convention as OpSub: VF=1 when Vy-Vx borrows. The result
		// saturates at zero on borrow.
		borrow := c.v[op.Y] < c.v[op.X]
		if borrow {
			c.v[op.X] = 0
		} else {
			c.v[op.X] = c.v[op.Y] - c.v[op.X]
		}
		c.setFlag(borrow)

	case OpShiftLeft:
		c.setFlag(c.v[op.X]&0x80 != 0)
		c.v[op.X] <<= 1

	case OpSkipNeReg:
		if c.v[op.X] != c.v[op.Y] {
			c.pc += 2
		}

	case OpLoadI:
		c.i = op.NNN

	case OpJumpV0:
		c.pc = op.NNN + uint16(c.v[0])

	case OpRandom:
		c.v[op.X] = uint8(c.rng.UintN(256)) & op.NN

	case OpDraw:
		return c.draw(op), nil

	case OpSkipKey:
		if c.isPressed(c.v[op.X]) {
			c.pc += 2
		}

	case OpSkipNoKey:
		if !c.isPressed(c.v[op.X]) {
			c.pc += 2
		}

	case OpReadDelay:
		c.v[op.X] = c.dt

	case OpWaitKey:
		key, pressed := c.pressedKey()
		if !pressed {
			// Rewind so the same instruction re-executes next step. The
			// block is pure state, never a suspended goroutine.
			c.pc -= 2
			return Signal{Kind: SignalWaitKey}, nil
		}
		c.v[op.X] = key

	case OpSetDelay:
		c.dt = c.v[op.X]

	case OpSetSound:
		c.st = c.v[op.X]

	case OpAddI:
		c.i += uint16(c.v[op.X])

	case OpFontAddr:
		c.i = uint16(c.v[op.X]) * 4

	case OpStoreBCD:
		value := c.v[op.X]
		digits := [3]uint8{value / 100, value % 100 / 10, value % 10}
		for j, d := range digits {
			if addr := int(c.i) + j; addr < MemorySize {
				c.memory[addr] = d
			}
		}

	case OpStoreRegs:
		for r := uint8(0); r <= op.X; r++ {
			if addr := int(c.i) + int(r); addr < MemorySize {
				c.memory[addr] = c.v[r]
			}
		}

	case OpLoadRegs:
		for r := uint8(0); r <= op.X; r++ {
			if addr := int(c.i) + int(r); addr < MemorySize {
				c.v[r] = c.memory[addr]
			}
		}
	}

	return nop, nil
}

// draw blits the n-row sprite at memory[i:] to (Vx, Vy). VF receives the
// collision flag only when the sprite origin is on the grid.
func (c *Console) draw(op Op) Signal {
	start := int(c.i)
	end := start + int(op.N)
	if start > MemorySize {
		start = MemorySize
	}
	if end > MemorySize {
		end = MemorySize
	}

	sprite := display.Sprite{
		X:    c.v[op.X],
		Y:    c.v[op.Y],
		Data: c.memory[start:end],
	}
	if collision, drawn := c.screen.Draw(sprite); drawn {
		c.v[flagRegister] = collision
	}

	return Signal{Kind: SignalDraw, Pixels: c.screen.Pixels()}
}

func (c *Console) setFlag(set bool) {
	if set {
		c.v[flagRegister] = 1
	} else {
		c.v[flagRegister] = 0
	}
}

func (c *Console) push(addr uint16) error {
	if int(c.sp) >= StackSize {
		c.halted = true
		return ErrStackOverflow
	}
	c.stack[c.sp] = addr
	c.sp++
	return nil
}

func (c *Console) pop() (uint16, error) {
	if c.sp == 0 {
		c.halted = true
		return 0, ErrStackUnderflow
	}
	c.sp--
	return c.stack[c.sp], nil
}
