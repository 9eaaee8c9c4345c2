package chip8

import (
	"bytes"
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/retroenv/retrogolib/assert"
)

// romBytes encodes instruction words as a big-endian ROM image.
func romBytes(words ...uint16) []byte {
	rom := make([]byte, 0, len(words)*2)
	for _, w := range words {
		rom = append(rom, byte(w>>8), byte(w))
	}
	return rom
}

// newConsole constructs a Console running the given instruction words.
func newConsole(t *testing.T, words ...uint16) *Console {
	t.Helper()
	c, err := New(bytes.NewReader(romBytes(words...)))
	assert.NoError(t, err)
	return c
}

func TestNewLoadsFontAndROM(t *testing.T) {
	c := newConsole(t, 0x00E0)

	assert.Equal(t, fontSet[:], c.memory[:len(fontSet)])
	assert.Equal(t, uint16(ProgramStart), c.pc)
	assert.Equal(t, uint16(ProgramStart+2), c.romEnd)
}

func TestLoadROMTooLarge(t *testing.T) {
	_, err := New(bytes.NewReader(make([]byte, MemorySize-ProgramStart+1)))
	assert.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidROM))

	// Exactly the program region is still a valid image.
	c, err := New(bytes.NewReader(make([]byte, MemorySize-ProgramStart)))
	assert.NoError(t, err)
	assert.NotNil(t, c)
}

func TestLoadROMReadFailure(t *testing.T) {
	wantErr := errors.New("socket closed")
	_, err := New(failingReader{err: wantErr})
	assert.True(t, errors.Is(err, wantErr))
}

type failingReader struct{ err error }

func (r failingReader) Read([]byte) (int, error) { return 0, r.err }

func TestReloadKeepsTimersAndRegisters(t *testing.T) {
	c := newConsole(t, 0x00E0, 0x00E0)
	c.dt = 42
	c.st = 7
	c.v[3] = 0xAB

	assert.NoError(t, c.LoadROM(bytes.NewReader(romBytes(0x1200))))

	assert.Equal(t, uint8(42), c.dt)
	assert.Equal(t, uint8(7), c.st)
	assert.Equal(t, uint8(0xAB), c.v[3])
	assert.Equal(t, uint16(ProgramStart), c.pc)
	// The old second instruction is gone from the program region.
	assert.Equal(t, byte(0), c.memory[ProgramStart+2])
}

func TestStepExitsPastROM(t *testing.T) {
	c := newConsole(t, 0x6001) // single LD, then nothing left to fetch

	sig, err := c.Step()
	assert.NoError(t, err)
	assert.Equal(t, SignalNop, sig.Kind)

	sig, err = c.Step()
	assert.NoError(t, err)
	assert.Equal(t, SignalExit, sig.Kind)
	assert.True(t, c.halted)

	// Halted is terminal.
	sig, err = c.Step()
	assert.NoError(t, err)
	assert.Equal(t, SignalExit, sig.Kind)
}

func TestStepDecodeFailureIsFatal(t *testing.T) {
	c := newConsole(t, 0xFFFF)

	_, err := c.Step()
	assert.Error(t, err)

	var unknown UnknownInstructionError
	assert.True(t, errors.As(err, &unknown))
	assert.Equal(t, uint16(0xFFFF), unknown.Word)

	sig, err := c.Step()
	assert.NoError(t, err)
	assert.Equal(t, SignalExit, sig.Kind)
}

func TestTimersFloorAtZero(t *testing.T) {
	// Six harmless SYS instructions; both timers tick once per call.
	c := newConsole(t, 0x0123, 0x0123, 0x0123, 0x0123, 0x0123, 0x0123)
	c.dt = 5
	c.st = 5

	for i := 0; i < 5; i++ {
		_, err := c.Step()
		assert.NoError(t, err)
	}
	assert.Equal(t, uint8(0), c.dt)
	assert.Equal(t, uint8(0), c.st)

	// The sixth call must not wrap below zero.
	_, err := c.Step()
	assert.NoError(t, err)
	assert.Equal(t, uint8(0), c.dt)
	assert.Equal(t, uint8(0), c.st)
}

func TestAddImmediateWraps(t *testing.T) {
	c := newConsole(t, 0x70FF) // ADD V0 255
	c.v[0] = 2
	c.v[flagRegister] = 9 // immediate add must not touch the flag

	_, err := c.Step()
	assert.NoError(t, err)
	assert.Equal(t, uint8(1), c.v[0])
	assert.Equal(t, uint8(9), c.v[flagRegister])
}

func TestAddRegCarry(t *testing.T) {
	c := newConsole(t, 0x8014, 0x8014)
	c.v[0] = 250
	c.v[1] = 10

	_, err := c.Step()
	assert.NoError(t, err)
	assert.Equal(t, uint8(4), c.v[0]) // 260 mod 256
	assert.Equal(t, uint8(1), c.v[flagRegister])

	_, err = c.Step()
	assert.NoError(t, err)
	assert.Equal(t, uint8(14), c.v[0])
	assert.Equal(t, uint8(0), c.v[flagRegister])
}

func TestSubBorrowFlag(t *testing.T) {
	// VF=1 means "borrow occurred" here, deliberately the inverse of some
	// canonical CHIP-8 descriptions. Flip this test (and OpSub) together.
	c := newConsole(t, 0x8015, 0x8015)
	c.v[0] = 5
	c.v[1] = 10

	_, err := c.Step()
	assert.NoError(t, err)
	assert.Equal(t, uint8(251), c.v[0]) // wraps
	assert.Equal(t, uint8(1), c.v[flagRegister])

	c.v[0] = 20
	c.v[1] = 10
	_, err = c.Step()
	assert.NoError(t, err)
	assert.Equal(t, uint8(10), c.v[0])
	assert.Equal(t, uint8(0), c.v[flagRegister])
}

func TestSubnBorrowFlag(t *testing.T) {
	// Same borrow-occurred convention as SUB; the result saturates at zero.
	c := newConsole(t, 0x8017, 0x8017)
	c.v[0] = 10
	c.v[1] = 3 // Vy - Vx = 3 - 10 borrows

	_, err := c.Step()
	assert.NoError(t, err)
	assert.Equal(t, uint8(0), c.v[0])
	assert.Equal(t, uint8(1), c.v[flagRegister])

	c.v[0] = 3
	c.v[1] = 10
	_, err = c.Step()
	assert.NoError(t, err)
	assert.Equal(t, uint8(7), c.v[0])
	assert.Equal(t, uint8(0), c.v[flagRegister])
}

func TestShiftsCaptureShiftedOutBit(t *testing.T) {
	c := newConsole(t, 0x801E, 0x8016) // SHL V0, SHR V0
	c.v[0] = 0b1000_0001

	_, err := c.Step()
	assert.NoError(t, err)
	assert.Equal(t, uint8(0b0000_0010), c.v[0])
	assert.Equal(t, uint8(1), c.v[flagRegister])

	_, err = c.Step()
	assert.NoError(t, err)
	assert.Equal(t, uint8(0b0000_0001), c.v[0])
	assert.Equal(t, uint8(0), c.v[flagRegister])
}

func TestSkipVariants(t *testing.T) {
	tests := []struct {
		name string
		word uint16
		v    [2]uint8
		skip bool
	}{
		{"SE taken", 0x3042, [2]uint8{0x42, 0}, true},
		{"SE not taken", 0x3042, [2]uint8{0x41, 0}, false},
		{"SNE taken", 0x4042, [2]uint8{0x41, 0}, true},
		{"SNE not taken", 0x4042, [2]uint8{0x42, 0}, false},
		{"SE reg taken", 0x5010, [2]uint8{7, 7}, true},
		{"SE reg not taken", 0x5010, [2]uint8{7, 8}, false},
		{"SNE reg taken", 0x9010, [2]uint8{7, 8}, true},
		{"SNE reg not taken", 0x9010, [2]uint8{7, 7}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newConsole(t, tt.word)
			c.v[0] = tt.v[0]
			c.v[1] = tt.v[1]

			_, err := c.Step()
			assert.NoError(t, err)

			want := uint16(ProgramStart + 2)
			if tt.skip {
				want += 2
			}
			assert.Equal(t, want, c.pc)
		})
	}
}

func TestJumps(t *testing.T) {
	c := newConsole(t, 0x1ABC)
	_, err := c.Step()
	assert.NoError(t, err)
	assert.Equal(t, uint16(0xABC), c.pc)

	c = newConsole(t, 0xB300)
	c.v[0] = 8
	_, err = c.Step()
	assert.NoError(t, err)
	assert.Equal(t, uint16(0x308), c.pc)
}

func TestCallStackDepth(t *testing.T) {
	// CALL #0x200 loops back onto itself: each step nests one level deeper.
	c := newConsole(t, 0x2200)

	for i := 0; i < StackSize; i++ {
		_, err := c.Step()
		assert.NoError(t, err)
	}

	_, err := c.Step()
	assert.True(t, errors.Is(err, ErrStackOverflow))
	assert.True(t, c.halted)
}

func TestReturnWithoutCall(t *testing.T) {
	c := newConsole(t, 0x00EE)

	_, err := c.Step()
	assert.True(t, errors.Is(err, ErrStackUnderflow))
	assert.True(t, c.halted)
}

func TestCallReturnRoundTrip(t *testing.T) {
	// CALL #0x204; <unreached>; RET -> back to 0x202, then exit.
	c := newConsole(t, 0x2204, 0x0000, 0x00EE)

	_, err := c.Step()
	assert.NoError(t, err)
	assert.Equal(t, uint16(0x204), c.pc)

	_, err = c.Step()
	assert.NoError(t, err)
	assert.Equal(t, uint16(0x202), c.pc)
}

func TestKeyWaitRewindsUntilPressed(t *testing.T) {
	c := newConsole(t, 0xF10A, 0x0123)

	for i := 0; i < 3; i++ {
		sig, err := c.Step()
		assert.NoError(t, err)
		assert.Equal(t, SignalWaitKey, sig.Kind)
		assert.Equal(t, uint16(ProgramStart), c.pc)
	}

	c.KeyPress(0xB)
	c.KeyPress(0x4) // lowest pressed key wins

	sig, err := c.Step()
	assert.NoError(t, err)
	assert.Equal(t, SignalNop, sig.Kind)
	assert.Equal(t, uint8(0x4), c.v[1])
	assert.Equal(t, uint16(ProgramStart+2), c.pc)
}

func TestSkipKeyGuardsIndex(t *testing.T) {
	// SKNP with a register value outside the keypad treats it as not held.
	c := newConsole(t, 0xE0A1)
	c.v[0] = 200

	_, err := c.Step()
	assert.NoError(t, err)
	assert.Equal(t, uint16(ProgramStart+4), c.pc)

	// SKP on a held key skips; on a released key it falls through.
	c = newConsole(t, 0xE09E)
	c.v[0] = 5
	c.KeyPress(5)
	_, err = c.Step()
	assert.NoError(t, err)
	assert.Equal(t, uint16(ProgramStart+4), c.pc)

	c = newConsole(t, 0xE09E)
	c.v[0] = 5
	c.KeyPress(5)
	c.KeyRelease(5)
	_, err = c.Step()
	assert.NoError(t, err)
	assert.Equal(t, uint16(ProgramStart+2), c.pc)
}

func TestRandomSeededAndMasked(t *testing.T) {
	run := func(seed uint64) []uint8 {
		c := newConsole(t, 0xC00F, 0xC10F, 0xC20F)
		c.SetRand(rand.New(rand.NewPCG(seed, 0)))
		for i := 0; i < 3; i++ {
			_, err := c.Step()
			assert.NoError(t, err)
		}
		return []uint8{c.v[0], c.v[1], c.v[2]}
	}

	first := run(1)
	second := run(1)
	assert.Equal(t, first, second)

	for _, v := range first {
		assert.True(t, v < 16) // masked by 0x0F
	}
}

func TestBCDStore(t *testing.T) {
	c := newConsole(t, 0xF033)

	for value := 0; value < 256; value++ {
		c.i = 0x300
		c.v[0] = uint8(value)
		_, err := c.execute(Op{Kind: OpStoreBCD, X: 0})
		assert.NoError(t, err)

		d0, d1, d2 := c.memory[0x300], c.memory[0x301], c.memory[0x302]
		assert.True(t, d0 <= 9)
		assert.True(t, d1 <= 9)
		assert.True(t, d2 <= 9)
		assert.Equal(t, value, int(d0)*100+int(d1)*10+int(d2))
	}
}

func TestRegisterBlockStoreLoad(t *testing.T) {
	c := newConsole(t, 0xF355, 0xF365)
	for r := uint8(0); r < 6; r++ {
		c.v[r] = r * 11
	}
	c.i = 0x400
	c.memory[0x404] = 0xEE // just past the stored block, must survive

	_, err := c.Step() // LDIR V3: stores V0..V3
	assert.NoError(t, err)
	for r := 0; r <= 3; r++ {
		assert.Equal(t, uint8(r*11), c.memory[0x400+r])
	}
	assert.Equal(t, byte(0xEE), c.memory[0x404])

	for r := range c.v {
		c.v[r] = 0
	}
	_, err = c.Step() // LDIM V3: loads V0..V3
	assert.NoError(t, err)
	for r := 0; r <= 3; r++ {
		assert.Equal(t, uint8(r*11), c.v[r])
	}
	assert.Equal(t, uint8(0), c.v[4])
}

func TestFontGlyphAddress(t *testing.T) {
	c := newConsole(t, 0xF029)
	c.v[0] = 0xA

	_, err := c.Step()
	assert.NoError(t, err)
	assert.Equal(t, uint16(0xA*4), c.i)
}

func TestTimerInstructions(t *testing.T) {
	// LDDT V0; CPDT V1; LDST V2
	c := newConsole(t, 0xF015, 0xF107, 0xF218)
	c.v[0] = 60
	c.v[2] = 30

	_, err := c.Step()
	assert.NoError(t, err)
	assert.Equal(t, uint8(60), c.dt)

	// The read happens after this step's decrement.
	_, err = c.Step()
	assert.NoError(t, err)
	assert.Equal(t, uint8(59), c.v[1])

	_, err = c.Step()
	assert.NoError(t, err)
	assert.Equal(t, uint8(30), c.st)
	assert.Equal(t, uint8(30), c.SoundTimer())
}

func TestAddI(t *testing.T) {
	c := newConsole(t, 0xF01E)
	c.i = 0x100
	c.v[0] = 0x20

	_, err := c.Step()
	assert.NoError(t, err)
	assert.Equal(t, uint16(0x120), c.i)
}

func TestDrawReportsPixelsAndCollision(t *testing.T) {
	// LDI #0 points at the font glyph for 0; draw it twice at (0,0).
	c := newConsole(t, 0xA000, 0xD005, 0xD005, 0x00E0)

	_, err := c.Step()
	assert.NoError(t, err)

	sig, err := c.Step()
	assert.NoError(t, err)
	assert.Equal(t, SignalDraw, sig.Kind)
	assert.NotEmpty(t, sig.Pixels)
	assert.Equal(t, uint8(0), c.v[flagRegister])

	sig, err = c.Step()
	assert.NoError(t, err)
	assert.Equal(t, SignalDraw, sig.Kind)
	assert.Empty(t, sig.Pixels) // XORed back off
	assert.Equal(t, uint8(1), c.v[flagRegister])

	sig, err = c.Step() // CLS
	assert.NoError(t, err)
	assert.Equal(t, SignalDraw, sig.Kind)
	assert.Empty(t, sig.Pixels)
}

func TestDrawOffGridLeavesFlag(t *testing.T) {
	c := newConsole(t, 0xA000, 0xD015)
	c.v[0] = 64 // off grid
	c.v[1] = 0
	c.v[flagRegister] = 1

	_, err := c.Step()
	assert.NoError(t, err)
	sig, err := c.Step()
	assert.NoError(t, err)
	assert.Equal(t, SignalDraw, sig.Kind)
	assert.Empty(t, sig.Pixels)
	assert.Equal(t, uint8(1), c.v[flagRegister]) // untouched
}
