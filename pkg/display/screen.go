// Package display implements the 64x32 monochrome screen shared by the
// interpreter and its frontends.
package display

import "strings"

const (
	Width  = 64
	Height = 32

	spriteWidth = 8
	totalPixels = Width * Height
)

// Pixel is a lit cell reported by Pixels.
type Pixel struct {
	X uint8
	Y uint8
}

// Sprite is up to 15 rows of 8 horizontal pixels, one byte per row,
// anchored at (X, Y).
type Sprite struct {
	X    uint8
	Y    uint8
	Data []byte
}

// Screen is a one-bit framebuffer, row-major. Cells are only ever mutated
// through Clear and Draw.
type Screen struct {
	pixels [totalPixels]uint8
}

// Clear turns every cell off.
func (s *Screen) Clear() {
	for i := range s.pixels {
		s.pixels[i] = 0
	}
}

// Draw XOR-blits a sprite onto the screen. It reports whether the sprite was
// drawn at all and whether any lit cell was turned off (the collision flag).
//
// A sprite anchored outside the grid is rejected with no effect. Columns past
// the right edge are truncated, and rows running past the bottom of the grid
// abandon the rest of the sprite instead of wrapping to the top.
func (s *Screen) Draw(sprite Sprite) (collision uint8, drawn bool) {
	if sprite.X >= Width || sprite.Y >= Height {
		return 0, false
	}

	width := uint8(spriteWidth)
	if sprite.X > Width-spriteWidth {
		width = Width - sprite.X
	}

	for row, bits := range sprite.Data {
		for col := uint8(0); col < width; col++ {
			if bits&(0x80>>col) == 0 {
				continue
			}
			index := cellIndex(sprite.X+col, sprite.Y, uint8(row))
			if index >= totalPixels {
				return collision, true
			}
			if s.pixels[index] == 1 {
				collision = 1
			}
			s.pixels[index] ^= 1
		}
	}

	return collision, true
}

func cellIndex(x, baseY, row uint8) int {
	return (int(baseY)+int(row))*Width + int(x)
}

// Pixels returns a fresh snapshot of the lit cells, in row-major order.
func (s *Screen) Pixels() []Pixel {
	var lit []Pixel
	for i, v := range s.pixels {
		if v == 0 {
			continue
		}
		lit = append(lit, Pixel{X: uint8(i % Width), Y: uint8(i / Width)})
	}
	return lit
}

// String renders the screen for a terminal, one glyph per cell.
func (s *Screen) String() string {
	var b strings.Builder
	b.Grow(totalPixels*3 + Height)
	for i, v := range s.pixels {
		if i > 0 && i%Width == 0 {
			b.WriteByte('\n')
		}
		if v == 0 {
			b.WriteRune('·')
		} else {
			b.WriteRune('█')
		}
	}
	return b.String()
}
