package s800

import "golang.org/x/exp/constraints"

// BitField is a contiguous group of bits inside a data word.
// A zero Mask means the field is absent from the layout.
type BitField struct {
	Shift uint `json:"shift"`
	Mask  uint `json:"mask"`
}

func (f BitField) Present() bool {
	return f.Mask != 0
}

// Max returns the largest value the field can hold.
func (f BitField) Max() int {
	return int(f.Mask)
}

func (f BitField) positioned() uint {
	return f.Mask << f.Shift
}

func extract[T constraints.Unsigned](word T, f BitField) int {
	return int((uint(word) >> f.Shift) & f.Mask)
}

func insert[T constraints.Unsigned](word T, f BitField, value int) T {
	return word | T((uint(value)&f.Mask)<<f.Shift)
}

func CheckBit[T constraints.Unsigned](mask T, bit uint) bool {
	return (mask>>bit)&0x0001 == 1
}

// combineWords builds a wide value from little-endian ordered 16-bit words.
func combineWords[T constraints.Unsigned](words []uint16) T {
	var value T
	for i, w := range words {
		value |= T(w) << (16 * uint(i))
	}
	return value
}
