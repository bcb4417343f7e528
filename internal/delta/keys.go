package delta

import "fmt"

// RegionID identifies an independently loaded region of the world.
type RegionID string

// PackedPos stores a cell position as a single int64: 26 bits for x,
// 12 bits for y and 26 bits for z, matching the live store's packing.
type PackedPos int64

const (
	posXBits = 26
	posYBits = 12
	posZBits = 26

	posXMask = (1 << posXBits) - 1
	posYMask = (1 << posYBits) - 1
	posZMask = (1 << posZBits) - 1
)

// PackPos packs cell coordinates into a PackedPos. Coordinates outside the
// representable range wrap, same as the packing on the capture side.
func PackPos(x, y, z int) PackedPos {
	packed := (int64(x) & posXMask) << (posYBits + posZBits)
	packed |= (int64(z) & posZMask) << posYBits
	packed |= int64(y) & posYMask
	return PackedPos(packed)
}

// Unpack returns the cell coordinates encoded in the position.
func (p PackedPos) Unpack() (x, y, z int) {
	x = int(signExtend(int64(p)>>(posYBits+posZBits)&posXMask, posXBits))
	z = int(signExtend(int64(p)>>posYBits&posZMask, posZBits))
	y = int(signExtend(int64(p)&posYMask, posYBits))
	return x, y, z
}

func signExtend(v int64, bits uint) int64 {
	shift := 64 - bits
	return v << shift >> shift
}

// String renders the unpacked coordinates for logs and warnings.
func (p PackedPos) String() string {
	x, y, z := p.Unpack()
	return fmt.Sprintf("(%d,%d,%d)", x, y, z)
}

// CellKey addresses a single cell across regions.
type CellKey struct {
	Region RegionID  `json:"region"`
	Pos    PackedPos `json:"pos"`
}

func (k CellKey) String() string {
	return fmt.Sprintf("%s%s", k.Region, k.Pos)
}
