package fparc

// PayloadKey is the fixed key XORed over every extracted payload byte.
var PayloadKey = [16]byte{
	26, 84, 94, 40, 155, 43, 205, 239,
	226, 164, 86, 120, 144, 59, 207, 175,
}

// DefaultTextKey is the name key observed for the known archive family.
// Other families ship their own passphrase.
const DefaultTextKey = "hasdfeg@#$%9892^&^"

const (
	// PositionAdjust is subtracted from every stored entry position.
	PositionAdjust = 356

	// LengthDivisor divides every stored entry length. The stored field
	// holds twice the payload size.
	LengthDivisor = 2

	// StartPositionSize is the size of the trailing start position field.
	StartPositionSize = 8
)
