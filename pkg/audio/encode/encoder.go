// ABOUTME: Encoder interface definition
// ABOUTME: Common interface for slot encoders
package encode

// Encoder packs one block of planar float32 channel buffers into a Slot
type Encoder interface {
	// Encode writes the packed block into dst, which must be exactly one Slot long
	Encode(dst []byte, channels [][]float32) error

	// Close releases encoder resources
	Close() error
}
