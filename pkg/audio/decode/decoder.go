// ABOUTME: Decoder interface definition
// ABOUTME: Common interface for slot decoders
package decode

// Decoder unpacks one Slot into planar float32 channel buffers
type Decoder interface {
	// Decode fills channels from src, which must be exactly one Slot long
	Decode(src []byte, channels [][]float32) error

	// Close releases decoder resources
	Close() error
}
