// ABOUTME: Adapts an interleaved Source to planar per-block channel buffers
// ABOUTME: Maps the source's channel count onto the session's channel count
package source

// BlockReader pulls exactly one block at a time from a Source
type BlockReader struct {
	src         Source
	srcChannels int
	scratch     []float32
}

// NewBlockReader creates a reader that fills frames frames per call
func NewBlockReader(src Source, frames int) *BlockReader {
	return &BlockReader{
		src:         src,
		srcChannels: src.Channels(),
		scratch:     make([]float32, frames*src.Channels()),
	}
}

// Fill de-interleaves one block into channels. A mono source feeds every
// channel; otherwise channel c takes source channel c and extra channels
// are silent. Short reads are padded with silence.
func (b *BlockReader) Fill(channels [][]float32) error {
	n, err := b.src.Read(b.scratch)
	clear(b.scratch[n:])

	for ch, out := range channels {
		srcCh := ch
		if b.srcChannels == 1 {
			srcCh = 0
		}
		if srcCh >= b.srcChannels {
			clear(out)
			continue
		}
		for i := range out {
			idx := i*b.srcChannels + srcCh
			if idx < len(b.scratch) {
				out[i] = b.scratch[idx]
			} else {
				out[i] = 0
			}
		}
	}
	return err
}

// Source returns the wrapped source
func (b *BlockReader) Source() Source {
	return b.src
}
