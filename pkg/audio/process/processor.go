// ABOUTME: Block processor contract and the ordered processing pipeline
// ABOUTME: Processors run in place on decoded channel buffers inside the audio callback
package process

import "strings"

// Processor transforms one block of planar channel buffers in place.
// Process runs on the real-time audio thread: it must not block, log or allocate.
type Processor interface {
	Name() string
	Process(channels [][]float32)
}

// Pipeline runs processors in registration order
type Pipeline struct {
	processors []Processor
}

// NewPipeline creates a pipeline from processors, in order
func NewPipeline(processors ...Processor) *Pipeline {
	p := &Pipeline{}
	for _, proc := range processors {
		p.Append(proc)
	}
	return p
}

// Append adds a processor at the end of the pipeline.
// Call it only during session setup, before the pipeline is handed to a bridge.
func (p *Pipeline) Append(proc Processor) {
	if proc == nil {
		return
	}
	p.processors = append(p.processors, proc)
}

// Process runs every processor over channels
func (p *Pipeline) Process(channels [][]float32) {
	if p == nil {
		return
	}
	for _, proc := range p.processors {
		proc.Process(channels)
	}
}

// Len returns the number of processors
func (p *Pipeline) Len() int {
	if p == nil {
		return 0
	}
	return len(p.processors)
}

func (p *Pipeline) String() string {
	if p.Len() == 0 {
		return "(none)"
	}
	names := make([]string, len(p.processors))
	for i, proc := range p.processors {
		names[i] = proc.Name()
	}
	return strings.Join(names, " -> ")
}
