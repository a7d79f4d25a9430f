//go:build !portaudio

// ABOUTME: PortAudio stub when library not available
// ABOUTME: Provides compile-time placeholder when PortAudio not installed
package backend

import "fmt"

func newPortAudio(Options) (Backend, error) {
	return nil, fmt.Errorf("PortAudio support not enabled (build with -tags portaudio)")
}
