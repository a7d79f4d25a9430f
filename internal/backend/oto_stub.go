//go:build !oto

// ABOUTME: Oto stub when playback support is not compiled in
// ABOUTME: oto needs cgo and ALSA headers on Linux
package backend

import "fmt"

func newOto(Options) (Backend, error) {
	return nil, fmt.Errorf("oto support not enabled (build with -tags oto)")
}
