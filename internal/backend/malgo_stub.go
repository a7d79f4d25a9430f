//go:build !malgo

// ABOUTME: Malgo stub when miniaudio support is not compiled in
// ABOUTME: Keeps the default build free of cgo
package backend

import "fmt"

func newMalgo(Options) (Backend, error) {
	return nil, fmt.Errorf("malgo support not enabled (build with -tags malgo)")
}
