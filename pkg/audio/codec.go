// ABOUTME: Sample codec between normalized float samples and wire integers
// ABOUTME: Packs 8/16/24-bit signed PCM and raw 32-bit float, little-endian
package audio

import (
	"encoding/binary"
	"math"
)

const (
	scale8  = 128.0
	scale16 = 32768.0
	scale24 = 8388608.0
)

// EncodeSample packs sample into dst using the wire width res.
// dst must hold at least res.BytesPerSample() bytes.
// Scaled values are truncated toward zero and clamped to the width's range.
func EncodeSample(dst []byte, sample float32, res BitResolution) {
	switch res {
	case Bit8:
		dst[0] = byte(int8(quantize(sample, scale8, math.MinInt8, math.MaxInt8)))
	case Bit16:
		binary.LittleEndian.PutUint16(dst, uint16(int16(quantize(sample, scale16, math.MinInt16, math.MaxInt16))))
	case Bit24:
		b := SampleTo24Bit(quantize(sample, scale24, Min24Bit, Max24Bit))
		copy(dst[:3], b[:])
	case Bit32:
		binary.LittleEndian.PutUint32(dst, math.Float32bits(sample))
	}
}

// DecodeSample unpacks one wire sample of width res from src
func DecodeSample(src []byte, res BitResolution) float32 {
	switch res {
	case Bit8:
		return float32(int8(src[0])) / scale8
	case Bit16:
		return float32(int16(binary.LittleEndian.Uint16(src))) / scale16
	case Bit24:
		return float32(SampleFrom24Bit([3]byte{src[0], src[1], src[2]})) / scale24
	case Bit32:
		return math.Float32frombits(binary.LittleEndian.Uint32(src))
	}
	return 0
}

func quantize(sample float32, scale float64, lo, hi int32) int32 {
	v := float64(sample) * scale
	if math.IsNaN(v) {
		return 0
	}
	v = math.Trunc(v)
	if v > float64(hi) {
		return hi
	}
	if v < float64(lo) {
		return lo
	}
	return int32(v)
}

// SampleTo24Bit converts int32 to packed 24-bit bytes (little-endian)
func SampleTo24Bit(sample int32) [3]byte {
	return [3]byte{
		byte(sample),
		byte(sample >> 8),
		byte(sample >> 16),
	}
}

// SampleFrom24Bit converts packed 24-bit bytes to a sign-extended int32
func SampleFrom24Bit(b [3]byte) int32 {
	val := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
	if val&0x800000 != 0 {
		val |= ^0xFFFFFF
	}
	return val
}

// QuantizationStep returns the decode resolution of one least significant bit
func QuantizationStep(res BitResolution) float64 {
	switch res {
	case Bit8:
		return 1 / scale8
	case Bit16:
		return 1 / scale16
	case Bit24:
		return 1 / scale24
	}
	return 0
}
