// Package bx is a tiny little-endian byte-packing helper shared by the page,
// directory, and B+ tree entry codecs.
package bx

import "encoding/binary"

var le = binary.LittleEndian

// --- read ---

func U16(b []byte) uint16 { return le.Uint16(b) }
func U32(b []byte) uint32 { return le.Uint32(b) }
func U64(b []byte) uint64 { return le.Uint64(b) }
func I32(b []byte) int32  { return int32(U32(b)) }

// --- write ---

func PutU16(b []byte, v uint16) { le.PutUint16(b, v) }
func PutU32(b []byte, v uint32) { le.PutUint32(b, v) }
func PutU64(b []byte, v uint64) { le.PutUint64(b, v) }
func PutI32(b []byte, v int32)  { PutU32(b, uint32(v)) }

// --- at offset ---

func U16At(b []byte, off int) uint16       { return U16(b[off:]) }
func U32At(b []byte, off int) uint32       { return U32(b[off:]) }
func U64At(b []byte, off int) uint64       { return U64(b[off:]) }
func I32At(b []byte, off int) int32        { return I32(b[off:]) }
func PutU16At(b []byte, off int, v uint16) { PutU16(b[off:], v) }
func PutU32At(b []byte, off int, v uint32) { PutU32(b[off:], v) }
func PutU64At(b []byte, off int, v uint64) { PutU64(b[off:], v) }
func PutI32At(b []byte, off int, v int32)  { PutI32(b[off:], v) }
