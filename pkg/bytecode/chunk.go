package bytecode

import (
	"encoding/binary"
	"fmt"
)

// ChunkVersion is the current container format version.
// Increment when making incompatible changes to the format.
const ChunkVersion uint16 = 1

// Magic bytes for chunk files: "DXUC" (dex unit code)
var ChunkMagic = []byte{'D', 'X', 'U', 'C'}

// ChunkFlags contains flags describing optional chunk sections.
type ChunkFlags uint16

const (
	// ChunkFlagPositions indicates a position table is present.
	ChunkFlagPositions ChunkFlags = 1 << 0

	// ChunkFlagExpanded indicates the unit needed reserved registers.
	ChunkFlagExpanded ChunkFlags = 1 << 1
)

// Position maps a code address to a source line.
type Position struct {
	Address uint32 `cbor:"1,keyasint"`
	Line    uint32 `cbor:"2,keyasint"`
}

// Chunk is the finished code of one compiled unit: the code units plus
// what a downstream writer needs to frame them.
type Chunk struct {
	Version uint16     `cbor:"1,keyasint"`
	Flags   ChunkFlags `cbor:"2,keyasint"`

	// RegisterCount is the frame size including reserved registers.
	RegisterCount uint16 `cbor:"3,keyasint"`
	// ReservedCount is how many low registers were reserved for expansion.
	ReservedCount uint16 `cbor:"4,keyasint"`

	Code      []uint16   `cbor:"5,keyasint"`
	Positions []Position `cbor:"6,keyasint,omitempty"`
}

// NewChunk creates an empty chunk with the current version.
func NewChunk() *Chunk {
	return &Chunk{
		Version: ChunkVersion,
		Code:    make([]uint16, 0, 64),
	}
}

// CodeLen returns the code length in code units.
func (c *Chunk) CodeLen() int {
	return len(c.Code)
}

// AddPosition records that the instruction at address starts source line.
func (c *Chunk) AddPosition(address uint32, line uint32) {
	c.Flags |= ChunkFlagPositions
	c.Positions = append(c.Positions, Position{Address: address, Line: line})
}

// LineAt returns the source line for a code address, or 0 if unknown.
func (c *Chunk) LineAt(address uint32) uint32 {
	for i := len(c.Positions) - 1; i >= 0; i-- {
		if c.Positions[i].Address <= address {
			return c.Positions[i].Line
		}
	}
	return 0
}

// Serialize encodes the chunk for storage or transport.
// Format (big-endian header, little-endian code units):
//
//	[magic:4] [version:2] [flags:2]
//	[register_count:2] [reserved_count:2]
//	[code_len:4] [code:2*code_len]
//	[position_count:4] [positions:8*position_count] (if ChunkFlagPositions)
func (c *Chunk) Serialize() ([]byte, error) {
	if len(c.Code) > 0xFFFFFFFF/2 {
		return nil, fmt.Errorf("code too long: %d units", len(c.Code))
	}

	buf := make([]byte, 0, 16+2*len(c.Code)+8*len(c.Positions)+4)

	buf = append(buf, ChunkMagic...)
	buf = binary.BigEndian.AppendUint16(buf, c.Version)
	buf = binary.BigEndian.AppendUint16(buf, uint16(c.Flags))
	buf = binary.BigEndian.AppendUint16(buf, c.RegisterCount)
	buf = binary.BigEndian.AppendUint16(buf, c.ReservedCount)

	buf = binary.BigEndian.AppendUint32(buf, uint32(len(c.Code)))
	for _, u := range c.Code {
		buf = binary.LittleEndian.AppendUint16(buf, u)
	}

	if c.Flags&ChunkFlagPositions != 0 {
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(c.Positions)))
		for _, p := range c.Positions {
			buf = binary.BigEndian.AppendUint32(buf, p.Address)
			buf = binary.BigEndian.AppendUint32(buf, p.Line)
		}
	}

	return buf, nil
}

// Deserialize decodes a chunk from bytes.
func Deserialize(data []byte) (*Chunk, error) {
	if len(data) < 16 {
		return nil, fmt.Errorf("chunk too short: need at least 16 bytes, got %d", len(data))
	}

	if string(data[0:4]) != string(ChunkMagic) {
		return nil, fmt.Errorf("invalid chunk magic: expected %q, got %q", ChunkMagic, data[0:4])
	}

	c := &Chunk{
		Version:       binary.BigEndian.Uint16(data[4:6]),
		Flags:         ChunkFlags(binary.BigEndian.Uint16(data[6:8])),
		RegisterCount: binary.BigEndian.Uint16(data[8:10]),
		ReservedCount: binary.BigEndian.Uint16(data[10:12]),
	}

	if c.Version > ChunkVersion {
		return nil, fmt.Errorf("chunk version %d is newer than supported version %d", c.Version, ChunkVersion)
	}

	pos := 12
	codeLen := int(binary.BigEndian.Uint32(data[pos:]))
	pos += 4
	if codeLen < 0 || pos+2*codeLen > len(data) {
		return nil, fmt.Errorf("unexpected end of chunk reading code section: need %d units at pos %d", codeLen, pos)
	}
	c.Code = make([]uint16, codeLen)
	for i := range c.Code {
		c.Code[i] = binary.LittleEndian.Uint16(data[pos:])
		pos += 2
	}

	if c.Flags&ChunkFlagPositions != 0 {
		if pos+4 > len(data) {
			return nil, fmt.Errorf("unexpected end of chunk reading position count")
		}
		n := int(binary.BigEndian.Uint32(data[pos:]))
		pos += 4
		if n < 0 || pos+8*n > len(data) {
			return nil, fmt.Errorf("unexpected end of chunk reading %d positions", n)
		}
		c.Positions = make([]Position, n)
		for i := range c.Positions {
			c.Positions[i].Address = binary.BigEndian.Uint32(data[pos:])
			c.Positions[i].Line = binary.BigEndian.Uint32(data[pos+4:])
			pos += 8
		}
	}

	if pos != len(data) {
		return nil, fmt.Errorf("trailing data after chunk: %d bytes", len(data)-pos)
	}

	return c, nil
}
