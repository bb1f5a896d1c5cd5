package vectorindex

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/starford/learnmate/internal/checksum"
)

// ErrCorrupt is returned when the vector file does not match its metadata.
var ErrCorrupt = errors.New("vectorindex: index files are corrupt")

const (
	vecMagic      = "LMVI"
	formatVersion = 1
	vecHeaderSize = 16 // magic + version + dim + count
)

// metaFile is the JSON metadata blob stored next to the vector file.
type metaFile struct {
	Version       int     `json:"version"`
	Dimension     int     `json:"dimension"`
	Count         int     `json:"count"`
	VectorsSHA256 string  `json:"vectors_sha256"`
	Entries       []Entry `json:"entries"`
}

// encode serialises ix into the vector file and the metadata blob.
func encode(ix *Index) (vec, meta []byte, sum string, err error) {
	var buf bytes.Buffer
	buf.Grow(vecHeaderSize + 4*ix.Dim*ix.Len())
	buf.WriteString(vecMagic)
	hdr := make([]byte, 12)
	binary.LittleEndian.PutUint32(hdr[0:], formatVersion)
	binary.LittleEndian.PutUint32(hdr[4:], uint32(ix.Dim))
	binary.LittleEndian.PutUint32(hdr[8:], uint32(ix.Len()))
	buf.Write(hdr)

	f := make([]byte, 4)
	for _, v := range ix.Vectors {
		for _, x := range v {
			binary.LittleEndian.PutUint32(f, math.Float32bits(x))
			buf.Write(f)
		}
	}
	vec = buf.Bytes()
	sum = checksum.Sum(vec)

	entries := ix.Entries
	if entries == nil {
		entries = []Entry{}
	}
	meta, err = json.Marshal(metaFile{
		Version:       formatVersion,
		Dimension:     ix.Dim,
		Count:         ix.Len(),
		VectorsSHA256: sum,
		Entries:       entries,
	})
	if err != nil {
		return nil, nil, "", fmt.Errorf("vectorindex: encode metadata: %w", err)
	}
	return vec, meta, sum, nil
}

// decode rebuilds an index and verifies the vector file against the checksum
// recorded in the metadata.
func decode(vec, meta []byte) (*Index, string, error) {
	var m metaFile
	if err := json.Unmarshal(meta, &m); err != nil {
		return nil, "", fmt.Errorf("%w: metadata: %v", ErrCorrupt, err)
	}
	sum := checksum.Sum(vec)
	if sum != m.VectorsSHA256 {
		return nil, "", fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}
	if len(vec) < vecHeaderSize || string(vec[:4]) != vecMagic {
		return nil, "", fmt.Errorf("%w: bad header", ErrCorrupt)
	}
	version := binary.LittleEndian.Uint32(vec[4:])
	dim := int(binary.LittleEndian.Uint32(vec[8:]))
	count := int(binary.LittleEndian.Uint32(vec[12:]))
	if version != formatVersion {
		return nil, "", fmt.Errorf("%w: unsupported version %d", ErrCorrupt, version)
	}
	if dim != m.Dimension || count != m.Count || count != len(m.Entries) {
		return nil, "", fmt.Errorf("%w: header disagrees with metadata", ErrCorrupt)
	}
	if len(vec) != vecHeaderSize+4*dim*count {
		return nil, "", fmt.Errorf("%w: truncated vectors", ErrCorrupt)
	}

	ix := &Index{Dim: dim, Entries: m.Entries, Vectors: make([][]float32, count)}
	off := vecHeaderSize
	for i := 0; i < count; i++ {
		v := make([]float32, dim)
		for j := range v {
			v[j] = math.Float32frombits(binary.LittleEndian.Uint32(vec[off:]))
			off += 4
		}
		ix.Vectors[i] = v
	}
	for i := range ix.Entries {
		if ix.Entries[i].Metadata == nil {
			ix.Entries[i].Metadata = map[string]any{}
		}
	}
	return ix, sum, nil
}
