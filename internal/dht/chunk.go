// SAGE - Secure Agent Guarantee Engine
// Copyright (C) 2025 SAGE-X-project
//
// This file is part of SAGE.
//
// SAGE is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SAGE is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with SAGE. If not, see <https://www.gnu.org/licenses/>.

package dht

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/sage-x-project/dna-messenger-core/pkg/dnacrypto"
)

// chunkKey computes Sha3.hash512(base || ":chunk:" || index)[0:32], the
// per-index sub-key for a chunked logical value (spec §3 OutboxMailbox).
func chunkKey(base []byte, index int) [32]byte {
	input := make([]byte, 0, len(base)+8+4)
	input = append(input, base...)
	input = append(input, ":chunk:"...)
	input = append(input, []byte(fmt.Sprintf("%d", index))...)
	sum := dnacrypto.Hash512(input)
	var out [32]byte
	copy(out[:], sum[:32])
	return out
}

// encodeChunk builds one on-wire chunk per the spec §6 chunked value format:
// magic(4) || version(1) || total_chunks(u8) || chunk_index(u8) ||
// chunk_size(u32 LE) || chunk_data(bytes).
func encodeChunk(totalChunks, chunkIndex int, data []byte) []byte {
	buf := bytes.NewBuffer(make([]byte, 0, 4+1+1+1+4+len(data)))
	buf.Write(chunkMagic[:])
	buf.WriteByte(chunkFormatVersion)
	buf.WriteByte(byte(totalChunks))
	buf.WriteByte(byte(chunkIndex))
	var sizeField [4]byte
	binary.LittleEndian.PutUint32(sizeField[:], uint32(len(data)))
	buf.Write(sizeField[:])
	buf.Write(data)
	return buf.Bytes()
}

type decodedChunk struct {
	totalChunks int
	chunkIndex  int
	data        []byte
}

func decodeChunk(raw []byte) (decodedChunk, error) {
	const headerLen = 4 + 1 + 1 + 1 + 4
	if len(raw) < headerLen {
		return decodedChunk{}, fmt.Errorf("dht: chunk shorter than header")
	}
	if !bytes.Equal(raw[:4], chunkMagic[:]) {
		return decodedChunk{}, fmt.Errorf("dht: bad chunk magic")
	}
	version := raw[4]
	if version != chunkFormatVersion {
		return decodedChunk{}, fmt.Errorf("dht: unsupported chunk version %d", version)
	}
	total := int(raw[5])
	index := int(raw[6])
	size := binary.LittleEndian.Uint32(raw[7:11])
	data := raw[11:]
	if uint32(len(data)) < size {
		return decodedChunk{}, fmt.Errorf("dht: chunk data shorter than declared size")
	}
	return decodedChunk{totalChunks: total, chunkIndex: index, data: data[:size]}, nil
}

// splitChunks partitions blob into at most MaxChunks pieces of at most
// ChunkSize bytes each.
func splitChunks(blob []byte) ([][]byte, error) {
	if len(blob) > MaxBlob {
		return nil, ErrBlobTooLarge
	}
	if len(blob) == 0 {
		return [][]byte{{}}, nil
	}
	var chunks [][]byte
	for off := 0; off < len(blob); off += ChunkSize {
		end := off + ChunkSize
		if end > len(blob) {
			end = len(blob)
		}
		chunks = append(chunks, blob[off:end])
	}
	return chunks, nil
}
