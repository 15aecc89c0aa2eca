package chunkcache

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/chunkcache/blobstore"
)

// Compression selects the codec used for checkpoint chunk payloads.
type Compression string

const (
	// CompressionZstd is the default checkpoint codec.
	CompressionZstd Compression = "zstd"
	// CompressionLZ4 trades ratio for speed.
	CompressionLZ4 Compression = "lz4"
	// CompressionNone stores raw payloads.
	CompressionNone Compression = "none"
)

const manifestVersion = 1

type checkpointOptions struct {
	compression Compression
	concurrency int
}

// CheckpointOption configures Checkpoint behavior.
type CheckpointOption func(*checkpointOptions)

// WithCheckpointCompression selects the chunk payload codec.
// Defaults to CompressionZstd.
func WithCheckpointCompression(c Compression) CheckpointOption {
	return func(o *checkpointOptions) {
		o.compression = c
	}
}

// WithCheckpointConcurrency bounds the number of chunks transferred to or
// from the blob store in parallel. Defaults to 4.
func WithCheckpointConcurrency(n int) CheckpointOption {
	return func(o *checkpointOptions) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// manifest describes a checkpoint. It is written last so its presence marks
// a complete checkpoint.
type manifest struct {
	Version     int    `json:"version"`
	NumRows     int    `json:"num_rows"`
	Dim         int    `json:"dim"`
	ChunkSize   int    `json:"chunk_size"`
	NumChunks   int    `json:"num_chunks"`
	Compression string `json:"compression"`
}

func manifestName(name string) string {
	return name + "/MANIFEST.json"
}

func chunkBlobName(name string, chunk int) string {
	return fmt.Sprintf("%s/chunk-%06d", name, chunk)
}

// Checkpoint flushes the fast tier and persists the host weight matrix to
// the blob store under the given name, one blob per chunk plus a manifest.
// The manifest is written last and acts as the commit point.
func (m *Manager) Checkpoint(ctx context.Context, store blobstore.Store, name string, optFns ...CheckpointOption) error {
	o := checkpointOptions{
		compression: CompressionZstd,
		concurrency: 4,
	}
	for _, fn := range optFns {
		fn(&o)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	// Write-back first so the host tier is authoritative.
	if _, err := m.flushLocked(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)

	for chunk := 0; chunk < m.table.NumChunks(); chunk++ {
		g.Go(func() error {
			payload := floatsToBytes(m.host.Chunk(uint32(chunk)))
			data, err := compressPayload(payload, o.compression)
			if err != nil {
				return err
			}
			return store.Put(gctx, chunkBlobName(name, chunk), data)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	mf := manifest{
		Version:     manifestVersion,
		NumRows:     m.numRows,
		Dim:         m.dim,
		ChunkSize:   m.chunkSize,
		NumChunks:   m.table.NumChunks(),
		Compression: string(o.compression),
	}
	data, err := json.Marshal(mf)
	if err != nil {
		return err
	}
	if err := store.Put(ctx, manifestName(name), data); err != nil {
		return err
	}

	m.opts.logger.Info("checkpoint written",
		"name", name,
		"chunks", mf.NumChunks,
		"compression", mf.Compression,
	)
	return nil
}

// Restore loads a checkpoint into the host store. The checkpoint geometry
// must match the manager. Residency is dropped without write-back: whatever
// the fast tier held belongs to the state being replaced.
//
// WithCheckpointConcurrency bounds the chunk reads; the payload codec is
// taken from the manifest, so WithCheckpointCompression has no effect here.
func (m *Manager) Restore(ctx context.Context, store blobstore.Store, name string, optFns ...CheckpointOption) error {
	o := checkpointOptions{
		concurrency: 4,
	}
	for _, fn := range optFns {
		fn(&o)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	data, err := blobstore.ReadAll(ctx, store, manifestName(name))
	if err != nil {
		return err
	}

	var mf manifest
	if err := json.Unmarshal(data, &mf); err != nil {
		return fmt.Errorf("decode manifest: %w", err)
	}
	if mf.Version != manifestVersion {
		return fmt.Errorf("unsupported checkpoint version %d", mf.Version)
	}
	if err := m.checkGeometry(mf); err != nil {
		return err
	}

	// Drop residency; the fast-tier copies describe the old weights.
	for _, chunk := range m.slots.ResidentSet().ToArray() {
		slot, _ := m.slots.SlotOf(chunk)
		m.slots.Release(slot)
		m.opts.policy.Evicted(chunk)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)

	for chunk := 0; chunk < m.table.NumChunks(); chunk++ {
		g.Go(func() error {
			data, err := blobstore.ReadAll(gctx, store, chunkBlobName(name, chunk))
			if err != nil {
				return err
			}
			payload, err := decompressPayload(data, Compression(mf.Compression))
			if err != nil {
				return err
			}
			if len(payload) != m.chunkElems*elemSize {
				return fmt.Errorf("chunk %d payload is %d bytes, expected %d", chunk, len(payload), m.chunkElems*elemSize)
			}
			bytesToFloats(payload, m.host.Chunk(uint32(chunk)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	m.opts.logger.Info("checkpoint restored", "name", name, "chunks", mf.NumChunks)
	return nil
}

func (m *Manager) checkGeometry(mf manifest) error {
	switch {
	case mf.NumRows != m.numRows:
		return &ErrGeometryMismatch{Field: "num_rows", Expected: m.numRows, Actual: mf.NumRows}
	case mf.Dim != m.dim:
		return &ErrGeometryMismatch{Field: "dim", Expected: m.dim, Actual: mf.Dim}
	case mf.ChunkSize != m.chunkSize:
		return &ErrGeometryMismatch{Field: "chunk_size", Expected: m.chunkSize, Actual: mf.ChunkSize}
	case mf.NumChunks != m.table.NumChunks():
		return &ErrGeometryMismatch{Field: "num_chunks", Expected: m.table.NumChunks(), Actual: mf.NumChunks}
	}
	return nil
}

func compressPayload(payload []byte, c Compression) ([]byte, error) {
	switch c {
	case CompressionZstd:
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, err
		}
		defer enc.Close()
		return enc.EncodeAll(payload, nil), nil
	case CompressionLZ4:
		var buf bytes.Buffer
		w := lz4.NewWriter(&buf)
		if _, err := w.Write(payload); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case CompressionNone:
		return payload, nil
	default:
		return nil, fmt.Errorf("unknown compression %q", c)
	}
}

func decompressPayload(data []byte, c Compression) ([]byte, error) {
	switch c {
	case CompressionZstd:
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		return dec.DecodeAll(data, nil)
	case CompressionLZ4:
		return io.ReadAll(lz4.NewReader(bytes.NewReader(data)))
	case CompressionNone:
		return data, nil
	default:
		return nil, fmt.Errorf("unknown compression %q", c)
	}
}

func floatsToBytes(src []float32) []byte {
	out := make([]byte, len(src)*elemSize)
	for i, v := range src {
		binary.LittleEndian.PutUint32(out[i*elemSize:], math.Float32bits(v))
	}
	return out
}

func bytesToFloats(src []byte, dst []float32) {
	for i := range dst {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[i*elemSize:]))
	}
}
