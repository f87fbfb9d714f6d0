// Package compress registers a zstd compressor for gRPC message payloads.
package compress

import (
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
	"google.golang.org/grpc/encoding"
)

// Name is the grpc-encoding name passed to grpc.UseCompressor.
const Name = "zstd"

func init() {
	encoding.RegisterCompressor(newZstdCompressor())
}

// zstdCompressor pools single-threaded encoders and decoders; record pages
// are small enough that per-message concurrency is not worth its goroutines.
type zstdCompressor struct {
	encoders sync.Pool
	decoders sync.Pool
}

func newZstdCompressor() *zstdCompressor {
	c := &zstdCompressor{}
	c.encoders.New = func() any {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1), zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return err
		}
		return enc
	}
	c.decoders.New = func() any {
		dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return err
		}
		return dec
	}
	return c
}

func (c *zstdCompressor) Name() string { return Name }

func (c *zstdCompressor) Compress(w io.Writer) (io.WriteCloser, error) {
	switch enc := c.encoders.Get().(type) {
	case *zstd.Encoder:
		enc.Reset(w)
		return &zstdWriter{Encoder: enc, pool: &c.encoders}, nil
	case error:
		return nil, enc
	}
	panic("unreachable")
}

func (c *zstdCompressor) Decompress(r io.Reader) (io.Reader, error) {
	switch dec := c.decoders.Get().(type) {
	case *zstd.Decoder:
		if err := dec.Reset(r); err != nil {
			c.decoders.Put(dec)
			return nil, err
		}
		return &zstdReader{dec: dec, pool: &c.decoders}, nil
	case error:
		return nil, dec
	}
	panic("unreachable")
}

type zstdWriter struct {
	*zstd.Encoder
	pool *sync.Pool
}

func (w *zstdWriter) Close() error {
	err := w.Encoder.Close()
	w.pool.Put(w.Encoder)
	return err
}

// zstdReader returns its decoder to the pool once the stream is drained.
type zstdReader struct {
	dec  *zstd.Decoder
	pool *sync.Pool
}

func (r *zstdReader) Read(p []byte) (int, error) {
	if r.dec == nil {
		return 0, io.EOF
	}
	n, err := r.dec.Read(p)
	if err == io.EOF {
		r.pool.Put(r.dec)
		r.dec = nil
	}
	return n, err
}
