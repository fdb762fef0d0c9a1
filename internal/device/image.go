// Package device reads raw disk images as a stream of sectors.
package device

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/deploymenttheory/go-carver/internal/interfaces"
	"github.com/deploymenttheory/go-carver/internal/types"
)

// DefaultReadChunkSectors is the number of sectors read per call when no chunk size is given
const DefaultReadChunkSectors = 64

// ErrOutOfRange is returned when a requested extent lies outside the image
var ErrOutOfRange = errors.New("extent outside image")

// ImageConfig holds the settings used to open an image
type ImageConfig struct {
	SectorSize       int
	StartingOffset   int64
	DiskIndex        int32
	ReadChunkSectors int
}

// ImageDevice provides sector access to a raw disk image
type ImageDevice struct {
	file       *os.File
	path       string
	size       int64
	sectorSize int
	offset     int64
	diskIndex  int32
	chunk      int
}

var _ interfaces.SectorSource = (*ImageDevice)(nil)

// OpenImage opens a raw image file for carving
func OpenImage(path string, config ImageConfig) (*ImageDevice, error) {
	if config.SectorSize < 0 {
		return nil, fmt.Errorf("invalid sector size %d", config.SectorSize)
	}
	if config.StartingOffset < 0 {
		return nil, fmt.Errorf("invalid starting offset %d", config.StartingOffset)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image file: %w", err)
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat image file: %w", err)
	}
	if stat.IsDir() {
		file.Close()
		return nil, fmt.Errorf("image path is a directory: %s", path)
	}
	if config.StartingOffset > stat.Size() {
		file.Close()
		return nil, fmt.Errorf("starting offset %d beyond image size %d", config.StartingOffset, stat.Size())
	}

	sectorSize := config.SectorSize
	if sectorSize == 0 {
		sectorSize = types.DefaultSectorSize
	}
	chunk := config.ReadChunkSectors
	if chunk <= 0 {
		chunk = DefaultReadChunkSectors
	}

	return &ImageDevice{
		file:       file,
		path:       path,
		size:       stat.Size(),
		sectorSize: sectorSize,
		offset:     config.StartingOffset,
		diskIndex:  config.DiskIndex,
		chunk:      chunk,
	}, nil
}

// Path returns the image path
func (d *ImageDevice) Path() string {
	return d.path
}

// Size returns the number of bytes from the starting offset to the end of the image
func (d *ImageDevice) Size() int64 {
	return d.size - d.offset
}

// SectorSize returns the bytes per sector
func (d *ImageDevice) SectorSize() int {
	return d.sectorSize
}

// DeviceContext describes the image to a carving session
func (d *ImageDevice) DeviceContext() (types.DeviceContext, error) {
	if d.file == nil {
		return types.DeviceContext{}, os.ErrClosed
	}
	return types.DeviceContext{
		DiskIndex:      d.diskIndex,
		BytesPerSector: int32(d.sectorSize),
		StartingOffset: d.offset,
		Size:           d.Size(),
	}, nil
}

// ReadAt implements io.ReaderAt over the whole image
func (d *ImageDevice) ReadAt(p []byte, off int64) (int, error) {
	return d.file.ReadAt(p, off)
}

// Stream reads the image from the starting offset and hands every sector to
// the writer with its absolute offset. A trailing partial sector is zero
// padded. Progress is reported after each chunk.
func (d *ImageDevice) Stream(ctx context.Context, writer interfaces.SectorWriter, progress func(done, total int64)) error {
	if d.file == nil {
		return os.ErrClosed
	}
	adviseSequential(d.file)

	total := d.Size()
	buf := make([]byte, d.sectorSize*d.chunk)
	offset := d.offset

	for offset < d.size {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := d.file.ReadAt(buf, offset)
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("failed to read image at offset %d: %w", offset, err)
		}
		if n == 0 {
			break
		}

		// zero the tail so a partial last sector is padded
		if rem := n % d.sectorSize; rem != 0 {
			end := n + d.sectorSize - rem
			clear(buf[n:end])
			n = end
		}

		for pos := 0; pos < n; pos += d.sectorSize {
			writer.WriteBuffer(buf[pos:pos+d.sectorSize], offset+int64(pos))
		}
		offset += int64(n)

		if progress != nil {
			done := offset - d.offset
			if done > total {
				done = total
			}
			progress(done, total)
		}
	}
	return nil
}

// ExtentReader returns a reader over a carved extent. The returned reader is
// clamped to the image end.
func (d *ImageDevice) ExtentReader(extent *types.CarvedExtent) (*io.SectionReader, error) {
	if d.file == nil {
		return nil, os.ErrClosed
	}
	start := int64(extent.StartBlock()) * int64(d.sectorSize)
	if start < 0 || start >= d.size {
		return nil, fmt.Errorf("%w: block %d", ErrOutOfRange, extent.StartBlock())
	}
	length := int64(extent.Size)
	if start+length > d.size {
		length = d.size - start
	}
	return io.NewSectionReader(d.file, start, length), nil
}

// Close closes the image file
func (d *ImageDevice) Close() error {
	if d.file != nil {
		err := d.file.Close()
		d.file = nil
		return err
	}
	return nil
}
