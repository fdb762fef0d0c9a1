package carve

import (
	"os"

	"github.com/deploymenttheory/go-carver/pkg/app"
)

// Validate validates a carve request
func (r *Request) Validate() error {
	if r.ImagePath == "" {
		return app.NewError(app.ErrCodeInvalidInput, "image path is required", nil)
	}
	info, err := os.Stat(r.ImagePath)
	if err != nil {
		return app.NewError(app.ErrCodeDeviceAccess, "cannot access image", err)
	}
	if info.IsDir() {
		return app.NewError(app.ErrCodeInvalidInput, "image path is a directory", nil)
	}

	if r.SectorSize < 0 {
		return app.NewError(app.ErrCodeInvalidInput, "sector size must not be negative", nil)
	}
	// sector sizes are powers of two
	if r.SectorSize > 0 && r.SectorSize&(r.SectorSize-1) != 0 {
		return app.NewError(app.ErrCodeInvalidInput, "sector size must be a power of two", nil)
	}
	if r.StartingOffset < 0 {
		return app.NewError(app.ErrCodeInvalidInput, "starting offset must not be negative", nil)
	}
	if r.StartingOffset > info.Size() {
		return app.NewError(app.ErrCodeInvalidInput, "starting offset is beyond the end of the image", nil)
	}
	if r.QueueCapacity < 0 {
		return app.NewError(app.ErrCodeInvalidInput, "queue capacity must not be negative", nil)
	}
	if r.ReadChunkSectors < 0 {
		return app.NewError(app.ErrCodeInvalidInput, "read chunk must not be negative", nil)
	}

	if r.Extract && r.OutputDir == "" {
		return app.NewError(app.ErrCodeInvalidInput, "output directory is required for extraction", nil)
	}

	return nil
}
