package carve

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/deploymenttheory/go-carver/internal/config"
	"github.com/deploymenttheory/go-carver/internal/device"
	"github.com/deploymenttheory/go-carver/internal/interfaces"
	"github.com/deploymenttheory/go-carver/internal/services"
	"github.com/deploymenttheory/go-carver/internal/sink"
	"github.com/deploymenttheory/go-carver/pkg/app"
)

// Handle processes a carve request
func Handle(ctx *app.Context, req *Request) (*Response, error) {
	startTime := time.Now()

	// 1. Validate request
	if err := req.Validate(); err != nil {
		return nil, err
	}

	ctx.Logf("[CARVE] carving image: %s", req.ImagePath)
	ctx.Progress("Loading descriptors...", 0)

	// 2. Load descriptors
	store, err := config.OpenDescriptorStore(req.DescriptorsPath, config.LoadOptions{LegacyFooterPatterns: req.LegacyFooterPatterns})
	if err != nil {
		return nil, app.NewError(app.ErrCodeConfigInvalid, "failed to load carver descriptors", err)
	}
	loaded := store.Result()
	for _, skipped := range loaded.Skipped {
		ctx.Logf("[CONFIG] skipped %v", &skipped)
	}
	if loaded.Loaded() == 0 {
		return nil, app.NewError(app.ErrCodeConfigInvalid, "no usable carver descriptors", config.ErrNoDescriptorsLoaded)
	}
	ctx.Logf("[CONFIG] %d descriptors loaded, %d skipped", loaded.Loaded(), len(loaded.Skipped))

	// 3. Open the image
	image, err := device.OpenImage(req.ImagePath, device.ImageConfig{
		SectorSize:       req.SectorSize,
		StartingOffset:   req.StartingOffset,
		ReadChunkSectors: req.ReadChunkSectors,
	})
	if err != nil {
		return nil, app.NewError(app.ErrCodeDeviceAccess, "failed to open image", err)
	}
	defer image.Close()
	ctx.Logf("[DEVICE] %s: %d bytes from offset %d, %d bytes per sector",
		image.Path(), image.Size(), req.StartingOffset, image.SectorSize())

	// 4. Build sinks
	collector := sink.NewCollector()
	sinks := sink.Multi{collector}

	var extractor *sink.Extractor
	if req.Extract {
		if extractor, err = sink.NewExtractor(image, req.OutputDir); err != nil {
			return nil, app.NewError(app.ErrCodeInvalidInput, "failed to prepare output directory", err)
		}
		sinks = append(sinks, extractor)
	}

	if req.ManifestPath != "" {
		manifest, err := sink.CreateManifest(req.ManifestPath)
		if err != nil {
			return nil, app.NewError(app.ErrCodeInvalidInput, "failed to create manifest", err)
		}
		defer manifest.Close()
		sinks = append(sinks, manifest)
	}

	opts := services.SessionOptions{
		QueueCapacity: req.QueueCapacity,
		Logger:        ctx,
	}
	if len(req.AllocatedRanges) > 0 {
		ranges, err := services.ParseBlockRanges(req.AllocatedRanges)
		if err != nil {
			return nil, app.NewError(app.ErrCodeInvalidInput, "invalid allocated ranges", err)
		}
		opts.Oracle = services.NewAllocatedRanges(ranges)
	}

	// 5. Run the session
	session, err := services.NewCarvingSession(loaded.Descriptors, sinks, opts)
	if err != nil {
		return nil, app.NewError(app.ErrCodeConfigInvalid, "failed to create carving session", err)
	}
	if req.ImportPath != "" {
		data, err := os.ReadFile(req.ImportPath)
		if err != nil {
			return nil, app.NewError(app.ErrCodeInvalidInput, "failed to read import document", err)
		}
		if loaded, err = session.ImportDescriptors(store, data); err != nil {
			return nil, app.NewError(app.ErrCodeConfigInvalid, "import rejected", err)
		}
		ctx.Logf("[CONFIG] imported %d descriptors from %s", loaded.Loaded(), req.ImportPath)
	}
	if err := session.Start(image); err != nil {
		return nil, app.NewError(app.ErrCodeDeviceAccess, "failed to start carving session", err)
	}

	cancelled, err := stream(ctx, image, session)
	if err != nil {
		return nil, app.NewError(app.ErrCodeDeviceAccess, "failed to read image", err)
	}

	// 6. Collect results
	ctx.Progress("Collecting results...", 100)
	deviceContext := session.Device()
	response := &Response{
		Image: req.ImagePath,
		Device: DeviceInfo{
			DiskIndex:      deviceContext.DiskIndex,
			BytesPerSector: deviceContext.BytesPerSector,
			StartingOffset: deviceContext.StartingOffset,
			Size:           deviceContext.Size,
		},
		Statistics:  session.Stats(),
		Descriptors: loaded.Loaded(),
		Manifest:    req.ManifestPath,
		Cancelled:   cancelled,
	}
	if req.Extract {
		response.OutputDir = req.OutputDir
	}

	for _, skipped := range loaded.Skipped {
		response.Skipped = append(response.Skipped, SkippedDescriptor{
			Index:     skipped.Index,
			Extension: skipped.Extension,
			Reason:    skipped.Err.Error(),
		})
	}

	for _, extent := range collector.Extents() {
		result := newExtentResult(&extent, session.SectorSize())
		if extractor != nil {
			result.Path, _ = extractor.PathFor(extent.ID)
		}
		response.Extents = append(response.Extents, result)
	}

	response.Duration = time.Since(startTime)
	ctx.Logf("[CARVE] carving completed: %d extents from %d sectors in %v",
		len(response.Extents), response.Statistics.SectorsProcessed, response.Duration)

	return response, nil
}

// stream pushes the image through the session and drains it. A cancelled
// context stops the session early and is not reported as an error.
func stream(ctx *app.Context, source interfaces.SectorSource, session *services.CarvingSession) (bool, error) {
	lastPercent := -1
	progress := func(done, total int64) {
		if total <= 0 {
			return
		}
		percent := int(done * 100 / total)
		if percent != lastPercent {
			lastPercent = percent
			ctx.Progress(fmt.Sprintf("Carving %s of %s", formatBytes(done), formatBytes(total)), percent)
		}
	}

	err := source.Stream(ctx, session, progress)
	switch {
	case err == nil:
		session.CloseInput()
		session.Wait()
		return false, nil
	case errors.Is(err, ctx.Err()) && ctx.Err() != nil:
		ctx.Logf("[CARVE] carving cancelled: %v", err)
		session.Stop()
		return true, nil
	default:
		session.Stop()
		return false, err
	}
}
