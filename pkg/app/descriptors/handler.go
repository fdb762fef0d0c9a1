package descriptors

import (
	"fmt"
	"os"

	"github.com/deploymenttheory/go-carver/internal/config"
	"github.com/deploymenttheory/go-carver/pkg/app"
)

const builtinSource = "built-in"

// Handle processes a descriptor request
func Handle(ctx *app.Context, req *Request) (*Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	opts := config.LoadOptions{LegacyFooterPatterns: req.LegacyFooterPatterns}

	source := req.DescriptorsPath
	if source == "" {
		source = builtinSource
	}
	ctx.Logf("[CONFIG] loading descriptors from %s", source)

	var store *config.DescriptorStore
	var err error
	if req.Action == ActionImport {
		store, err = openForImport(req.DescriptorsPath, opts)
	} else {
		store, err = config.OpenDescriptorStore(req.DescriptorsPath, opts)
	}
	if err != nil {
		return nil, app.NewError(app.ErrCodeConfigInvalid, "failed to load descriptor document", err)
	}

	result := store.Result()
	if req.Action == ActionImport {
		data, err := os.ReadFile(req.ImportPath)
		if err != nil {
			return nil, app.NewError(app.ErrCodeInvalidInput, "failed to read import document", err)
		}
		if result, err = store.Import(data); err != nil {
			return nil, app.NewError(app.ErrCodeConfigInvalid, "import rejected", err)
		}
		ctx.Logf("[CONFIG] imported %d descriptors into %s", result.Loaded(), req.DescriptorsPath)
	}

	response := &Response{
		Action:      req.Action,
		Source:      source,
		Protocol:    result.Protocol,
		Descriptors: make([]DescriptorInfo, 0, result.Loaded()),
	}
	for _, d := range result.Descriptors {
		response.Descriptors = append(response.Descriptors, newDescriptorInfo(d))
	}
	for _, skipped := range result.Skipped {
		response.Skipped = append(response.Skipped, SkippedEntry{
			Index:     skipped.Index,
			Extension: skipped.Extension,
			Reason:    skipped.Err.Error(),
		})
	}

	switch req.Action {
	case ActionValidate:
		if len(response.Skipped) > 0 || result.Loaded() == 0 {
			return response, app.NewError(app.ErrCodeConfigInvalid,
				fmt.Sprintf("%d of %d descriptors invalid", len(response.Skipped), len(response.Skipped)+result.Loaded()), nil)
		}
	case ActionExport:
		if response.Document, err = store.Export(); err != nil {
			return nil, app.NewError(app.ErrCodeConfigInvalid, "failed to export descriptor document", err)
		}
	}

	ctx.Logf("[CONFIG] %d descriptors, %d skipped", len(response.Descriptors), len(response.Skipped))
	return response, nil
}

// openForImport opens the target document, starting from the built-in
// document when the target does not exist yet
func openForImport(path string, opts config.LoadOptions) (*config.DescriptorStore, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		store, err := config.OpenDescriptorStore("", opts)
		if err != nil {
			return nil, err
		}
		return store.WithPath(path), nil
	}
	return config.OpenDescriptorStore(path, opts)
}
