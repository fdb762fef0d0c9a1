package descriptors

import (
	"github.com/deploymenttheory/go-carver/pkg/app"
)

// Validate validates a descriptor request
func (r *Request) Validate() error {
	switch r.Action {
	case ActionList, ActionValidate, ActionExport:
	case ActionImport:
		if r.ImportPath == "" {
			return app.NewError(app.ErrCodeInvalidInput, "import requires a document path", nil)
		}
		if r.DescriptorsPath == "" {
			return app.NewError(app.ErrCodeInvalidInput, "import requires a descriptors path to persist to", nil)
		}
	case "":
		return app.NewError(app.ErrCodeInvalidInput, "action is required", nil)
	default:
		return app.NewError(app.ErrCodeNotImplemented, "unsupported descriptor action: "+string(r.Action), nil)
	}
	return nil
}
