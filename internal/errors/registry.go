package errors

import "sort"

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Category Category
	Message  string
	Detail   string
}

// registry maps error codes to their templates.
var registry = map[string]ErrorTemplate{
	// ============================================
	// Toast Errors (E001-E009)
	// ============================================

	"E001": {
		Category: CategoryToast,
		Message:  "toast must be used within a provider",
		Detail:   "No toast provider was installed on the context. Wrap the handler with toast.Middleware or call toast.WithToaster first.",
	},

	// ============================================
	// Store Errors (E010-E019)
	// ============================================

	"E010": {
		Category: CategoryStore,
		Message:  "Undefined key in reducer mapping",
		Detail:   "Every slice name must map to a non-nil reducer.",
	},
	"E011": {
		Category: CategoryStore,
		Message:  "Empty reducer mapping",
		Detail:   "A store needs at least one slice reducer.",
	},
	"E012": {
		Category: CategoryStore,
		Message:  "Action has no type",
		Detail:   "Dispatched actions must carry a non-empty Type.",
	},
	"E013": {
		Category: CategoryStore,
		Message:  "Reducer returned nil initial state",
		Detail:   "Called with nil state and the init action, a reducer must return its initial state.",
	},
	"E014": {
		Category: CategoryStore,
		Message:  "Invalid action payload",
		Detail:   "The action payload does not have the shape its slice expects.",
	},

	// ============================================
	// Persistence Errors (E020-E029)
	// ============================================

	"E020": {
		Category: CategoryPersist,
		Message:  "Snapshot load failed",
		Detail:   "The persisted state could not be read from storage.",
	},
	"E021": {
		Category: CategoryPersist,
		Message:  "Snapshot save failed",
		Detail:   "The state snapshot could not be written to storage.",
	},
	"E022": {
		Category: CategoryPersist,
		Message:  "Snapshot decode failed",
		Detail:   "The stored snapshot is not valid JSON or has the wrong shape.",
	},
	"E023": {
		Category: CategoryPersist,
		Message:  "Storage is closed",
		Detail:   "The storage backend was used after Close.",
	},

	// ============================================
	// Transport Errors (E060-E069)
	// ============================================

	"E060": {
		Category: CategoryTransport,
		Message:  "WebSocket upgrade failed",
		Detail:   "The HTTP connection could not be upgraded to a WebSocket.",
	},
	"E061": {
		Category: CategoryTransport,
		Message:  "Invalid request body",
		Detail:   "The request body is not valid JSON for this endpoint.",
	},

	// ============================================
	// Config Errors (E120-E129)
	// ============================================

	"E120": {
		Category: CategoryConfig,
		Message:  "Invalid configuration file",
		Detail:   "The campusdesk.json file contains invalid JSON or unknown values.",
	},
	"E121": {
		Category: CategoryConfig,
		Message:  "Invalid environment configuration",
		Detail:   "A CAMPUSDESK_* environment variable could not be parsed.",
	},
	"E122": {
		Category: CategoryConfig,
		Message:  "Invalid port",
		Detail:   "The port must be between 0 and 65535.",
	},
	"E123": {
		Category: CategoryConfig,
		Message:  "Unknown persistence backend",
		Detail:   "persist.backend must be one of memory, file, sqlite or s3.",
	},
	"E124": {
		Category: CategoryConfig,
		Message:  "Missing persistence setting",
		Detail:   "The selected persistence backend needs additional settings.",
	},
}

// GetAllCodes returns all registered error codes, sorted.
func GetAllCodes() []string {
	codes := make([]string, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// GetTemplate returns the template for an error code.
func GetTemplate(code string) (ErrorTemplate, bool) {
	t, ok := registry[code]
	return t, ok
}
