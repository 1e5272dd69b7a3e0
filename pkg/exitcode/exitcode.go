// Package exitcode provides standardized exit codes for stencil
package exitcode

// Exit codes for stencil CLI
const (
	Success         = 0
	GeneralError    = 1
	ConfigError     = 2
	ValidationError = 3
	FileSystemError = 4
	NetworkError    = 5
	RenderError     = 10
	ExternalTool    = 11
	DriftFound      = 12
)

// String returns a human-readable description of the exit code
func String(code int) string {
	switch code {
	case Success:
		return "Success"
	case GeneralError:
		return "General error"
	case ConfigError:
		return "Configuration error"
	case ValidationError:
		return "Validation error"
	case FileSystemError:
		return "File system error"
	case NetworkError:
		return "Network error"
	case RenderError:
		return "Template render error"
	case ExternalTool:
		return "External tool error"
	case DriftFound:
		return "Template drift found"
	default:
		return "Unknown error"
	}
}
