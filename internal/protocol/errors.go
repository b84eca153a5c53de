package protocol

// Error types as they appear in error bodies
const (
	ErrTypeInvalidRequest = "invalid_request_error"
	ErrTypeAuthentication = "authentication_error"
	ErrTypeRateLimit      = "rate_limit_error"
	ErrTypeTimeout        = "timeout_error"
	ErrTypeInternal       = "internal_error"
)

type ErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
}

// ErrorBody is the {"error": {...}} envelope
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

func NewError(typ, message, code string) ErrorBody {
	return ErrorBody{Error: ErrorDetail{Message: message, Type: typ, Code: code}}
}
