package domain

// Error codes surfaced by the adapter. Structural and argument errors
// are returned synchronously; asynchronous widget conditions are
// delivered through callbacks only and never carry these codes.
const (
	CodeDecorationRejected = "DECORATION_REJECTED"
	CodeInvalidSize        = "INVALID_SIZE"
	CodeDeviceNotFound     = "DEVICE_NOT_FOUND"
	CodeInternal           = "INTERNAL_ERROR"
)

type AdapterError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *AdapterError) Error() string {
	if e == nil {
		return ""
	}
	return e.Code + ": " + e.Message
}
