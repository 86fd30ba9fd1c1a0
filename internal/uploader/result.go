package uploader

// Result is the value every upload operation returns. Failures are always
// reported this way, never via a callback into test code.
type Result struct {
	Success        bool   `json:"success"`
	StatusCode     int    `json:"statusCode,omitempty"`
	ReceiptID      string `json:"receiptId,omitempty"`
	ErrorMessage   string `json:"errorMessage,omitempty"`
	ExecutionCount int    `json:"executionCount"`
}

type receiptEnvelope struct {
	Success bool   `json:"success"`
	Receipt string `json:"receiptId"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}
