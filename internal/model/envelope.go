package model

// Envelope wraps CLI command output so scripts get a stable shape in both
// json and plain modes.
type Envelope struct {
	Success  bool           `json:"success"`
	Data     any            `json:"data,omitempty"`
	Warnings []string       `json:"warnings,omitempty"`
	Error    *EnvelopeError `json:"error,omitempty"`
}

type EnvelopeError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func OK(data any, warnings ...string) Envelope {
	return Envelope{Success: true, Data: data, Warnings: warnings}
}

func Fail(code int, message string) Envelope {
	return Envelope{Success: false, Error: &EnvelopeError{Code: code, Message: message}}
}
