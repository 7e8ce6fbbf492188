package response

import "licensebot/lib/clock"

type Response struct {
	Data          interface{} `json:"data,omitempty"`
	Count         int         `json:"count,omitempty"`
	Success       bool        `json:"success" validate:"required"`
	StatusMessage string      `json:"status_message"`
	Timestamp     string      `json:"timestamp"`
}

func Ok(data interface{}) Response {
	return Response{
		Data:          data,
		Success:       true,
		StatusMessage: "Success",
		Timestamp:     clock.Now(),
	}
}

// List wraps a collection and reports its size next to it.
func List[T any](items []T) Response {
	if items == nil {
		items = []T{}
	}
	r := Ok(items)
	r.Count = len(items)
	return r
}

func Error(message string) Response {
	return Response{
		Success:       false,
		StatusMessage: message,
		Timestamp:     clock.Now(),
	}
}
