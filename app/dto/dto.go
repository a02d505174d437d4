package dto

// APIResponse is the envelope every endpoint returns. Data carries the
// payload on success; Error carries an ErrorDetail on failure.
type APIResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty" validate:"omitempty"`
	Error   any    `json:"error,omitempty" validate:"omitempty"`
}

// ErrorDetail represents error details in API responses
type ErrorDetail struct {
	Code    string `json:"code"`
	Details any    `json:"details,omitempty" validate:"omitempty"`
}

// PagedData wraps a listing payload with its total row count
type PagedData struct {
	Items any   `json:"items"`
	Total int64 `json:"total"`
}
