package dto

// Response is the unified API response envelope
type Response struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorInfo `json:"error,omitempty"`
	Meta    *Meta      `json:"meta,omitempty"`
}

// ErrorInfo carries error details
type ErrorInfo struct {
	Code      string             `json:"code"`
	Message   string             `json:"message"`
	RequestID string             `json:"request_id,omitempty"`
	Details   []ValidationDetail `json:"details,omitempty"`
}

// Meta carries list pagination details
type Meta struct {
	Count     int    `json:"count"`
	PageSize  int    `json:"page_size,omitempty"`
	NextToken string `json:"next_token,omitempty"`
}

// NewSuccessResponse creates a success response
func NewSuccessResponse(data any) Response {
	return Response{
		Success: true,
		Data:    data,
	}
}

// NewListResponse creates a success response with pagination meta.
// nextToken is the cursor for the following page, empty when exhausted.
func NewListResponse(data any, count, pageSize int, nextToken string) Response {
	return Response{
		Success: true,
		Data:    data,
		Meta: &Meta{
			Count:     count,
			PageSize:  pageSize,
			NextToken: nextToken,
		},
	}
}

// NewErrorResponse creates an error response
func NewErrorResponse(code, message string) Response {
	return Response{
		Success: false,
		Error: &ErrorInfo{
			Code:    code,
			Message: message,
		},
	}
}

// NewErrorResponseWithRequestID creates an error response carrying the
// request ID for log correlation
func NewErrorResponseWithRequestID(code, message, requestID string) Response {
	return Response{
		Success: false,
		Error: &ErrorInfo{
			Code:      code,
			Message:   message,
			RequestID: requestID,
		},
	}
}

// ValidationDetail names one failed request field
type ValidationDetail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// NewValidationErrorResponse creates an error response with per-field details
func NewValidationErrorResponse(message, requestID string, details []ValidationDetail) Response {
	return Response{
		Success: false,
		Error: &ErrorInfo{
			Code:      "VALIDATION_ERROR",
			Message:   message,
			RequestID: requestID,
			Details:   details,
		},
	}
}

// ListRequest is the common cursor-paginated list query
type ListRequest struct {
	Limit      int    `form:"limit" binding:"omitempty,min=1,max=500"`
	StartAfter string `form:"start_after"`
}

// DefaultListRequest returns a ListRequest with defaults applied
func DefaultListRequest() ListRequest {
	return ListRequest{Limit: 50}
}

// Normalize applies defaults to zero values
func (r *ListRequest) Normalize() {
	if r.Limit <= 0 {
		r.Limit = 50
	}
	if r.Limit > 500 {
		r.Limit = 500
	}
}
