package http

// DataEnvelope is the success body: {"data": ...}.
type DataEnvelope struct {
	Data interface{} `json:"data"`
}

// ErrorEnvelope is the body of every non-2xx response.
type ErrorEnvelope struct {
	Status  int         `json:"status" example:"400"`
	Message string      `json:"message" example:"Bad Request"`
	Errors  interface{} `json:"errors,omitempty"`
}

// ValidationError represents validation error detail.
type ValidationError struct {
	Code    string                 `json:"code,omitempty" example:"ERR_ONEOF"`
	Field   string                 `json:"field,omitempty" example:"interval"`
	Message string                 `json:"message,omitempty" example:"interval must be one of: day, week, month, year, none"`
	Params  map[string]interface{} `json:"params,omitempty"`
}
