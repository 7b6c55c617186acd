package responses

// Success wraps every 2xx JSON body.
type Success struct {
	Data any `json:"data"`
}

// Failure wraps every error body.
type Failure struct {
	Error Problem `json:"error"`
}

// Problem is the public face of a pkg/errors.Error: the code, a message safe
// to show to a dashboard user and, for client errors, structured details
// such as the offending query parameter.
type Problem struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}
