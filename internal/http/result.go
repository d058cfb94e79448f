package httpapi

// Result is the envelope of every JSON response. Code is ResultSuccess or ResultError,
// Type one of success, error, warning. Message is already in the request language.
type Result[T any] struct {
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
	Result  T      `json:"result"`
}

const (
	ResultSuccess = 2000
	ResultError   = -1
	// ResultTokenExpired goes with HTTP 401; the client drops its stored token on it
	ResultTokenExpired = 60401
)

func Ok[T any](result T) Result[T] {
	return Result[T]{Code: ResultSuccess, Type: "success", Message: "ok", Result: result}
}

func Fail(message string) Result[any] {
	return Result[any]{Code: ResultError, Type: "error", Message: message}
}

// FailWith is Fail carrying a payload the client still renders.
func FailWith[T any](message string, result T) Result[T] {
	return Result[T]{Code: ResultError, Type: "error", Message: message, Result: result}
}

// Warn marks a response the client shows as a warning toast rather than an error.
func Warn[T any](code int, message string, result T) Result[T] {
	return Result[T]{Code: code, Type: "warning", Message: message, Result: result}
}
