package response

// APIResponseCode is the machine-readable code carried in the response envelope.
type APIResponseCode int

const (
	APIResponseCodeOK                  APIResponseCode = 0
	APIResponseCodeBadRequest          APIResponseCode = 40000
	APIResponseCodeInsufficientBalance APIResponseCode = 40001
	APIResponseCodeNotFound            APIResponseCode = 40400
	APIResponseCodeConflict            APIResponseCode = 40900
	APIResponseCodeDuplicate           APIResponseCode = 40901
	APIResponseCodeError               APIResponseCode = 50000
)

var codeToMsg = map[APIResponseCode]string{
	APIResponseCodeOK:                  "ok",
	APIResponseCodeBadRequest:          "bad request",
	APIResponseCodeInsufficientBalance: "insufficient balance",
	APIResponseCodeNotFound:            "not found",
	APIResponseCodeConflict:            "idempotency conflict",
	APIResponseCodeDuplicate:           "duplicate request",
	APIResponseCodeError:               "unexpected error",
}

// APIResponse is the generic response envelope used by HTTP APIs.
// Use OKT / ErrorT helpers to construct instances.
type APIResponse[T any] struct {
	Code    APIResponseCode `json:"code"`
	Message string          `json:"message"`
	Data    T               `json:"data"`
}

// OKT returns a successful response with data.
func OKT[T any](data T) *APIResponse[T] {
	return &APIResponse[T]{Code: APIResponseCodeOK, Message: codeToMsg[APIResponseCodeOK], Data: data}
}

// ErrorT returns an error response with message and optional data.
func ErrorT[T any](code APIResponseCode, data T) *APIResponse[T] {
	return &APIResponse[T]{Code: code, Message: codeToMsg[code], Data: data}
}
