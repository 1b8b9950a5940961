package httpserver

const (
	ErrInvalidJSON      = "invalid json"
	ErrDependency       = "dependency error"
	ErrInvalidSignature = "invalid signature"
	ErrUnauthorized     = "unauthorized"
	ErrMissingPhone     = "missing phone"
	ErrBadLimit         = "bad limit"
	ErrBodyTooLarge     = "body too large"
)
