package entityrepo

import "errors"

// Sentinel errors shared by the engines, the repository and the connection manager.
var (
	ErrNotFound          = errors.New("entityrepo: document not found")
	ErrNilContext        = errors.New("entityrepo: registration context is nil")
	ErrNilEngine         = errors.New("entityrepo: engine or dialer is nil")
	ErrNoDialer          = errors.New("entityrepo: no dialer configured, cannot rebuild engine")
	ErrUnsupportedFilter = errors.New("entityrepo: unsupported filter type")
	ErrUnalignedWindow   = errors.New("entityrepo: search window is not page aligned")
	ErrNoKeyFunc         = errors.New("entityrepo: no key function configured")
	ErrNoSchema          = errors.New("entityrepo: no schema configured for index")
)

// Op names used for error context.
const (
	OpGet           = "get"
	OpIndex         = "index"
	OpUpdate        = "update"
	OpDelete        = "delete"
	OpDeleteByQuery = "delete_by_query"
	OpCount         = "count"
	OpSearch        = "search"
	OpBulk          = "bulk"
	OpPing          = "ping"
)

// Error wraps an engine failure with the operation and index it happened on.
type Error struct {
	Op    string
	Index IndexID
	Err   error
}

func (e *Error) Error() string {
	if e.Index == "" {
		return e.Op + ": " + e.Err.Error()
	}
	return e.Op + " " + string(e.Index) + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }
