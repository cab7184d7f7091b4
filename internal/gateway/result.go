package gateway

import "encoding/json"

// ResultKind tags the three outcomes a request can have. Downstream code
// branches on the tag, never on ad hoc field inspection.
type ResultKind int

const (
	// ResultOK: the server accepted the request; Data holds the body.
	ResultOK ResultKind = iota
	// ResultOffline: the connectivity probe said no network; nothing was
	// attempted and no retries were burned.
	ResultOffline
	// ResultError: the request was attempted and failed after retries.
	ResultError
)

// Result is the uniform shape every request returns.
type Result struct {
	Kind    ResultKind
	Status  int
	Data    json.RawMessage
	Message string
}

// OK reports whether the request succeeded.
func (r Result) OK() bool { return r.Kind == ResultOK }

// Offline reports whether the request was skipped for lack of connectivity.
func (r Result) Offline() bool { return r.Kind == ResultOffline }

// Decode unmarshals the response body into v.
func (r Result) Decode(v interface{}) error {
	return json.Unmarshal(r.Data, v)
}

func okResult(status int, data json.RawMessage) Result {
	return Result{Kind: ResultOK, Status: status, Data: data}
}

func offlineResult() Result {
	return Result{Kind: ResultOffline, Message: "device is offline"}
}

func errorResult(status int, message string) Result {
	return Result{Kind: ResultError, Status: status, Message: message}
}
