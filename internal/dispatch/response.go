package dispatch

// Response is the envelope returned for every dispatched operation. Exactly
// one of Result and Error is set.
type Response struct {
	Operation string   `json:"operation"`
	OK        bool     `json:"ok"`
	Result    any      `json:"result,omitempty"`
	Error     *Failure `json:"error,omitempty"`

	err *Error
}

// Failure is the caller-facing description of a failed operation.
type Failure struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

// Status is the payload of operations that report an outcome rather than
// data. Performed is false when a destructive operation was not confirmed.
type Status struct {
	Performed bool   `json:"performed"`
	Message   string `json:"message"`
}

// Err returns the classified failure, or nil on success.
func (r *Response) Err() error {
	if r.err == nil {
		return nil
	}
	return r.err
}

func success(op string, result any) *Response {
	return &Response{Operation: op, OK: true, Result: result}
}

func failure(err *Error) *Response {
	return &Response{
		Operation: err.Op,
		Error:     &Failure{Kind: err.Kind, Message: err.Error()},
		err:       err,
	}
}
