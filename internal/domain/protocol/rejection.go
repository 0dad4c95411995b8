package protocol

import "fmt"

// Rejection is the typed, user-visible failure for a protocol request. It
// carries only the stable reason code and a human message; internal error
// detail never crosses this boundary.
type Rejection struct {
	Reason  ReasonCode `json:"reason_code"`
	Message string     `json:"message"`
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("%s: %s", r.Reason, r.Message)
}

// Reject builds a rejection for the given reason.
func Reject(reason ReasonCode, format string, args ...interface{}) *Rejection {
	return &Rejection{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// AsRejection extracts a *Rejection from err, or wraps err as an internal
// rejection without leaking its text to the client.
func AsRejection(err error) *Rejection {
	if err == nil {
		return nil
	}
	if rej, ok := err.(*Rejection); ok {
		return rej
	}
	return &Rejection{Reason: ReasonInternal, Message: "internal error"}
}
