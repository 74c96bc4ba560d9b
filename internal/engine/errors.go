package engine

// RPCError is a structured failure returned by the engine. The code names an
// engine-side error class (StackNotFound, InvalidTemplate, Forbidden, ...);
// callers translate codes into their own fault vocabulary and keep the
// message.
type RPCError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return "engine: " + e.Code + ": " + e.Message
}

// RemoteCode reports the engine-side error class.
func (e *RPCError) RemoteCode() string { return e.Code }

// RemoteMessage reports the engine-supplied message.
func (e *RPCError) RemoteMessage() string { return e.Message }
