package protocol

import (
	"net/http"

	"trickroom/internal/app"
)

// Response is the reply envelope: {"success": true, ...data} or {"error": reason}.
type Response struct {
	Status int
	Body   map[string]any
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind app.Kind) int {
	switch kind {
	case "", app.KindAlreadyDone:
		return http.StatusOK
	case app.KindBadRequest:
		return http.StatusBadRequest
	case app.KindNotFound:
		return http.StatusNotFound
	case app.KindConflict:
		return http.StatusConflict
	case app.KindTransportDegraded:
		return http.StatusAccepted
	}
	return http.StatusInternalServerError
}

// OK reports whether the intent was accepted, including harmless repeats.
func (r Response) OK() bool {
	ok, _ := r.Body["success"].(bool)
	return ok
}

func respond(data map[string]any, err error) Response {
	kind := app.KindOf(err)
	body := map[string]any{}
	switch kind {
	case "", app.KindAlreadyDone:
		for k, v := range data {
			body[k] = v
		}
		body["success"] = true
		if kind == app.KindAlreadyDone {
			body["alreadyDone"] = true
			body["message"] = err.Error()
		}
	default:
		body["error"] = err.Error()
		body["kind"] = string(kind)
	}
	return Response{Status: StatusFor(kind), Body: body}
}

// Failure builds the response for err raised outside Handle, such as an undecodable transport frame.
func Failure(err error) Response {
	return respond(nil, err)
}

// Envelope returns the body with the status folded in, for transports without status codes.
func (r Response) Envelope() map[string]any {
	out := make(map[string]any, len(r.Body)+1)
	for k, v := range r.Body {
		out[k] = v
	}
	out["status"] = r.Status
	return out
}
