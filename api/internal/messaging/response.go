package messaging

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Response is a flat JSON object: success, optional error, and the fields of
// the typed result merged alongside them.
type Response struct {
	ID      string
	Success bool
	Error   string
	Fields  map[string]json.RawMessage
}

var reserved = map[string]bool{"id": true, "success": true, "error": true}

// OK builds a successful response carrying the fields of v, which must encode
// to a JSON object.
func OK(v any) (Response, error) {
	resp := Response{Success: true, Fields: map[string]json.RawMessage{}}
	if v == nil {
		return resp, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return Response{}, err
	}
	if err := json.Unmarshal(b, &resp.Fields); err != nil {
		return Response{}, fmt.Errorf("result is not an object: %w", err)
	}
	for k := range reserved {
		delete(resp.Fields, k)
	}
	return resp, nil
}

func Fail(msg string) Response {
	return Response{Success: false, Error: msg}
}

func (r Response) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(r.Fields)+3)
	for k, v := range r.Fields {
		m[k] = v
	}
	if r.ID != "" {
		m["id"] = r.ID
	}
	m["success"] = r.Success
	if !r.Success || r.Error != "" {
		m["error"] = r.Error
	}
	return json.Marshal(m)
}

func (r *Response) UnmarshalJSON(b []byte) error {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	*r = Response{Fields: map[string]json.RawMessage{}}
	if v, ok := m["id"]; ok {
		_ = json.Unmarshal(v, &r.ID)
	}
	if v, ok := m["success"]; ok {
		if err := json.Unmarshal(v, &r.Success); err != nil {
			return fmt.Errorf("success: %w", err)
		}
	}
	if v, ok := m["error"]; ok {
		_ = json.Unmarshal(v, &r.Error)
	}
	for k, v := range m {
		if !reserved[k] {
			r.Fields[k] = v
		}
	}
	return nil
}

// Decode unpacks the result fields into v.
func (r Response) Decode(v any) error {
	b, err := json.Marshal(r.Fields)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// ErrUnreachable means the privileged component is not listening. The page
// should be reloaded.
var ErrUnreachable = errors.New("extension not reachable; reload the page and try again")

// RemoteError is a {success:false} response.
type RemoteError struct {
	Type    Type
	Message string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return string(e.Type) + " failed"
	}
	return e.Message
}
