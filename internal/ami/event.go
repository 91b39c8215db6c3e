package ami

import "strconv"

// Event represents a parsed AMI frame (event or action response) as an
// ordered set of key-value headers.
type Event struct {
	headers []header
}

type header struct {
	Key   string
	Value string
}

// NewEvent creates an Event from a slice of key-value pairs.
func NewEvent(kvs ...string) Event {
	e := Event{}
	for i := 0; i+1 < len(kvs); i += 2 {
		e.headers = append(e.headers, header{Key: kvs[i], Value: kvs[i+1]})
	}
	return e
}

// Get returns the value for the given key, or empty string if not found.
func (e Event) Get(key string) string {
	for _, h := range e.headers {
		if h.Key == key {
			return h.Value
		}
	}
	return ""
}

// GetInt returns the integer value for the given key, or 0 if not found/parseable.
func (e Event) GetInt(key string) int {
	v, _ := strconv.Atoi(e.Get(key))
	return v
}

// Type returns the Event header value (the AMI event type).
func (e Event) Type() string {
	return e.Get("Event")
}

// ActionID returns the ActionID header, if any.
func (e Event) ActionID() string {
	return e.Get("ActionID")
}

// IsResponse returns true if this is an AMI action response rather than an event.
func (e Event) IsResponse() bool {
	return e.Get("Response") != ""
}

// Success returns true for a "Response: Success" frame.
func (e Event) Success() bool {
	return e.Get("Response") == "Success"
}
