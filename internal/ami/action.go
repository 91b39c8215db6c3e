package ami

import (
	"fmt"
	"strings"
)

// Action is an AMI action to be sent over a session.
type Action struct {
	Name      string
	Fields    [][2]string
	Variables []string
}

// NewAction creates an action with the given name.
func NewAction(name string) Action {
	return Action{Name: name}
}

// Field appends a header field and returns the action for chaining.
func (a Action) Field(key, value string) Action {
	a.Fields = append(a.Fields, [2]string{key, value})
	return a
}

// Variable appends a channel variable (sent as repeated Variable headers).
func (a Action) Variable(name, value string) Action {
	a.Variables = append(a.Variables, fmt.Sprintf("%s=%s", name, value))
	return a
}

// crlf strips the frame delimiters from header names and values.
var crlf = strings.NewReplacer("\r", "", "\n", "")

// encode serializes the action in AMI wire format. CR and LF are stripped
// from every name and value: a raw newline would terminate the frame early
// and let a caller-supplied value smuggle a second action onto the session.
func (a Action) encode(actionID string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "Action: %s\r\n", crlf.Replace(a.Name))
	if actionID != "" {
		fmt.Fprintf(&b, "ActionID: %s\r\n", crlf.Replace(actionID))
	}
	for _, f := range a.Fields {
		fmt.Fprintf(&b, "%s: %s\r\n", crlf.Replace(f[0]), crlf.Replace(f[1]))
	}
	for _, v := range a.Variables {
		fmt.Fprintf(&b, "Variable: %s\r\n", crlf.Replace(v))
	}
	b.WriteString("\r\n")
	return []byte(b.String())
}
