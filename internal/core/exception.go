package core

import (
	"errors"
	"strings"
)

// Exception is a JavaScript exception that escaped an evaluation, as
// reported by a backend.
type Exception struct {
	Name    string
	Message string
	Stack   string
}

func (e *Exception) Error() string {
	if e.Name == "" {
		return e.Message
	}
	return e.Name + ": " + e.Message
}

// AsException extracts the JS exception behind err. Errors that are not an
// *Exception are parsed from their text: the first line is read as
// "Name: message" and the remaining lines as the stack.
func AsException(err error) *Exception {
	if err == nil {
		return nil
	}
	var ex *Exception
	if errors.As(err, &ex) {
		return ex
	}
	return ParseException(err.Error())
}

// ParseException splits an engine error text into name, message and stack.
func ParseException(text string) *Exception {
	first, rest, _ := strings.Cut(text, "\n")
	first = strings.TrimSpace(first)

	ex := &Exception{Message: first, Stack: strings.TrimRight(rest, "\n")}
	if name, msg, ok := strings.Cut(first, ": "); ok && isErrorName(name) {
		ex.Name = name
		ex.Message = msg
	}
	return ex
}

// isErrorName accepts identifiers such as "TypeError" or "Error".
func isErrorName(s string) bool {
	if s == "" || strings.ContainsAny(s, " \t.") {
		return false
	}
	return strings.HasSuffix(s, "Error") || s == "Uncaught" || s == "Exception"
}
