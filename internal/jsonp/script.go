package jsonp

import (
	"encoding/json"
	"errors"
	"regexp"
)

var ErrScriptSyntax = errors.New("jsonp: unsupported script")

// Only a single call expression is interpreted: name(<json>) with an
// optional /**/ guard and trailing semicolon. Anything else is rejected.
var callExpr = regexp.MustCompile(`^\s*(?:/\*\*/\s*)?([A-Za-z_$][A-Za-z0-9_$]*)\s*\(([\s\S]*)\)\s*;?\s*$`)

func parseScript(body []byte) (string, json.RawMessage, error) {
	m := callExpr.FindSubmatch(body)
	if m == nil {
		return "", nil, ErrScriptSyntax
	}
	arg := m[2]
	if !json.Valid(arg) {
		return "", nil, ErrScriptSyntax
	}
	return string(m[1]), json.RawMessage(arg), nil
}
