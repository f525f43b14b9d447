// Package ids generates prefix-qualified, sortable identifiers such as
// "ltx_01h2xcejqtf2nbrexx3vqjhp41".
package ids

import (
	"fmt"

	"go.jetify.com/typeid/v2"
)

type Prefix string

const (
	LedgerTransaction Prefix = "ltx"
	Delivery          Prefix = "dlv"
)

// New panics on an invalid prefix, which is a programming error.
func New(prefix Prefix) string {
	tid, err := typeid.Generate(string(prefix))
	if err != nil {
		panic(fmt.Sprintf("ids: invalid prefix %q: %v", prefix, err))
	}
	return tid.String()
}

// HasPrefix reports whether s parses as a TypeID carrying prefix.
func HasPrefix(s string, prefix Prefix) bool {
	tid, err := typeid.Parse(s)
	if err != nil {
		return false
	}
	return tid.Prefix() == string(prefix)
}
