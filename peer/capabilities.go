// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package peer

import (
	intjson "github.com/mcpcore/go-peer/internal/json"
)

// Capabilities is the nested, optional-record structure each side
// advertises at initialize. The core does not know the names of domain
// capabilities (sampling, elicitation, roots, logging, prompts, and so on
// are external collaborators' concern); it only knows that presence of a
// key is the contract, and that the associated value may carry sub-flags
// (listChanged, subscribe, form, url) that refine that contract.
//
// A nil value for a present key (json `{}`) still counts as advertised;
// only absence of the key means "not supported".
type Capabilities map[string]intjson.RawMessage

// Has reports whether name was advertised.
func (c Capabilities) Has(name string) bool {
	if c == nil {
		return false
	}
	_, ok := c[name]
	return ok
}

// SubFlags decodes the sub-flags object for name into v. It is a no-op,
// returning false, if name was not advertised.
func (c Capabilities) SubFlags(name string, v any) (bool, error) {
	raw, ok := c[name]
	if !ok {
		return false, nil
	}
	if len(raw) == 0 {
		return true, nil
	}
	if err := intjson.Unmarshal(raw, v); err != nil {
		return true, err
	}
	return true, nil
}

// With returns a copy of c with name advertised, carrying subFlags encoded
// as the capability's value (nil subFlags becomes an empty object).
func (c Capabilities) With(name string, subFlags any) Capabilities {
	out := make(Capabilities, len(c)+1)
	for k, v := range c {
		out[k] = v
	}
	if subFlags == nil {
		out[name] = intjson.RawMessage("{}")
	} else if raw, err := intjson.Marshal(subFlags); err == nil {
		out[name] = raw
	}
	return out
}
