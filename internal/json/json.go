// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package json centralizes the JSON codec used by the wire layer so that
// every frame in the module is encoded and decoded the same way.
package json

import (
	"fmt"

	sjson "github.com/segmentio/encoding/json"
)

// Marshal encodes v using the module's wire codec.
func Marshal(v any) ([]byte, error) {
	return sjson.Marshal(v)
}

// Unmarshal decodes data using the module's wire codec. Object keys are
// matched to struct fields case-sensitively.
func Unmarshal(data []byte, v any) error {
	rest, err := sjson.Parse(data, v, sjson.DontMatchCaseInsensitiveStructFields)
	if err == nil && len(rest) != 0 {
		return fmt.Errorf("json: invalid character %q after top-level value", rest[0])
	}
	return err
}

// RawMessage is a re-export so callers need not import both this package
// and encoding/json just to delay decoding.
type RawMessage = sjson.RawMessage
