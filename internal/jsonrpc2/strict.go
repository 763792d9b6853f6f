// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package jsonrpc2

import (
	"fmt"
	"reflect"
	"strings"

	intjson "github.com/mcpcore/go-peer/internal/json"
)

// StrictUnmarshal unmarshals JSON data into v with strict validation rules:
//   - Rejects duplicate keys with different cases (e.g., "name" and "Name")
//   - Validates that JSON field names exactly match struct tags (case-sensitive)
//
// This prevents message smuggling attacks that exploit case-insensitive
// JSON unmarshalling, which violates JSON-RPC 2.0's case-sensitive field
// matching. Used when decoding a Request's or Response's Params/Result
// payload into a caller-supplied Go type.
func StrictUnmarshal(data []byte, v any) error {
	if err := validateNoDuplicateKeys(data); err != nil {
		return fmt.Errorf("strict unmarshal: %w", err)
	}
	if err := validateFieldCase(data, v); err != nil {
		return fmt.Errorf("strict unmarshal: %w", err)
	}
	if err := intjson.Unmarshal(data, v); err != nil {
		return fmt.Errorf("strict unmarshal: %w", err)
	}
	return nil
}

// StrictObjectUnmarshal decodes a JSON object into a
// map[string]json.RawMessage, rejecting case-variant duplicate keys. It is
// used by DecodeMessage to classify an envelope before its shape is known,
// where there is no destination struct to check field names against.
func StrictObjectUnmarshal(data []byte, v *map[string]intjson.RawMessage) error {
	if err := validateNoDuplicateKeys(data); err != nil {
		return fmt.Errorf("strict unmarshal: %w", err)
	}
	return intjson.Unmarshal(data, v)
}

// validateNoDuplicateKeys checks if the JSON data contains duplicate keys
// with different cases (e.g., both "name" and "Name"), recursively.
func validateNoDuplicateKeys(data []byte) error {
	var raw map[string]intjson.RawMessage
	if err := intjson.Unmarshal(data, &raw); err != nil {
		// Not an object: no duplicate keys are possible.
		return nil
	}

	seen := make(map[string]string) // lowercase -> original
	for key := range raw {
		lowerKey := strings.ToLower(key)
		if original, exists := seen[lowerKey]; exists && original != key {
			return fmt.Errorf("duplicate key with different case: %q and %q", original, key)
		}
		seen[lowerKey] = key
	}
	for key, val := range raw {
		if err := validateNoDuplicateKeysRecursive(val); err != nil {
			return fmt.Errorf("in field %q: %w", key, err)
		}
	}
	return nil
}

func validateNoDuplicateKeysRecursive(data intjson.RawMessage) error {
	var obj map[string]intjson.RawMessage
	if err := intjson.Unmarshal(data, &obj); err == nil {
		seen := make(map[string]string)
		for key := range obj {
			lowerKey := strings.ToLower(key)
			if original, exists := seen[lowerKey]; exists && original != key {
				return fmt.Errorf("duplicate key with different case: %q and %q", original, key)
			}
			seen[lowerKey] = key
		}
		for key, val := range obj {
			if err := validateNoDuplicateKeysRecursive(val); err != nil {
				return fmt.Errorf("in field %q: %w", key, err)
			}
		}
		return nil
	}

	var arr []intjson.RawMessage
	if err := intjson.Unmarshal(data, &arr); err == nil {
		for i, elem := range arr {
			if err := validateNoDuplicateKeysRecursive(elem); err != nil {
				return fmt.Errorf("in array index %d: %w", i, err)
			}
		}
		return nil
	}

	return nil
}

// validateFieldCase ensures that JSON field names exactly match the struct
// tags (case-sensitive). This prevents attacks where an attacker sends
// "Name" instead of "name" to smuggle values past a case-insensitive
// decoder.
func validateFieldCase(data []byte, v any) error {
	expectedFields := extractExpectedFields(v)
	if len(expectedFields) == 0 {
		return nil
	}

	var raw map[string]intjson.RawMessage
	if err := intjson.Unmarshal(data, &raw); err != nil {
		return nil
	}

	for key := range raw {
		if expectedFields[key] {
			continue
		}
		lowerKey := strings.ToLower(key)
		for expected := range expectedFields {
			if strings.ToLower(expected) == lowerKey {
				return fmt.Errorf("field name case mismatch: got %q, expected %q", key, expected)
			}
		}
	}
	return nil
}

// extractExpectedFields uses reflection to extract valid field names from
// struct tags.
func extractExpectedFields(v any) map[string]bool {
	fields := make(map[string]bool)

	t := reflect.TypeOf(v)
	if t == nil {
		return fields
	}
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return fields
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("json")
		if tag == "" || tag == "-" {
			continue
		}
		name := tag
		if idx := strings.Index(tag, ","); idx != -1 {
			name = tag[:idx]
		}
		if name != "" {
			fields[name] = true
		}
	}
	return fields
}
