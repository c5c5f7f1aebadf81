//go:build test

package testutils

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/mcuadros/go-defaults"
	"github.com/srg/racelink/internal/device"
	"github.com/yudai/gojsondiff"
	"github.com/yudai/gojsondiff/formatter"
)

// MustJSON marshals v or panics.
func MustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(data)
}

// JSONAssertOptions controls JSON comparison.
type JSONAssertOptions struct {
	// IgnoreExtraKeys drops object keys that the expected document does not mention.
	IgnoreExtraKeys bool `default:"true"`
}

// JSONAsserter compares JSON documents structurally and reports an ASCII diff.
type JSONAsserter struct {
	t       testing.TB
	options JSONAssertOptions
}

// NewJSONAsserter creates a JSONAsserter with default options.
func NewJSONAsserter(t testing.TB) *JSONAsserter {
	opts := JSONAssertOptions{}
	defaults.SetDefaults(&opts)
	return &JSONAsserter{t: t, options: opts}
}

// Strict makes extra keys in the actual document a mismatch.
func (ja *JSONAsserter) Strict() *JSONAsserter {
	ja.options.IgnoreExtraKeys = false
	return ja
}

// Assert fails the test when actualJSON differs from expectedJSON.
func (ja *JSONAsserter) Assert(actualJSON, expectedJSON string) bool {
	ja.t.Helper()
	if diff := ja.Diff(actualJSON, expectedJSON); diff != "" {
		ja.t.Errorf("JSON assertion failed:\n%s", diff)
		return false
	}
	return true
}

// AssertCharacteristics compares a descriptor table snapshot.
//
//	[{"service": "39df", "uuid": "a1", "properties": "Write, Notify", "value": ""}]
func (ja *JSONAsserter) AssertCharacteristics(chars []device.CharacteristicDescriptor, expectedJSON string) bool {
	ja.t.Helper()
	type row struct {
		Service    string `json:"service"`
		UUID       string `json:"uuid"`
		Properties string `json:"properties"`
		Value      string `json:"value"`
	}
	rows := make([]row, 0, len(chars))
	for _, c := range chars {
		rows = append(rows, row{c.ServiceUUID, c.UUID, c.Properties.String(), c.LastRawValueHex})
	}
	return ja.Assert(MustJSON(rows), expectedJSON)
}

// Diff returns an ASCII diff of the documents, or "" when they match.
func (ja *JSONAsserter) Diff(actualJSON, expectedJSON string) string {
	var expected, actual interface{}
	if err := json.Unmarshal([]byte(expectedJSON), &expected); err != nil {
		return fmt.Sprintf("invalid expected JSON: %v", err)
	}
	if err := json.Unmarshal([]byte(actualJSON), &actual); err != nil {
		return fmt.Sprintf("invalid actual JSON: %v", err)
	}

	// gojsondiff compares objects only
	if _, ok := expected.([]interface{}); ok {
		expected = map[string]interface{}{"array": expected}
		actual = map[string]interface{}{"array": actual}
	}

	if ja.options.IgnoreExtraKeys {
		pruneExtraKeys(actual, expected)
	}

	expectedBytes, _ := json.Marshal(expected)
	actualBytes, _ := json.Marshal(actual)

	diff, err := gojsondiff.New().Compare(expectedBytes, actualBytes)
	if err != nil {
		return fmt.Sprintf("JSON comparison failed: %v", err)
	}
	if !diff.Modified() {
		return ""
	}

	var left map[string]interface{}
	_ = json.Unmarshal(expectedBytes, &left)
	f := formatter.NewAsciiFormatter(left, formatter.AsciiFormatterConfig{ShowArrayIndex: true})
	out, _ := f.Format(diff)
	return out
}

func pruneExtraKeys(actual, expected interface{}) {
	switch e := expected.(type) {
	case map[string]interface{}:
		a, ok := actual.(map[string]interface{})
		if !ok {
			return
		}
		for k := range a {
			if _, keep := e[k]; !keep {
				delete(a, k)
			}
		}
		for k, ev := range e {
			pruneExtraKeys(a[k], ev)
		}
	case []interface{}:
		a, ok := actual.([]interface{})
		if !ok {
			return
		}
		for i := range a {
			if i < len(e) {
				pruneExtraKeys(a[i], e[i])
			}
		}
	}
}
