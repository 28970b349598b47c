// Package testutils contains helpers shared by tests.
package testutils

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"go.viam.com/test"
)

// WriteTempJSON writes v as JSON to a file called name in a fresh temporary directory and returns
// the file's path. A []byte or string is written as is, for malformed documents.
func WriteTempJSON(t *testing.T, name string, v interface{}) string {
	t.Helper()
	var data []byte
	switch raw := v.(type) {
	case []byte:
		data = raw
	case string:
		data = []byte(raw)
	default:
		var err error
		data, err = json.Marshal(v)
		test.That(t, err, test.ShouldBeNil)
	}
	path := filepath.Join(t.TempDir(), name)
	test.That(t, os.WriteFile(path, data, 0o600), test.ShouldBeNil)
	return path
}
