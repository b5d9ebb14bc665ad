package lua

import (
	"os"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

// Manifest is the Go-native analogue of the teacher's ScriptMetadata: an
// optional, sidecar JSON file describing a guest module for diagnostics.
// A guest with no manifest still loads; Name/Version/APIVersion are left
// at their zero value and the guest is identified by its module path.
type Manifest struct {
	Name       string `json:"name"`
	Version    string `json:"version"`
	APIVersion string `json:"api_version"`
}

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// manifestPath derives <name>.manifest.json from a guest's .lua path.
func manifestPath(modulePath string) string {
	trimmed := strings.TrimSuffix(modulePath, ".lua")
	return trimmed + ".manifest.json"
}

// loadManifest reads the sidecar manifest for modulePath, if present. A
// missing file is not an error; any other failure to read or parse an
// existing file is.
func loadManifest(modulePath string) (*Manifest, error) {
	path := manifestPath(modulePath)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "reading manifest %s", path)
	}

	var m Manifest
	if err := jsonAPI.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrapf(err, "parsing manifest %s", path)
	}
	return &m, nil
}
