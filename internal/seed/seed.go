// Package seed provides the fallback identity set: a small built-in list
// optionally extended by a JSONC file maintained on the device.
package seed

import (
	"encoding/json"
	"fmt"
	"os"

	domainauth "github.com/target/opsconsole/internal/domain/auth"
	"github.com/target/opsconsole/internal/domain/directory"
	"github.com/tidwall/jsonc"
)

// Builtin returns the identities every console knows without any configuration.
func Builtin() []domainauth.Identity {
	return []domainauth.Identity{
		{Key: "0001", FirstName: "Plant", LastName: "Administrator", Area: "Systems", Role: domainauth.RoleAdmin},
		{Key: "0002", FirstName: "Shift", LastName: "Manager", Area: "Operations", Role: domainauth.RoleManager},
	}
}

// fileDocument is the on-disk layout. The identities key is optional:
// a bare array at the top level is accepted too.
type fileDocument struct {
	Identities []domainauth.Identity `json:"identities"`
}

// Parse strips JSONC comments and trailing commas from data and decodes the identities.
// Every entry is normalized and validated; the first invalid entry fails the whole file.
func Parse(data []byte) ([]domainauth.Identity, error) {
	stripped := jsonc.ToJSON(data)

	var ids []domainauth.Identity
	if err := json.Unmarshal(stripped, &ids); err != nil {
		var doc fileDocument
		if docErr := json.Unmarshal(stripped, &doc); docErr != nil {
			return nil, fmt.Errorf("parsing fallback identities: %w", docErr)
		}
		ids = doc.Identities
	}

	for i := range ids {
		ids[i] = ids[i].Normalize()
		if err := ids[i].Validate(); err != nil {
			return nil, fmt.Errorf("fallback identity #%d: %w", i+1, err)
		}
	}
	return ids, nil
}

// Load returns the fallback set: entries from path (when non-empty) followed by any
// built-in entry whose key the file does not redefine.
func Load(path string) ([]domainauth.Identity, error) {
	if path == "" {
		return Builtin(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading fallback file %s: %w", path, err)
	}
	fromFile, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return directory.Merge(fromFile, Builtin()), nil
}
