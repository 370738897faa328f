package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Label computes a deterministic name for one cache build generation,
// derived from (endpoint name, schema id, schema version, build id); a
// different schema version gives a different label. Nothing in weir calls
// it: pipeline.Build opens every endpoint's cache in one shared KV
// environment, named only by the endpoint.
func Label(endpoint, schemaID string, schemaVersion uint32, buildID string) string {
	h := sha256.New()
	h.Write([]byte(endpoint))
	h.Write([]byte{0})
	h.Write([]byte(schemaID))
	h.Write([]byte{0})
	fmt.Fprintf(h, "%d", schemaVersion)
	h.Write([]byte{0})
	h.Write([]byte(buildID))
	sum := h.Sum(nil)
	return fmt.Sprintf("%s-%s", endpoint, hex.EncodeToString(sum[:8]))
}

// indexDBName returns the on-disk database name for secondary index number
// n of a given schema (id, version): index_#<schema_id>_#<schema_version>_#<index_number>.
func indexDBName(schemaID string, schemaVersion uint32, indexNumber int) string {
	return fmt.Sprintf("index_#%s_#%d_#%d", schemaID, schemaVersion, indexNumber)
}
