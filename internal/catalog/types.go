package catalog

import "encoding/json"

// PackageRecord is one downloadable agent package as reported by the console.
// Records are immutable; fields are taken verbatim from the catalog response.
type PackageRecord struct {
	FileName     string `json:"fileName"`
	Link         string `json:"link"`
	Status       string `json:"status"`
	MajorVersion string `json:"majorVersion"`
	Version      string `json:"version"`
}

// listResponse is the package-listing payload. A non-empty errors field means
// the console rejected the API key.
type listResponse struct {
	Data   []PackageRecord   `json:"data"`
	Errors []json.RawMessage `json:"errors"`
}
