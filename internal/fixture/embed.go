// Package fixture holds the default usage dataset compiled into the binary.
package fixture

import _ "embed"

// Path is the fixed relative URL the console serves the dataset at.
const Path = "/usage-data.json"

// UsageData is the JSON document {"usageData": KeyUsage[]} used when no
// external fixture is configured.
//
//go:embed usage-data.json
var UsageData []byte
