package specs

import "embed"

// FS holds one directory per module under modules/, each carrying the
// module's OpenAPI document. Directories starting with "_" are skipped by
// discovery.
//
//go:embed all:modules
var FS embed.FS
