// Package prompts embeds the agent instruction files and exports them as strings.
package prompts

import _ "embed"

//go:embed license.txt
var License string
