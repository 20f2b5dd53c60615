package rules

import (
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

var tplPattern = regexp.MustCompile(`\{\.[^}]+\}`)

// ResolveTemplate substitutes {.path} references in a rule message with
// values from the snapshot JSON document. Unresolvable paths collapse to the
// empty string.
func ResolveTemplate(tpl string, doc []byte) string {
	if !strings.Contains(tpl, "{.") {
		return tpl
	}
	return tplPattern.ReplaceAllStringFunc(tpl, func(m string) string {
		path := strings.Trim(m, "{.}")
		value := gjson.GetBytes(doc, path)
		if !value.Exists() {
			return ""
		}
		return value.String()
	})
}
