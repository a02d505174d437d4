// Package businessflow contains the core business logic and use cases for message dispatch workflows
package businessflow

import (
	"math/rand"
	"regexp"
	"strings"
)

// Variable placeholders look like {{name}}; spintax groups like {a|b|c}.
var (
	variablePattern = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_]+)\s*\}\}`)
	spintaxPattern  = regexp.MustCompile(`\{([^{}]*\|[^{}]*)\}`)
)

// RenderTemplate substitutes variables into the message template and, when
// spintax is enabled, resolves each {a|b|c} group to one randomly chosen
// alternative. Unknown variables are replaced with an empty string.
func RenderTemplate(template string, variables map[string]string, useSpintax bool, rng *rand.Rand) string {
	rendered := variablePattern.ReplaceAllStringFunc(template, func(match string) string {
		name := variablePattern.FindStringSubmatch(match)[1]
		return variables[name]
	})

	if useSpintax {
		rendered = resolveSpintax(rendered, rng)
	}
	return rendered
}

// resolveSpintax repeatedly resolves innermost groups so nested spintax
// like {Hi|{Hello|Hey} there} works.
func resolveSpintax(text string, rng *rand.Rand) string {
	for i := 0; i < 32; i++ {
		replaced := spintaxPattern.ReplaceAllStringFunc(text, func(match string) string {
			options := strings.Split(match[1:len(match)-1], "|")
			return options[rng.Intn(len(options))]
		})
		if replaced == text {
			return replaced
		}
		text = replaced
	}
	return text
}
