// Package assets holds the prompt templates sent to the image model.
//
// Templates live under prompts/ and are embedded at compile time so copy
// changes do not touch Go code.
package assets

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"
)

//go:embed prompts/system-instruction.txt
var SystemInstruction string

//go:embed prompts/*.txt
var promptFS embed.FS

// Parsed once; template.Must panics at init on a malformed template.
var promptTmpl = template.Must(template.ParseFS(promptFS, "prompts/*.txt"))

// PromptData is the dynamic part of an operation prompt.
type PromptData struct {
	Prompt     string // user instructions, already trimmed
	References int    // number of reference images after the source
	Masked     bool   // a mask image follows the other images
}

// RenderOperationPrompt renders the template named after the operation
// (e.g. "style-transfer").
func RenderOperationPrompt(operation string, data PromptData) (string, error) {
	t := promptTmpl.Lookup(operation + ".txt")
	if t == nil || operation == "mask" || operation == "system-instruction" {
		return "", fmt.Errorf("no prompt template for operation %q", operation)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", operation, err)
	}
	return strings.TrimSpace(buf.String()), nil
}
