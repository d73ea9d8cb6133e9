// Package inference calls the hosted image model that restyles, empties and
// composes kitchen photos.
package inference

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fpang/genai-kitchen/internal/assets"
)

// Operation is a kind of generation.
type Operation string

const (
	// OpStyleTransfer restyles the kitchen according to the prompt.
	OpStyleTransfer Operation = "style-transfer"
	// OpEmptyRoom removes furniture and objects, leaving the bare room.
	OpEmptyRoom Operation = "empty-room"
	// OpCompose blends elements of reference images into the kitchen.
	OpCompose Operation = "compose"
)

// MaxReferences is the largest number of reference images accepted for OpCompose.
const MaxReferences = 4

// ErrNoImage is returned when the model answers without an image.
var ErrNoImage = errors.New("inference: model returned no image")

// ParseOperation validates an operation name.
func ParseOperation(s string) (Operation, error) {
	switch op := Operation(s); op {
	case OpStyleTransfer, OpEmptyRoom, OpCompose:
		return op, nil
	}
	return "", fmt.Errorf("unknown operation %q", s)
}

// NeedsPrompt reports whether op requires a user prompt.
func (op Operation) NeedsPrompt() bool {
	return op == OpStyleTransfer || op == OpCompose
}

// Image is an encoded image with its MIME type.
type Image struct {
	Data     []byte
	MIMEType string
}

// Request is one generation call.
type Request struct {
	Operation  Operation
	Model      string
	Prompt     string
	Image      Image
	Mask       *Image // optional; white marks the region to change
	References []Image
	Params     map[string]any
}

// Result holds the generated images and any accompanying text.
type Result struct {
	Images []Image
	Text   string
	Model  string
}

// Generator produces images for a Request.
type Generator interface {
	Generate(ctx context.Context, req Request) (*Result, error)
}

// BuildInstruction returns the text instruction sent alongside the images.
// An operation without a template falls back to the bare prompt.
func BuildInstruction(req Request) string {
	prompt := strings.TrimSpace(req.Prompt)
	text, err := assets.RenderOperationPrompt(string(req.Operation), assets.PromptData{
		Prompt:     prompt,
		References: len(req.References),
		Masked:     req.Mask != nil,
	})
	if err != nil {
		return prompt
	}
	return text
}
