package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/genai-kitchen/internal/boot"
	"github.com/fpang/genai-kitchen/internal/imageio"
	"github.com/fpang/genai-kitchen/internal/inference"
	"github.com/fpang/genai-kitchen/internal/kitchen"
)

type generateOptions struct {
	input       string
	prompt      string
	refs        []string
	mask        string
	model       string
	outDir      string
	historyDir  string
	temperature float64
	seed        int
	timeout     time.Duration
}

func newGenerateCmd() *cobra.Command {
	opts := generateOptions{}
	cmd := &cobra.Command{
		Use:       "generate <style-transfer|empty-room|compose>",
		Short:     "Run one generation and save the images",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(inference.OpStyleTransfer), string(inference.OpEmptyRoom), string(inference.OpCompose)},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd.Context(), inference.Operation(args[0]), opts, cmd.Flags().Changed("temperature"), cmd.Flags().Changed("seed"))
		},
	}
	f := cmd.Flags()
	f.StringVarP(&opts.input, "input", "i", "", "Kitchen photo (required)")
	f.StringVarP(&opts.prompt, "prompt", "p", "", "Style or composition instructions")
	f.StringArrayVarP(&opts.refs, "ref", "r", nil, "Reference image (repeatable, up to 4)")
	f.StringVar(&opts.mask, "mask", "", "Mask PNG limiting the edit (white = editable)")
	f.StringVarP(&opts.model, "model", "m", "", "Image model (default from KITCHEN_MODEL)")
	f.StringVarP(&opts.outDir, "out", "o", ".", "Directory for generated images")
	f.StringVar(&opts.historyDir, "history-dir", os.Getenv(boot.EnvHistoryDir), "Record the generation in this history directory")
	f.Float64Var(&opts.temperature, "temperature", 1.0, "Sampling temperature")
	f.IntVar(&opts.seed, "seed", 0, "Sampling seed")
	f.DurationVar(&opts.timeout, "timeout", 3*time.Minute, "Give up after this long")
	cmd.MarkFlagRequired("input")
	return cmd
}

func runGenerate(ctx context.Context, op inference.Operation, opts generateOptions, withTemp, withSeed bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	req := kitchen.GenerateRequest{
		Operation: op,
		Prompt:    opts.prompt,
		Model:     opts.model,
	}
	var err error
	if req.SourceImage, err = readDataURI(opts.input); err != nil {
		return err
	}
	for _, r := range opts.refs {
		uri, err := readDataURI(r)
		if err != nil {
			return err
		}
		req.ReferenceImages = append(req.ReferenceImages, uri)
	}
	if opts.mask != "" {
		if req.Mask, err = readDataURI(opts.mask); err != nil {
			return err
		}
	}
	if withTemp || withSeed {
		req.Params = map[string]any{}
		if withTemp {
			req.Params["temperature"] = opts.temperature
		}
		if withSeed {
			req.Params["seed"] = opts.seed
		}
	}

	cfg := boot.ConfigFromEnv("kitchen-cli")
	cfg.CommitHash = commitHash
	cfg.HistoryDir = opts.historyDir
	app, err := boot.Build(ctx, cfg)
	if err != nil {
		return err
	}

	start := time.Now()
	resp, err := app.Service.Generate(ctx, req)
	if err != nil {
		return err
	}
	log.Info().
		Str("requestId", resp.RequestID).
		Str("model", resp.Model).
		Int("images", len(resp.Images)).
		Dur("elapsed", time.Since(start)).
		Msg("Generation complete")

	if err := os.MkdirAll(opts.outDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	for i, img := range resp.Images {
		out, err := saveResult(opts.outDir, fmt.Sprintf("%s-%s-%d", op, shortID(resp.RequestID), i+1), img)
		if err != nil {
			return err
		}
		fmt.Println(out)
	}
	if resp.Text != "" {
		fmt.Println(resp.Text)
	}
	return nil
}

// readDataURI loads an image file as a data URI with its sniffed MIME type.
func readDataURI(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	mime, err := imageio.DetectMIME(data)
	if err != nil {
		return "", fmt.Errorf("%s: %w", path, err)
	}
	return imageio.EncodeDataURI(mime, data), nil
}

// saveResult writes a data URI image to dir/name.<ext>. Any other value is
// a remote URL and is returned unchanged.
func saveResult(dir, name, image string) (string, error) {
	if !strings.HasPrefix(image, "data:") {
		return image, nil
	}
	data, mime, err := imageio.ParseDataURI(image)
	if err != nil {
		return "", err
	}
	ext := ".png"
	switch mime {
	case "image/jpeg":
		ext = ".jpg"
	case "image/webp":
		ext = ".webp"
	}
	path := filepath.Join(dir, name+ext)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write result: %w", err)
	}
	return path, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
