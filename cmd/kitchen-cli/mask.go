package main

import (
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/genai-kitchen/internal/imageio"
	"github.com/fpang/genai-kitchen/internal/kitchen"
	"github.com/fpang/genai-kitchen/internal/mask"
)

type maskOptions struct {
	input     string
	output    string
	importIn  string
	preview   string
	selection string
	strokes   []string
	brushSize float64
	opacity   float64
	hardness  float64
	feather   float64
	erase     bool
	invert    bool
}

func newMaskCmd() *cobra.Command {
	opts := maskOptions{}
	b := mask.DefaultBrush()
	cmd := &cobra.Command{
		Use:   "mask",
		Short: "Build a selection mask for a photo",
		Long: `Applies the given edits to a mask over the photo, in order: import,
quick selection, strokes, invert. Writes the mask (white = selected).

Strokes are space-separated x,y points in image pixels, e.g.
  --stroke "120,80 300,80 300,240"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMask(opts)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&opts.input, "input", "i", "", "Source photo (required)")
	f.StringVarP(&opts.output, "output", "o", "mask.png", "Mask output file (.png or .jpg)")
	f.StringVar(&opts.importIn, "import", "", "Start from an existing mask image")
	f.StringVar(&opts.preview, "preview", "", "Also write the photo with a red mask overlay")
	f.StringVar(&opts.selection, "select", "", "Quick selection: all or edges")
	f.StringArrayVar(&opts.strokes, "stroke", nil, "Brush stroke as \"x,y x,y ...\" (repeatable)")
	f.Float64Var(&opts.brushSize, "brush-size", b.Size, "Brush diameter in pixels")
	f.Float64Var(&opts.opacity, "opacity", b.Opacity, "Brush opacity 0..1")
	f.Float64Var(&opts.hardness, "hardness", b.Hardness, "Brush hardness 0..1")
	f.Float64Var(&opts.feather, "feather", b.Feather, "Soft edge beyond the radius in pixels")
	f.BoolVar(&opts.erase, "erase", false, "Strokes erase instead of paint")
	f.BoolVar(&opts.invert, "invert", false, "Invert the mask after all other edits")
	cmd.MarkFlagRequired("input")
	return cmd
}

func runMask(opts maskOptions) error {
	data, err := os.ReadFile(opts.input)
	if err != nil {
		return fmt.Errorf("read photo: %w", err)
	}
	img, _, err := imageio.Decode(data)
	if err != nil {
		return err
	}

	mode := mask.ModeDraw
	if opts.erase {
		mode = mask.ModeErase
	}
	ed := mask.NewEditor(img, mask.WithBrush(mask.Brush{
		Size:     opts.brushSize,
		Opacity:  opts.opacity,
		Hardness: opts.hardness,
		Feather:  opts.feather,
		Mode:     mode,
	}))

	if opts.importIn != "" {
		f, err := os.Open(opts.importIn)
		if err != nil {
			return fmt.Errorf("open mask: %w", err)
		}
		err = ed.Import(f)
		f.Close()
		if err != nil {
			return err
		}
	}
	if opts.selection != "" {
		if err := ed.ApplyQuickSelection(mask.SelectionMode(opts.selection)); err != nil {
			return err
		}
	}
	for _, s := range opts.strokes {
		points, err := parseStroke(s)
		if err != nil {
			return err
		}
		for i, p := range points {
			ed.Draw(p[0], p[1], i == 0)
		}
		ed.EndStroke()
	}
	if opts.invert {
		ed.Invert()
	}

	out, err := os.Create(opts.output)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer out.Close()
	if err := ed.Export(out, mask.ParseFormat(filepath.Ext(opts.output))); err != nil {
		return err
	}

	if opts.preview != "" {
		pf, err := os.Create(opts.preview)
		if err != nil {
			return fmt.Errorf("create preview: %w", err)
		}
		defer pf.Close()
		if err := png.Encode(pf, ed.Preview()); err != nil {
			return fmt.Errorf("encode preview: %w", err)
		}
	}

	stats := ed.Stats()
	log.Info().
		Str("output", opts.output).
		Float64("coverage", ed.Coverage()).
		Int("snapshots", stats.Len).
		Msg("Mask written")
	return nil
}

// parseStroke reads "x,y x,y ..." into points.
func parseStroke(s string) ([][2]float64, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty stroke")
	}
	points := make([][2]float64, 0, len(fields))
	for _, f := range fields {
		xs, ys, ok := strings.Cut(f, ",")
		if !ok {
			return nil, fmt.Errorf("stroke point %q: want x,y", f)
		}
		x, err := strconv.ParseFloat(xs, 64)
		if err != nil {
			return nil, fmt.Errorf("stroke point %q: %w", f, err)
		}
		y, err := strconv.ParseFloat(ys, 64)
		if err != nil {
			return nil, fmt.Errorf("stroke point %q: %w", f, err)
		}
		points = append(points, [2]float64{x, y})
	}
	return points, nil
}

func newEdgesCmd() *cobra.Command {
	var input, output string
	cmd := &cobra.Command{
		Use:   "edges",
		Short: "Write the edge quick-selection mask of a photo",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(input)
			if err != nil {
				return fmt.Errorf("read photo: %w", err)
			}
			pngData, coverage, err := kitchen.EdgeMask(data)
			if err != nil {
				return err
			}
			if err := os.WriteFile(output, pngData, 0o644); err != nil {
				return fmt.Errorf("write mask: %w", err)
			}
			fmt.Printf("%s (coverage %.1f%%)\n", output, coverage*100)
			return nil
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "", "Source photo (required)")
	cmd.Flags().StringVarP(&output, "output", "o", "edges.png", "Mask output PNG")
	cmd.MarkFlagRequired("input")
	return cmd
}
