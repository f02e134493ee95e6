package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/joshp123/sharkd/internal/cleanmap"
)

// renderCmd draws a saved RawMap JSON document to a PNG file.
func renderCmd(args []string) {
	flags := flag.NewFlagSet("render", flag.ExitOnError)
	in := flags.String("in", "", "RawMap JSON file ({\"grid\":..., \"robot\":..., \"charger\":...})")
	out := flags.String("out", "map.png", "Output PNG path")
	width := flags.Int("width", 800, "Canvas width")
	height := flags.Int("height", 600, "Canvas height")
	_ = flags.Parse(args)

	if *in == "" {
		fatal("render", fmt.Errorf("--in is required"))
	}
	if *width <= 0 || *height <= 0 {
		fatal("render", fmt.Errorf("width and height must be positive"))
	}
	data, err := os.ReadFile(*in)
	if err != nil {
		fatal("render", err)
	}
	var raw cleanmap.RawMap
	if err := json.Unmarshal(data, &raw); err != nil {
		fatal("render", fmt.Errorf("decode %s: %w", *in, err))
	}

	model, diag := cleanmap.DecodeRaw(raw)
	for _, issue := range diag.Issues {
		fmt.Fprintf(os.Stderr, "warning: %s %s: %s\n", issue.Field, issue.Kind, issue.Detail)
	}
	vp := cleanmap.DefaultViewport()
	vp.FitGrid(model.Grid(), *width, *height)
	png, err := cleanmap.EncodePNG(cleanmap.RenderImage(model, vp, *width, *height))
	if err != nil {
		fatal("render", err)
	}
	if err := os.WriteFile(*out, png, 0o644); err != nil {
		fatal("render", err)
	}
	fmt.Printf("Wrote %s (%dx%d, %d cleaned cells, %.2f m2)\n", *out, *width, *height, model.CleanedCellCount(), model.CleanedAreaSqm())
}
