// render.go — Headless card rendering.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/xob0t/GoCard/pkg/catalog"
	"github.com/xob0t/GoCard/pkg/compositor"
)

type renderFlags struct {
	configPath  string
	catalogPath string
	templateRef string
	card        string
	occasion    string
	text        string
	preset      string
	lang        string
	font        string
	style       string
	color       string
	size        float64
	shadow      float64
	x, y        float64
	output      string
	dir         string

	set map[string]bool
}

func parseRenderFlags(args []string) (*renderFlags, error) {
	f := &renderFlags{}
	fs := flag.NewFlagSet("render", flag.ContinueOnError)
	fs.StringVar(&f.configPath, "config", defaultConfigPath, "Config file (YAML)")
	fs.StringVar(&f.catalogPath, "catalog", "", "Catalog file or .gscards bundle")
	fs.StringVar(&f.templateRef, "template", "", "Template path or URL")
	fs.StringVar(&f.card, "card", "", "Card name from the catalog")
	fs.StringVar(&f.occasion, "occasion", catalog.DefaultOccasion, "Occasion / profile")
	fs.StringVar(&f.text, "text", "", "Name written on the card")
	fs.StringVar(&f.preset, "preset", "", "Style preset")
	fs.StringVar(&f.lang, "lang", "", "arabic or english")
	fs.StringVar(&f.font, "font", "", "Font family")
	fs.StringVar(&f.style, "style", "", "Font style: normal, bold, italic, bold italic")
	fs.StringVar(&f.color, "color", "", "Text color (#rrggbb)")
	fs.Float64Var(&f.size, "size", 0, "Font size in pixels")
	fs.Float64Var(&f.shadow, "shadow", 0, "Shadow radius in pixels")
	fs.Float64Var(&f.x, "x", 0, "Text center x in template pixels")
	fs.Float64Var(&f.y, "y", 0, "Text center y in template pixels")
	fs.StringVar(&f.output, "o", "", "Output PNG path")
	fs.StringVar(&f.dir, "dir", ".", "Output directory when -o is not given")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	f.set = make(map[string]bool)
	fs.Visit(func(fl *flag.Flag) { f.set[fl.Name] = true })

	if f.templateRef == "" && f.card == "" {
		return nil, errors.New("one of -template or -card is required")
	}
	if f.text == "" {
		return nil, errors.New("-text is required")
	}
	return f, nil
}

// patch returns the style edits given on the command line.
func (f *renderFlags) patch() compositor.StylePatch {
	var p compositor.StylePatch
	if f.set["lang"] {
		lang := compositor.Language(f.lang)
		p.Language = &lang
	}
	if f.set["font"] {
		p.FontFamily = &f.font
	}
	if f.set["style"] {
		p.FontStyle = &f.style
	}
	if f.set["color"] {
		p.Color = &f.color
	}
	if f.set["size"] {
		p.FontSizePx = &f.size
	}
	if f.set["shadow"] {
		p.ShadowRadiusPx = &f.shadow
	}
	p.Text = &f.text
	return p
}

func runRender(args []string) error {
	f, err := parseRenderFlags(args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a, err := setup(ctx, f.configPath, f.catalogPath)
	if err != nil {
		return err
	}
	defer a.close()
	a.loadFonts(ctx)

	profile, err := a.profile(f.occasion)
	if err != nil {
		return err
	}
	sess, err := compositor.NewSession(a.services, a.sessionOptions(profile))
	if err != nil {
		return err
	}
	defer sess.Close()

	ref, err := a.templateRef(f)
	if err != nil {
		return err
	}
	if err := sess.SelectTemplate(ctx, ref); err != nil {
		return err
	}

	if f.preset != "" {
		if err := sess.ApplyPreset(f.preset); err != nil {
			return err
		}
	}
	if err := sess.Patch(f.patch()); err != nil {
		return err
	}
	if f.set["x"] || f.set["y"] {
		p := sess.Snapshot().Placement
		if f.set["x"] {
			p.X = f.x
		}
		if f.set["y"] {
			p.Y = f.y
		}
		if err := sess.MoveTo(p); err != nil {
			return err
		}
	}

	var (
		sink compositor.Sink
		path = f.output
	)
	fileSink := &compositor.FileSink{Dir: f.dir}
	if path != "" {
		sink = compositor.PathSink(path)
	} else {
		sink = fileSink
	}

	fmt.Printf("Rendering: %s\n", ref)
	art, err := sess.Export(ctx, sink)
	if err != nil {
		return err
	}
	if path == "" {
		path = fileSink.Path()
	}
	for _, w := range sess.Warnings() {
		fmt.Fprintf(os.Stderr, "Warning: %s\n", w.Message)
	}
	fmt.Printf("Done: %s (%dx%d)\n", path, art.Width, art.Height)
	return nil
}

// templateRef resolves -card through the catalog, or returns -template.
func (a *app) templateRef(f *renderFlags) (string, error) {
	if f.card == "" {
		return f.templateRef, nil
	}
	if a.catalog == nil {
		return "", errors.New("-card needs a catalog (-catalog or config)")
	}
	o, ok := a.catalog.Occasion(f.occasion)
	if !ok {
		return "", fmt.Errorf("occasion %q not in catalog", f.occasion)
	}
	card, ok := a.catalog.Card(f.occasion, f.card)
	if !ok {
		return "", fmt.Errorf("card %q not found in occasion %q", f.card, f.occasion)
	}
	return a.catalog.Resolve(o, card), nil
}
