// GoCard — Personalized greeting cards.
//
// Usage:
//
//	gocard render (-template <ref> | -card <name>) -text <name> [-o <file>] [options]
//	gocard serve [-addr :8080] [-catalog <path>]
//	gocard catalog [-catalog <path>]
//	gocard init [-o catalog.yaml]
//	gocard blank -o <file> [options]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/xob0t/GoCard/clients/server"
	"github.com/xob0t/GoCard/pkg/catalog"
	"github.com/xob0t/GoCard/pkg/generator"
)

const defaultConfigPath = "gocard.yaml"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "render":
		err = runRender(os.Args[2:])
	case "serve":
		err = runServe(os.Args[2:])
	case "catalog":
		err = runCatalog(os.Args[2:])
	case "init":
		err = runInit(os.Args[2:])
	case "blank":
		err = runBlank(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fatal(err)
	}
}

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	var (
		configPath  string
		catalogPath string
		addr        string
		open        bool
	)
	fs.StringVar(&configPath, "config", defaultConfigPath, "Config file (YAML)")
	fs.StringVar(&catalogPath, "catalog", "", "Catalog file or .gscards bundle")
	fs.StringVar(&addr, "addr", "", "Listen address (default from config, :8080)")
	fs.BoolVar(&open, "open", false, "Open the editor in a browser")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := setup(ctx, configPath, catalogPath)
	if err != nil {
		return err
	}
	defer a.close()
	if addr != "" {
		a.cfg.Server.Addr = addr
	}

	// Sessions render with fallback faces until the warm-up finishes.
	go a.loadFonts(ctx)

	srv, err := server.New(server.Options{
		Server:      a.cfg.Server,
		Compositor:  a.cfg.Compositor,
		Catalog:     a.catalog,
		Services:    a.services,
		Logger:      a.logger,
		OpenBrowser: open,
	})
	if err != nil {
		return err
	}
	return srv.Run(ctx)
}

func runCatalog(args []string) error {
	fs := flag.NewFlagSet("catalog", flag.ExitOnError)
	var (
		catalogPath string
		strict      bool
	)
	fs.StringVar(&catalogPath, "catalog", "", "Catalog file or .gscards bundle (default: built-in example)")
	fs.BoolVar(&strict, "strict", false, "Fail when the catalog has warnings")
	if err := fs.Parse(args); err != nil {
		return err
	}

	c := catalog.ExampleCatalog()
	if catalogPath != "" {
		loaded, cleanup, err := catalog.Load(catalogPath)
		if err != nil {
			return err
		}
		defer cleanup()
		c = loaded
	}

	fmt.Print(catalog.Describe(c))
	warnings := catalog.Validate(c)
	for _, w := range warnings {
		fmt.Fprintf(os.Stderr, "Warning: %s\n", w)
	}
	if strict && len(warnings) > 0 {
		return fmt.Errorf("%d catalog warning(s)", len(warnings))
	}
	return nil
}

func runInit(args []string) error {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	var (
		out   string
		force bool
	)
	fs.StringVar(&out, "o", "catalog.yaml", "Output path for the starter catalog")
	fs.BoolVar(&force, "force", false, "Overwrite an existing file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if _, err := os.Stat(out); err == nil && !force {
		return fmt.Errorf("%s already exists (use -force to overwrite)", out)
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	data, err := catalog.ExampleYAML()
	if err != nil {
		return fmt.Errorf("encode catalog: %w", err)
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return fmt.Errorf("write catalog: %w", err)
	}

	fmt.Printf("Created: %s\n", out)
	fmt.Println("Add card images under cards/ and founding-day-cards/, then run:")
	fmt.Printf("    gocard serve -catalog %s\n", out)
	return nil
}

// runBlank writes a solid-color placeholder template.
func runBlank(args []string) error {
	fs := flag.NewFlagSet("blank", flag.ExitOnError)
	var (
		output string
		width  int
		height int
		color  string
	)
	fs.StringVar(&output, "o", "", "Output file path (.png)")
	fs.IntVar(&width, "w", 1080, "Width in pixels")
	fs.IntVar(&height, "h", 1080, "Height in pixels")
	fs.StringVar(&color, "color", "random", "Background color: hex or 'random'")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if output == "" {
		return fmt.Errorf("output file is required (-o)")
	}

	if err := generator.Generate(output, generator.Config{Width: width, Height: height, Color: color}); err != nil {
		return err
	}
	fmt.Printf("Done: %s\n", output)
	return nil
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func printUsage() {
	fmt.Print(`GoCard — Personalized Greeting Cards (Pure Go)

USAGE:
    gocard render (-template <ref> | -card <name>) -text <name> [options]
    gocard serve [-addr :8080] [-catalog <path>] [-open]
    gocard catalog [-catalog <path>] [-strict]
    gocard init [-o catalog.yaml] [-force]
    gocard blank -o <file> [-w 1080] [-h 1080] [-color <hex>]

RENDER:
    -template <ref>        Template path, file:// or http(s) URL
    -card <name>           Card name from the catalog (with -catalog)
    -occasion <id>         Occasion / profile (default: ramadan)
    -text <name>           Name written on the card
    -preset <name>         elegant, professional or festive
    -lang <lang>           arabic or english
    -font <family>         Font family from the language's list
    -style <style>         normal, bold, italic or "bold italic"
    -color <hex>           Text color (#rrggbb)
    -size <px>             Font size in template pixels
    -shadow <px>           Shadow radius
    -x, -y <px>            Text center (default: template center)
    -o <file>              Output PNG (default: <prefix>-<name>.png in -dir)
    -dir <path>            Output directory when -o is not given

COMMON:
    -config <path>         Config file (default: gocard.yaml if present)
    -catalog <path>        catalog.json / catalog.yaml or .gscards bundle

EXAMPLES:
    gocard init
    gocard blank -o card.png -color "#1b3a5c"
    gocard render -template card.png -text Aisha -preset festive
    gocard render -catalog catalog.yaml -card Green -text "Omar" -lang english -o omar.png
    gocard serve -catalog catalog.yaml -open
`)
}
