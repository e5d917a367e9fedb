// Command supernote-meta parses a single Supernote notebook file and
// prints its structural metadata tree as JSON (spec §6's metadata export
// contract). It intentionally stays minimal: no directory globbing, no
// progress UI, no PDF/SVG export wrappers — those are out of scope
// (spec.md §1's Non-goals), so CLI argument parsing stays minimal too.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/snotelib/supernote/config"
	"github.com/snotelib/supernote/parser"
)

func main() {
	var input, configPath string
	var indent bool

	flag.StringVar(&input, "i", "", "Input .note file")
	flag.StringVar(&input, "input", "", "Input .note file")
	flag.StringVar(&configPath, "config", "config.toml", "Path to config file (TOML)")
	flag.BoolVar(&indent, "indent", true, "Pretty-print the JSON output")
	flag.Parse()

	if input == "" {
		fmt.Fprintln(os.Stderr, "Usage: supernote-meta -i <input.note> [--config config.toml] [--indent=false]")
		flag.PrintDefaults()
		os.Exit(1)
	}

	if err := run(input, configPath, indent); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(input, configPath string, indent bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	f, err := os.Open(input)
	if err != nil {
		return fmt.Errorf("opening %s: %w", input, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("statting %s: %w", input, err)
	}

	m, err := parser.Parse(f, info.Size(), cfg.SignaturePolicy())
	if err != nil {
		return fmt.Errorf("parsing %s: %w", input, err)
	}

	enc := json.NewEncoder(os.Stdout)
	if indent {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(m)
}
