// Command multitool converts asset source files into the wire formats
// NR32 carts ship: glTF meshes into NR3D GPU command streams, WAV audio
// into NRAD ADPCM streams, and a directory tree into an NRFS cartridge
// filesystem image. Grounded on the reference multitool/src/main.rs's
// subcommand layout, ported from clap's Subcommand enum onto one getopt
// Set per subcommand.
package main

import (
	"fmt"
	"log/slog"
	"os"

	getopt "github.com/pborman/getopt/v2"

	"github.com/nr32/nr32emu/multitool/audioenc"
	"github.com/nr32/nr32emu/multitool/cart"
	"github.com/nr32/nr32emu/multitool/mesh"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "mesh":
		err = runMesh(os.Args[1:])
	case "audio":
		err = runAudio(os.Args[1:])
	case "cart":
		err = runCart(os.Args[1:])
	case "-h", "--help", "help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand %q\n", os.Args[1])
		usage()
		os.Exit(1)
	}

	if err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: multitool <mesh|audio|cart> [flags]")
}

func runMesh(args []string) error {
	set := getopt.New()
	verbose := set.BoolLong("verbose", 'v', false, "enable debug logging")
	meshIdx := set.IntLong("mesh", 0, 0, "mesh index to export")
	scaleOpt := set.StringLong("scale", 0, "", "explicit scale factor (default: auto)")
	noRecenter := set.BoolLong("no-recenter", 0, false, "do not recenter the model before scaling")
	output := set.StringLong("output", 'o', "", "NR3D file to write")
	set.Parse(args)
	configureLogging(*verbose)

	rest := set.Args()
	if len(rest) != 1 {
		return fmt.Errorf("mesh: expected exactly one model file argument")
	}

	opts := mesh.DefaultOptions()
	opts.Mesh = *meshIdx
	opts.Recenter = !*noRecenter
	if *scaleOpt != "" {
		var s float32
		if _, err := fmt.Sscanf(*scaleOpt, "%f", &s); err != nil {
			return fmt.Errorf("mesh: invalid --scale %q: %w", *scaleOpt, err)
		}
		opts.Scale = &s
	}

	model, err := mesh.Load(rest[0], opts)
	if err != nil {
		return err
	}
	slog.Info("loaded mesh", "triangles", model.TriangleCount())

	if *output == "" {
		return nil
	}
	f, err := os.Create(*output)
	if err != nil {
		return err
	}
	defer f.Close()
	slog.Info("dumping model", "path", *output)
	return model.DumpNR3D(f)
}

func runAudio(args []string) error {
	set := getopt.New()
	verbose := set.BoolLong("verbose", 'v', false, "enable debug logging")
	channel := set.IntLong("channel", 0, -1, "source channel to use (default: downmix)")
	output := set.StringLong("output", 'o', "", "NRAD file to write")
	set.Parse(args)
	configureLogging(*verbose)

	rest := set.Args()
	if len(rest) != 1 {
		return fmt.Errorf("audio: expected exactly one WAV file argument")
	}

	opts := audioenc.DefaultOptions()
	opts.Channel = *channel

	buf, err := audioenc.Load(rest[0], opts)
	if err != nil {
		return err
	}
	slog.Info("loaded audio", "samples", len(buf.Samples), "sample_rate", buf.SampleRate)

	if *output == "" {
		return nil
	}
	f, err := os.Create(*output)
	if err != nil {
		return err
	}
	defer f.Close()
	slog.Info("dumping audio", "path", *output)
	return buf.DumpNRAD(f)
}

func runCart(args []string) error {
	set := getopt.New()
	verbose := set.BoolLong("verbose", 'v', false, "enable debug logging")
	output := set.StringLong("output", 'o', "cart.nrfs", "NRFS image to write")
	set.Parse(args)
	configureLogging(*verbose)

	rest := set.Args()
	if len(rest) != 1 {
		return fmt.Errorf("cart: expected exactly one source directory argument")
	}

	b := cart.New()
	if err := b.AddDir(rest[0]); err != nil {
		return err
	}
	raw, err := b.Build()
	if err != nil {
		return err
	}
	slog.Info("packed cart", "bytes", len(raw), "path", *output)
	return os.WriteFile(*output, raw, 0o644)
}

func configureLogging(verbose bool) {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}
