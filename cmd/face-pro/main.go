// Command face-pro inspects and exercises the ONNX models behind the
// face-pro pipeline.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/Malagurti/face-pro/internal/catalog"
	"github.com/Malagurti/face-pro/internal/fetch"
	"github.com/Malagurti/face-pro/internal/onnx"
	"github.com/Malagurti/face-pro/internal/probe"
	"github.com/Malagurti/face-pro/internal/session"
)

const version = "v0.2.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "probe":
		runProbe(os.Args[2:])
	case "inspect":
		runInspect(os.Args[2:])
	case "models":
		runModels(os.Args[2:])
	case "fetch":
		runFetch(os.Args[2:])
	case "version":
		fmt.Printf("face-pro %s\n", version)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// runProbe prints a model's shapes three ways: statically inferred, as the
// runtime session declares them, and as materialized by one zero-filled
// inference.
func runProbe(args []string) {
	fs := flag.NewFlagSet("probe", flag.ExitOnError)
	placeholder := fs.Int64("placeholder", probe.DefaultPlaceholder, "substitute for dynamic dimensions in the probe input")
	lib := fs.String("lib", "", "onnxruntime shared library path (default: $"+session.SharedLibraryEnv+" or the system location)")
	cuda := fs.Bool("cuda", false, "run on the CUDA execution provider")
	threads := fs.Int("threads", 0, "intra-op thread count (0 keeps the runtime default)")
	fs.Parse(args)

	path := fs.Arg(0)
	if path == "" {
		fmt.Fprintln(os.Stderr, "usage: face-pro probe [flags] <model.onnx>")
		fs.PrintDefaults()
		os.Exit(1)
	}

	if err := session.Initialize(*lib); err != nil {
		fatal(err)
	}
	defer session.Shutdown()

	opts := session.Options{
		LibraryPath:    *lib,
		UseCUDA:        *cuda,
		IntraOpThreads: *threads,
	}
	p := probe.New(probe.NewONNXGraph(), probe.NewORTOpener(opts), os.Stdout)
	p.Placeholder = *placeholder
	if err := p.Run(path); err != nil {
		fatal(err)
	}
}

// runInspect prints header facts and declared shapes straight from the model
// file, without touching onnxruntime.
func runInspect(args []string) {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	fs.Parse(args)

	path := fs.Arg(0)
	if path == "" {
		fmt.Fprintln(os.Stderr, "usage: face-pro inspect <model.onnx>")
		os.Exit(1)
	}

	model, err := onnx.ParseFile(path)
	if err != nil {
		fatal(err)
	}

	s := onnx.Summarize(model)
	fmt.Printf("graph: %s\n", s.GraphName)
	fmt.Printf("producer: %s %s\n", s.ProducerName, s.ProducerVersion)
	fmt.Printf("ir version: %d, opset: %d\n", s.IRVersion, s.OpsetVersion)
	fmt.Printf("nodes: %d, initializers: %d\n", s.NodeCount, s.InitializerCount)

	for i, t := range model.Graph.InputTensors() {
		fmt.Printf("input[%d]: %s %s %s\n", i, t.Name, t.Shape, t.DType())
	}
	for i, t := range onnx.InferredOutputs(model) {
		fmt.Printf("output[%d]: %s %s %s\n", i, t.Name, t.Shape, t.DType())
	}
}

// runModels lists the catalog and marks the selected best per kind.
func runModels(args []string) {
	fs := flag.NewFlagSet("models", flag.ExitOnError)
	dir := fs.String("dir", "models", "catalog directory")
	fs.Parse(args)

	best := catalog.SelectBest(*dir)
	selected := map[string]string{}
	if best.FaceDetection != nil {
		selected[catalog.KindFaceDetection] = best.FaceDetection.Version
	}
	if best.Liveness != nil {
		selected[catalog.KindLiveness] = best.Liveness.Version
	}

	for _, entry := range catalog.Discover(*dir) {
		fmt.Printf("%s:\n", entry.Kind)
		if len(entry.Versions) == 0 {
			fmt.Println("  (none)")
			continue
		}
		for _, v := range entry.Versions {
			mark := " "
			if selected[entry.Kind] == v {
				mark = "*"
			}
			state := "not fetched"
			if catalog.ModelPath(*dir, entry.Kind, v) != "" {
				state = "ready"
			}
			fmt.Printf("  %s %s (%s)\n", mark, v, state)
		}
	}
}

// runFetch downloads every catalog model that has metadata but no file yet.
func runFetch(args []string) {
	fs := flag.NewFlagSet("fetch", flag.ExitOnError)
	dir := fs.String("dir", "models", "catalog directory")
	fs.Parse(args)

	var f fetch.Fetcher
	failed := false
	for _, res := range f.Missing(*dir) {
		switch res.Status {
		case fetch.StatusDownloaded:
			fmt.Printf("%s/%s: downloaded to %s\n", res.Kind, res.Version, res.Path)
		case fetch.StatusExists:
			fmt.Printf("%s/%s: already present\n", res.Kind, res.Version)
		case fetch.StatusSkipped:
			fmt.Printf("%s/%s: skipped (no url or checksum in metadata)\n", res.Kind, res.Version)
		case fetch.StatusFailed:
			fmt.Fprintf(os.Stderr, "%s/%s: %v\n", res.Kind, res.Version, res.Err)
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: face-pro <command> [arguments]")
	fmt.Println("\nCommands:")
	fmt.Println("  probe <model.onnx> [-placeholder N] [-lib path] [-cuda] [-threads N]")
	fmt.Println("  inspect <model.onnx>")
	fmt.Println("  models [-dir <catalog>]")
	fmt.Println("  fetch [-dir <catalog>]")
	fmt.Println("  version")
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
