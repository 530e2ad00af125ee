// Package main provides the relayout CLI: layout optimization for ONNX
// model files.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"k8s.io/klog/v2"

	_ "github.com/born-ml/relayout/internal/backend/webgpu" // register WebGPU provider
	"github.com/born-ml/relayout/layout"
)

func main() {
	in := flag.String("in", "", "input .onnx model")
	out := flag.String("out", "", "output .onnx model (default: overwrite input)")
	provider := flag.String("backend", layout.CPUExecutionProvider, "execution provider to assign nodes to")
	list := flag.Bool("list-backends", false, "list available execution providers and exit")
	klog.InitFlags(nil)
	flag.Parse()

	if *list {
		fmt.Println(strings.Join(layout.AvailableBackends(), "\n"))
		return
	}
	if *in == "" {
		flag.Usage()
		os.Exit(2)
	}
	if *out == "" {
		*out = *in
	}

	if err := run(*in, *out, *provider); err != nil {
		fmt.Fprintf(os.Stderr, "relayout: %v\n", err)
		os.Exit(1)
	}
}

func run(in, out, provider string) error {
	g, err := layout.Load(in)
	if err != nil {
		return fmt.Errorf("load %s: %w", in, err)
	}

	assigned := layout.AssignBackend(g, provider)
	klog.V(1).Infof("assigned %d nodes", assigned)

	before := g.NumNodes()
	applied := layout.Optimize(g)
	fmt.Printf("%s: %d rewrites, %d -> %d nodes\n", in, applied, before, g.NumNodes())

	if err := layout.Save(g, out); err != nil {
		return fmt.Errorf("save %s: %w", out, err)
	}
	return nil
}
