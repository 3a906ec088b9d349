// Command equivcheck builds a network from a topology file and checks that
// every available backend produces the same outputs as the reference one.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/openfluke/perceptra/gpu"
	"github.com/openfluke/perceptra/nn"
)

type config struct {
	topology string
	weights  string
	save     string
	samples  int
	seed     int64
	tol      float64
	workers  int
	useGPU   bool
	verbose  bool
}

func main() {
	var cfg config
	flag.StringVar(&cfg.topology, "topology", "", "topology JSON file (required)")
	flag.StringVar(&cfg.weights, "weights", "", "memento JSON file; random weights when empty")
	flag.StringVar(&cfg.save, "save", "", "write the weights used to this memento file")
	flag.IntVar(&cfg.samples, "samples", 32, "number of random input vectors")
	flag.Int64Var(&cfg.seed, "seed", 0, "seed for weights and inputs; topology seed or time when 0")
	flag.Float64Var(&cfg.tol, "tol", nn.DefaultTolerance, "allowed relative or absolute difference")
	flag.IntVar(&cfg.workers, "workers", 0, "parallel backend goroutines, 0 for one per CPU")
	flag.BoolVar(&cfg.useGPU, "gpu", false, "also compare the webgpu backend")
	flag.BoolVar(&cfg.verbose, "v", false, "log every forward pass")
	probe := flag.Bool("probe", false, "print the webgpu adapter report and exit")
	flag.Parse()

	if *probe {
		rep, err := gpu.ProbeJSON()
		if err != nil {
			log.Fatalf("probe: %v", err)
		}
		fmt.Println(rep)
		return
	}
	if cfg.topology == "" {
		log.Fatal("please provide -topology")
	}

	topo, err := nn.LoadTopology(cfg.topology)
	if err != nil {
		log.Fatalf("topology: %v", err)
	}
	if cfg.seed == 0 {
		cfg.seed = topo.Seed
	}

	numeric, _ := nn.ParseNumericType(topo.Numeric)
	ok := false
	switch numeric {
	case nn.TypeF64:
		ok, err = run[float64](topo, cfg)
	default:
		ok, err = run[float32](topo, cfg)
	}
	if err != nil {
		log.Fatal(err)
	}
	if !ok {
		os.Exit(1)
	}
}

// run compares every backend against the reference one and reports whether
// all of them agreed.
func run[V nn.Float](topo *nn.Topology, cfg config) (bool, error) {
	var opts []nn.Option
	if cfg.verbose {
		opts = append(opts, nn.WithObserver(nn.LogObserver{}))
	}
	ref, err := nn.BuildNetwork[V](topo, opts...)
	if err != nil {
		return false, err
	}
	par, err := nn.BuildNetwork[V](topo, append(opts, nn.WithExecutor(nn.NewParallel(cfg.workers)))...)
	if err != nil {
		return false, err
	}

	rng := nn.NewInitializer(cfg.seed)
	var m nn.Memento[V]
	if cfg.weights != "" {
		if m, err = nn.LoadMemento[V](cfg.weights); err != nil {
			return false, err
		}
	} else {
		m = nn.InitMemento[V](rng, ref.Memento().Shape())
		log.Printf("random weights, seed %d", rng.Seed())
	}
	if cfg.save != "" {
		if err := nn.SaveMemento(cfg.save, m); err != nil {
			return false, err
		}
	}

	inputs := make([][]V, cfg.samples)
	for i := range inputs {
		inputs[i] = make([]V, topo.InputWidth)
		for j := range inputs[i] {
			inputs[i][j] = V(rng.Uniform(-1, 1))
		}
	}

	bp := nn.ExtractBlueprint(ref)
	log.Printf("%s: %d layers, %d parameters, numeric %s", topo.ID, bp.TotalLayers, bp.TotalParams, bp.Numeric)

	agreed := true
	check := func(rep *nn.EquivalenceReport, err error) error {
		if rep != nil && rep.Samples > 0 {
			fmt.Println(rep)
		}
		if err != nil {
			if rep != nil && rep.Mismatches > 0 {
				agreed = false
				return nil
			}
			return err
		}
		return nil
	}

	if err := check(nn.CheckEquivalence[V](ref, par, m, inputs, cfg.tol)); err != nil {
		return false, err
	}

	if cfg.useGPU {
		ref32, err := nn.RebindNetwork[float32](ref)
		if err != nil {
			return false, err
		}
		g, err := gpu.FromNetwork(ref32)
		if err != nil {
			return false, err
		}
		defer g.Release()

		in32 := make([][]float32, len(inputs))
		for i, in := range inputs {
			in32[i] = nn.ConvertSlice[float32](in)
		}
		if err := check(nn.CheckEquivalence[float32](ref32, g, nn.ConvertMemento[float32](m), in32, cfg.tol)); err != nil {
			return false, err
		}
	}
	return agreed, nil
}
