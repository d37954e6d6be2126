// Command analyze compiles every circuit and reports its size under both
// proving schemes.
package main

import (
	"fmt"
	"time"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/frontend"
	"github.com/dustin/go-humanize"
	flag "github.com/spf13/pflag"

	"zkpoe/pkg/log"
	"zkpoe/pkg/zkruntime"
)

// Rough proving cost on a laptop, per thousand constraints.
const msPerKConstraint = 15.0

func main() {
	schemes := flag.StringSlice("scheme", []string{zkruntime.SchemeGroth16, zkruntime.SchemePlonk}, "schemes to compile for")
	flag.Parse()

	fmt.Println("=== Circuit Size Analysis ===")
	for _, name := range *schemes {
		scheme, err := zkruntime.NewScheme(name)
		if err != nil {
			log.Fatalf("%v", err)
		}
		fmt.Printf("\n[%s]\n", scheme.Name())
		for _, id := range zkruntime.Circuits {
			if err := analyze(scheme, id); err != nil {
				log.Fatalf("%s: %v", id, err)
			}
		}
	}
}

func analyze(scheme zkruntime.Scheme, id zkruntime.CircuitID) error {
	def, err := zkruntime.Definition(id)
	if err != nil {
		return err
	}
	start := time.Now()
	ccs, err := frontend.Compile(ecc.BN254.ScalarField(), scheme.Builder(), def)
	if err != nil {
		return fmt.Errorf("compilation failed: %w", err)
	}
	took := time.Since(start)
	n := ccs.GetNbConstraints()
	estimate := time.Duration(float64(n) * msPerKConstraint / 1000 * float64(time.Millisecond))
	fmt.Printf("  %-10s %9s constraints  %2d public  compiled in %-8v est. prove ~%v\n",
		id, humanize.Comma(int64(n)), zkruntime.NbPublicInputs(id),
		took.Round(time.Millisecond), estimate.Round(time.Millisecond))
	return nil
}
