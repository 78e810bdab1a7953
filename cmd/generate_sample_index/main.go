// Command generate_sample_index writes a synthetic embeddings index for
// local runs of aw139d without access to the real manual corpus.
package main

import (
	"fmt"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/hangarlabs/aw139-certainty/infrastructure/vectorstore"
	"github.com/hangarlabs/aw139-certainty/internal/testutils"
)

type options struct {
	size   int
	dims   int
	seed   uint64
	output string
}

func main() {
	opts := options{}
	cmd := &cobra.Command{
		Use:   "generate_sample_index",
		Short: "Write a synthetic embeddings.json",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			docs, err := generate(opts)
			if err != nil {
				return err
			}
			if err := save(opts.output, docs); err != nil {
				return err
			}

			wiring := 0
			for _, d := range docs {
				if vectorstore.IsWiringDiagram(d) {
					wiring++
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Generated sample index:\n- Path: %s\n- Documents: %d\n- Wiring diagrams: %d\n- Dimensions: %d\n",
				opts.output, len(docs), wiring, opts.dims)
			fmt.Fprintln(cmd.OutOrStdout(), "\nThe excerpts are synthetic and must not be used for maintenance decisions.")
			return nil
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&opts.size, "size", 200, "Number of documents")
	flags.IntVar(&opts.dims, "dims", 64, "Embedding dimensions")
	flags.Uint64Var(&opts.seed, "seed", 1, "Random seed")
	flags.StringVarP(&opts.output, "output", "o", "testdata/embeddings.json", "Output file path")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// generate builds size documents with random unit vectors. The output is
// deterministic for a given seed.
func generate(opts options) ([]vectorstore.Document, error) {
	if opts.size < 1 || opts.dims < 1 {
		return nil, fmt.Errorf("size and dims must be positive, got %d and %d", opts.size, opts.dims)
	}
	rng := rand.New(rand.NewPCG(opts.seed, opts.seed^0x9e3779b97f4a7c15))

	docs := testutils.SampleIndex(opts.size, true)
	for i := range docs {
		vec := make([]float32, opts.dims)
		var norm float64
		for j := range vec {
			v := rng.NormFloat64()
			vec[j] = float32(v)
			norm += v * v
		}
		norm = math.Sqrt(norm)
		for j := range vec {
			vec[j] = float32(float64(vec[j]) / norm)
		}
		docs[i].Embedding = vec
	}
	return docs, nil
}

func save(path string, docs []vectorstore.Document) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := vectorstore.WriteIndex(f, docs); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
