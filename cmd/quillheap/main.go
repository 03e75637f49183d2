// Command quillheap exercises the storage manager from the command line:
// allocation stress runs, torture mode, and memory profiles.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/mattn/go-colorable"
	"github.com/spf13/cobra"
	flag "github.com/spf13/pflag"

	"github.com/quill-lang/quill/heap"
)

var (
	configPath string
	torture    bool
	reporting  bool
)

func newHeap() (*heap.Heap, error) {
	var cfg heap.Config
	if configPath != "" {
		var err error
		cfg, err = heap.LoadConfig(configPath)
		if err != nil {
			return nil, err
		}
	}
	cfg.Torture = cfg.Torture || torture
	cfg.Reporting = cfg.Reporting || reporting
	h := heap.New(cfg)
	h.SetReportWriter(colorable.NewColorableStdout())
	return h, nil
}

func main() {
	root := &cobra.Command{
		Use:           "quillheap",
		Short:         "exercise the quill storage manager",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetGlobalNormalizationFunc(func(f *flag.FlagSet, name string) flag.NormalizedName {
		return flag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})
	root.PersistentFlags().StringVar(&configPath, "config", "", "heap tuning YAML file")
	root.PersistentFlags().BoolVar(&torture, "torture", false, "collect before every allocation")
	root.PersistentFlags().BoolVar(&reporting, "gcinfo", false, "report after every collection")

	var cells, vectors, vectorLen int
	stress := &cobra.Command{
		Use:   "stress",
		Short: "churn the heap with list and vector allocations",
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := newHeap()
			if err != nil {
				return err
			}
			keep := h.Protect(h.AllocVector(heap.TypeVector, vectors))
			for i := 0; i < vectors; i++ {
				v := h.AllocVector(heap.TypeInt, vectorLen)
				ints := v.Ints()
				for j := range ints {
					ints[j] = int32(i + j)
				}
				h.SetVectorElt(keep, i, v)
			}
			for i := 0; i < cells; i++ {
				h.Cons(h.Nil, h.Nil)
			}
			h.GC()
			h.Unprotect(1)
			h.WriteMemorySummary(cmd.OutOrStdout())
			return nil
		},
	}
	stress.Flags().IntVar(&cells, "cells", 1000000, "list cells to allocate and drop")
	stress.Flags().IntVar(&vectors, "vectors", 1000, "integer vectors to allocate and keep")
	stress.Flags().IntVar(&vectorLen, "vector-len", 100, "length of each integer vector")

	profile := &cobra.Command{
		Use:   "profile",
		Short: "print live node counts by type after a full collection",
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := newHeap()
			if err != nil {
				return err
			}
			counts := h.MemoryProfile()
			for t, n := range counts {
				if n == 0 {
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-12s %d\n", heap.Type(t), n)
			}
			return nil
		},
	}

	config := &cobra.Command{
		Use:   "config",
		Short: "print the effective node and vector triggers",
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := newHeap()
			if err != nil {
				return err
			}
			var st heap.Stats
			h.ReadStats(&st)
			fmt.Fprintf(cmd.OutOrStdout(), "nsize:  %d nodes\n", st.NSize)
			fmt.Fprintf(cmd.OutOrStdout(), "vsize:  %d cells\n", st.VSize)
			return nil
		},
	}

	root.AddCommand(stress, profile, config)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "quillheap:", err)
		os.Exit(1)
	}
}
