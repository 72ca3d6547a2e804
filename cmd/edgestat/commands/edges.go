package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/XinhuiTian/spark/dataflow"
	"github.com/XinhuiTian/spark/disk"
	"github.com/XinhuiTian/spark/edgerdd"
)

// collectionFlags select a saved collection.
type collectionFlags struct {
	attr *choiceFlag
	guid string
}

func newCollectionFlags(c *cobra.Command, guidRequired bool) *collectionFlags {
	f := &collectionFlags{attr: newChoiceFlag("none", "none", "long", "double", "string")}
	c.Flags().Var(f.attr, "attr", "Edge attribute type: none, long, double or string")
	c.Flags().StringVar(&f.guid, "guid", "", "Collection id in the data directory")
	if guidRequired {
		c.MarkFlagRequired("guid")
	}
	return f
}

func (f *collectionFlags) ops(a *app) (edgeOps, error) {
	return opsFor(a, f.attr.String())
}

// guidOrNew returns the --guid value, or a fresh id when it is empty.
func guidOrNew(guid string) dataflow.GUID {
	if guid == "" {
		return dataflow.NewGUID()
	}
	return dataflow.GUID(guid)
}

func (a *app) importCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "import <parquet dir>",
		Short: "Import a Parquet edge list into the ordered data directory",
		Args:  cobra.ExactArgs(1),
	}
	flags := newCollectionFlags(c, false)
	c.RunE = func(cmd *cobra.Command, args []string) error {
		ops, err := flags.ops(a)
		if err != nil {
			return err
		}
		guid := guidOrNew(flags.guid)
		if err := ops.Import(cmd.Context(), args[0], guid); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), guid)
		return nil
	}
	return c
}

func (a *app) exportCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "export",
		Short: "Export a collection as a Parquet edge list",
	}
	flags := newCollectionFlags(c, true)
	var outputDir string
	c.Flags().StringVarP(&outputDir, "output", "o", "", "Output directory (default: <unordered_data_dir>/<guid>)")
	c.RunE = func(cmd *cobra.Command, _ []string) error {
		ops, err := flags.ops(a)
		if err != nil {
			return err
		}
		return ops.Export(cmd.Context(), dataflow.GUID(flags.guid), outputDir)
	}
	return c
}

func (a *app) degreesCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "degrees",
		Short: "Compute per-vertex degree counts",
	}
	flags := newCollectionFlags(c, true)
	var outputDir string
	direction := newChoiceFlag("out", "in", "out")
	mergeMode := newChoiceFlag("sum", "sum", "max")
	c.Flags().StringVarP(&outputDir, "output", "o", "", "Write Parquet degree rows here instead of stdout")
	c.Flags().Var(direction, "direction", "in or out")
	c.Flags().Var(mergeMode, "merge", "sum for global degrees, max for the largest single-shard count")
	c.RunE = func(cmd *cobra.Command, _ []string) error {
		ops, err := flags.ops(a)
		if err != nil {
			return err
		}
		return ops.Degrees(cmd.Context(), dataflow.GUID(flags.guid),
			direction.String(), mergeMode.String(), outputDir, cmd.OutOrStdout())
	}
	return c
}

func (a *app) statsCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "stats",
		Short: "Print the size and degree extremes of a collection",
	}
	flags := newCollectionFlags(c, true)
	c.RunE = func(cmd *cobra.Command, _ []string) error {
		ops, err := flags.ops(a)
		if err != nil {
			return err
		}
		return ops.Stats(cmd.Context(), dataflow.GUID(flags.guid), cmd.OutOrStdout())
	}
	return c
}

func (a *app) exampleCmd() *cobra.Command {
	var guid string
	c := &cobra.Command{
		Use:   "example",
		Short: "Save the built-in example graph (string attributes)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			id := guidOrNew(guid)
			g := edgerdd.ExampleGraph(a.cfg.NumPartitions)
			if err := disk.SaveEdgeRDD(cmd.Context(), a.engine, g, disk.StringCodec{}, a.cfg.DataDir, id); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
	c.Flags().StringVar(&guid, "guid", "", "Collection id in the data directory")
	return c
}
