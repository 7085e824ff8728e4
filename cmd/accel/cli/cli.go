// Package cli implements the accel command: device and target reporting,
// environment listing, a launch tuning sweep and tune cache inspection.
package cli

import (
	"fmt"
	"io"
	"slices"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/LynnColeArt/accel"
	"github.com/LynnColeArt/accel/envconfig"
	"github.com/LynnColeArt/accel/target"
)

// New returns the root command.
func New() *cobra.Command {
	cobra.EnableCommandSorting = false

	rootCmd := &cobra.Command{
		Use:           "accel",
		Short:         "Accelerator execution layer tools",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		Run: func(cmd *cobra.Command, args []string) {
			if version, _ := cmd.Flags().GetBool("version"); version {
				versionHandler(cmd)
				return
			}
			cmd.Print(cmd.UsageString())
		},
	}
	rootCmd.Flags().BoolP("version", "v", false, "Show version information")

	rootCmd.AddCommand(
		newInfoCmd(),
		newEnvCmd(),
		newTuneCmd(),
		newCacheCmd(),
	)
	return rootCmd
}

func versionHandler(cmd *cobra.Command) {
	version, sum := accel.Version()
	if version == "" {
		version = "(devel)"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "accel version %s %s\n", version, sum)
}

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	return table
}

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show the device and the build-time target constants",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := accel.NewContext()
			if err != nil {
				return err
			}
			defer c.Close()

			dev := c.Backend().Device()
			w := cmd.OutOrStdout()
			table := newTable(w, "PROPERTY", "VALUE")
			table.AppendBulk([][]string{
				{"backend", dev.Backend},
				{"device", dev.Name},
				{"cores", strconv.Itoa(dev.NumCores)},
				{"vector width", strconv.Itoa(dev.VectorWidth)},
				{"features", fmt.Sprint(dev.Features)},
				{"warp size", strconv.Itoa(dev.WarpSize)},
				{"max threads per block", strconv.Itoa(dev.MaxThreadsPerBlock)},
				{"max default shared memory", strconv.Itoa(dev.MaxDefaultSharedMemory)},
				{"max dynamic shared memory", strconv.Itoa(dev.MaxDynamicSharedMemory)},
			})
			table.Render()
			fmt.Fprintln(w)

			table = newTable(w, "CONSTANT", "VALUE")
			table.AppendBulk([][]string{
				{"WarpSize", strconv.Itoa(target.WarpSize)},
				{"MaxThreadsPerBlock", strconv.Itoa(target.MaxThreadsPerBlock)},
				{"MaxBlockDim", target.MaxBlockDim.String()},
				{"MaxDefaultSharedMemory", strconv.Itoa(target.MaxDefaultSharedMemory)},
				{"MaxKernelArgSize", strconv.Itoa(target.MaxKernelArgSize)},
				{"MaxConstantParamSize", strconv.Itoa(target.MaxConstantParamSize)},
				{"SharedMemoryBankWidth", strconv.Itoa(target.SharedMemoryBankWidth)},
				{"MaxReduceBlockSize(1,1)", strconv.Itoa(target.MaxReduceBlockSize(1, 1))},
				{"MaxMultiReduceBlockSize", strconv.Itoa(target.MaxMultiReduceBlockSize())},
				{"FastReduce", strconv.FormatBool(target.FastReduce)},
			})
			table.Render()
			return nil
		},
	}
}

func newEnvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "List the ACCEL_* environment variables and their values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			vars := envconfig.AsMap()
			names := make([]string, 0, len(vars))
			for k := range vars {
				names = append(names, k)
			}
			slices.Sort(names)

			table := newTable(cmd.OutOrStdout(), "NAME", "VALUE", "DESCRIPTION")
			for _, n := range names {
				v := vars[n]
				table.Append([]string{v.Name, fmt.Sprint(v.Value), v.Description})
			}
			table.Render()
			return nil
		},
	}
}

func newCacheCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cache [FILE]",
		Short: "Show a tune cache (default: ACCEL_TUNE_CACHE)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := envconfig.TuneCache()
			if len(args) > 0 {
				path = args[0]
			}
			if path == "" {
				return fmt.Errorf("no tune cache given and ACCEL_TUNE_CACHE is unset")
			}
			r := accel.NewRegistry()
			if err := r.LoadFile(path); err != nil {
				return err
			}
			printRegistry(cmd.OutOrStdout(), r)
			return nil
		},
	}
}

func printRegistry(w io.Writer, r *accel.Registry) {
	table := newTable(w, "NAME", "VOLUME", "AUX", "GRID", "BLOCK", "SHARED", "TIME")
	for _, e := range r.Entries() {
		table.Append([]string{
			e.Key.Name,
			e.Key.Volume,
			e.Key.Aux,
			e.Param.Grid.String(),
			e.Param.Block.String(),
			strconv.Itoa(e.Param.SharedBytes),
			fmt.Sprintf("%.3gs", e.Param.Time),
		})
	}
	table.Render()
}

func printProfile(w io.Writer, p *accel.APIProfile) {
	table := newTable(w, "CALL", "COUNT", "TOTAL", "MEAN")
	for _, e := range p.Entries() {
		table.Append([]string{e.Name, strconv.FormatInt(e.Calls, 10), e.Total.String(), e.Mean().String()})
	}
	table.Render()
}
