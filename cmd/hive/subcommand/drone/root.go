package drone

import "github.com/spf13/cobra"

func Root() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "drones [OPTION] ...",
		Short:   "inspect drones",
		GroupID: "operations",
	}

	cmd.AddCommand(listCommand())

	return cmd
}
