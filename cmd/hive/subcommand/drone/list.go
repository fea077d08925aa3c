package drone

import (
	"fmt"
	"os"

	"github.com/jackadi-io/hive/cmd/hive/connection"
	"github.com/jackadi-io/hive/cmd/hive/option"
	"github.com/jackadi-io/hive/cmd/hive/style"
	"github.com/jackadi-io/hive/internal/serializer"
	"github.com/spf13/cobra"
)

func listCommand() *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "list [OPTION] ...",
		Short: "list drones known by the team server",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			ctx, cancel := connection.Context()
			defer cancel()

			drones, err := connection.Dial().Drones(ctx)
			if err != nil {
				fmt.Fprintln(os.Stderr, style.RenderError(err.Error()))
				os.Exit(1)
			}

			if option.GetJSONFormat() {
				result, err := serializer.JSON.MarshalIndent(drones, "", "   ")
				if err != nil {
					fmt.Fprintln(os.Stderr, style.RenderError(fmt.Sprintf("failed to serialize response in JSON: %s", err)))
					os.Exit(1)
				}
				fmt.Println(string(result))
				return
			}

			in := style.Title("Drones")
			in += prettyDroneListSprint(drones, verbose)
			style.PrettyPrint(in)
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "show drone details")

	return cmd
}

// ListDrones returns the drone ids for shell completion.
func ListDrones() []string {
	ctx, cancel := connection.Context()
	defer cancel()

	drones, err := connection.Dial().Drones(ctx)
	if err != nil {
		return nil
	}
	ids := make([]string, 0, len(drones))
	for _, d := range drones {
		ids = append(ids, string(d.ID))
	}
	return ids
}
