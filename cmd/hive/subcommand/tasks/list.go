package tasks

import (
	"github.com/jackadi-io/hive/cmd/hive/connection"
	"github.com/jackadi-io/hive/cmd/hive/option"
	"github.com/jackadi-io/hive/cmd/hive/style"
	"github.com/spf13/cobra"
)

func listCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:               "list [DRONE]",
		Short:             "list tasks, of all drones or of one drone",
		Args:              cobra.MaximumNArgs(1),
		ValidArgsFunction: completeDrone,
		Run: func(cmd *cobra.Command, args []string) {
			droneID := ""
			if len(args) == 1 {
				droneID = args[0]
			}

			ctx, cancel := connection.Context()
			defer cancel()

			records, err := connection.Dial().Tasks(ctx, droneID)
			if err != nil {
				fail(err)
			}

			if option.GetJSONFormat() {
				printJSON(records)
				return
			}
			style.PrettyPrint(prettyTaskListSprint(records))
		},
	}

	return cmd
}
