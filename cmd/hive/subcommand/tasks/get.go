package tasks

import (
	"fmt"
	"os"

	"github.com/jackadi-io/hive/cmd/hive/connection"
	"github.com/jackadi-io/hive/cmd/hive/option"
	"github.com/jackadi-io/hive/cmd/hive/style"
	"github.com/jackadi-io/hive/internal/task"
	"github.com/spf13/cobra"
)

func getCommand() *cobra.Command {
	var (
		output  string
		columns []string
	)
	cmd := &cobra.Command{
		Use:               "get DRONE TASK",
		Short:             "show a task and its result",
		Args:              cobra.ExactArgs(2),
		ValidArgsFunction: completeDrone,
		Run: func(cmd *cobra.Command, args []string) {
			ctx, cancel := connection.Context()
			defer cancel()

			record, err := connection.Dial().Task(ctx, args[0], args[1])
			if err != nil {
				fail(err)
			}

			if output != "" {
				if err := os.WriteFile(output, []byte(record.Result), 0o600); err != nil {
					fail(fmt.Errorf("failed to write result: %w", err))
				}
			}

			if option.GetJSONFormat() {
				printJSON(record)
				return
			}
			style.PrettyPrint(prettyTaskSprint(record, output == "" || record.ResultType != task.BINARY, columns))
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "also write the raw result to this file")
	cmd.Flags().StringSliceVar(&columns, "columns", nil, "columns of a table result to show, dotted paths for JSON objects")

	return cmd
}
