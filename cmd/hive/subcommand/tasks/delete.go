package tasks

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackadi-io/hive/cmd/hive/connection"
	"github.com/jackadi-io/hive/cmd/hive/style"
	"github.com/spf13/cobra"
)

func deleteCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:               "delete DRONE TASK",
		Aliases:           []string{"cancel"},
		Short:             "delete a pending task or cancel a running one",
		Args:              cobra.ExactArgs(2),
		ValidArgsFunction: completeDrone,
		Run: func(cmd *cobra.Command, args []string) {
			ctx, cancel := connection.Context()
			defer cancel()

			err := connection.Dial().DeleteTask(ctx, args[0], args[1])
			var apiErr *connection.APIError
			if errors.As(err, &apiErr) && apiErr.Status == http.StatusBadRequest {
				fail(fmt.Errorf("task %s cannot be deleted: %s", args[1], apiErr.Message))
			}
			if err != nil {
				fail(err)
			}

			style.PrettyPrint(fmt.Sprintf("task %s: deleted or cancellation queued\n", style.RenderID(args[1])))
		},
	}

	return cmd
}
