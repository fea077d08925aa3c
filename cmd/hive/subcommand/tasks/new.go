package tasks

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jackadi-io/hive/cmd/hive/connection"
	"github.com/jackadi-io/hive/cmd/hive/option"
	"github.com/jackadi-io/hive/cmd/hive/style"
	"github.com/jackadi-io/hive/cmd/hive/subcommand/drone"
	"github.com/jackadi-io/hive/internal/api"
	"github.com/jackadi-io/hive/internal/task"
	"github.com/spf13/cobra"
)

const followInterval = time.Second

func newCommand() *cobra.Command {
	var (
		alias      string
		artefact   string
		resultType string
		wait       bool
		timeout    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "new DRONE COMMAND [-- ARGS...]",
		Short: "queue a task for a drone",
		Long: `Queue a task for a drone. The drone runs it on its next session.

Commands:
  run     PROGRAM [ARGS...]               run a program
  shell   COMMAND_LINE                    run a command line split like a shell would
  runas   DOMAIN\USER PASSWORD PROGRAM    run a program as another account
  upload  DESTINATION --artefact FILE     write a local file on the drone`,
		Args: cobra.MinimumNArgs(2),
		ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
			switch len(args) {
			case 0:
				return drone.ListDrones(), cobra.ShellCompDirectiveNoFileComp
			case 1:
				return task.CommandNames(), cobra.ShellCompDirectiveNoFileComp
			default:
				return nil, cobra.ShellCompDirectiveDefault
			}
		},
		Run: func(cmd *cobra.Command, args []string) {
			req := api.CreateTaskRequest{
				Command:    args[1],
				Alias:      alias,
				Arguments:  args[2:],
				ResultType: resultType,
			}
			if artefact != "" {
				data, err := os.ReadFile(artefact)
				if err != nil {
					fail(fmt.Errorf("failed to read artefact: %w", err))
				}
				req.ArtefactPath = artefact
				req.Artefact = data
			}

			client := connection.Dial()
			ctx, cancel := connection.Context()
			record, err := client.CreateTask(ctx, args[0], req)
			cancel()
			if err != nil {
				fail(err)
			}

			if !wait {
				if option.GetJSONFormat() {
					printJSON(record)
					return
				}
				style.PrettyPrint(fmt.Sprintf("task %s queued for %s\n", style.RenderID(string(record.TaskID)), record.DroneID))
				return
			}

			followCtx, stop := context.WithTimeout(context.Background(), timeout)
			defer stop()
			get := func(ctx context.Context) (task.Record, error) {
				return client.Task(ctx, args[0], string(record.TaskID))
			}

			out := io.Writer(os.Stdout)
			if option.GetJSONFormat() {
				out = io.Discard
			}
			record, err = follow(followCtx, get, followInterval, out)
			if err != nil {
				fail(fmt.Errorf("task %s: %w", record.TaskID, err))
			}
			if option.GetJSONFormat() {
				printJSON(record)
				return
			}
			style.PrettyPrint(fmt.Sprintf("\ntask %s: %s\n", style.RenderID(string(record.TaskID)), style.RenderStatus(record.Status)))
		},
	}

	cmd.Flags().StringVar(&alias, "alias", "", "task label (default: the command name)")
	cmd.Flags().StringVar(&artefact, "artefact", "", "local file shipped with the task")
	cmd.Flags().StringVar(&resultType, "result-type", "string", "how the result is rendered: string, table or binary")
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "wait for the task to end and stream its output")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Minute, "maximum time to wait with --wait")

	_ = cmd.RegisterFlagCompletionFunc("result-type", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{
			"string\tplain text output",
			"table\tJSON array of objects or whitespace separated columns",
			"binary\traw bytes, save them with tasks get --output",
		}, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

// follow polls the task until it reaches a terminal state and writes the
// result as it grows.
func follow(ctx context.Context, get func(context.Context) (task.Record, error), interval time.Duration, w io.Writer) (task.Record, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	printed := 0
	for {
		record, err := get(ctx)
		if err != nil {
			return record, err
		}
		if len(record.Result) > printed {
			_, _ = io.WriteString(w, record.Result[printed:])
			printed = len(record.Result)
		}
		if record.Status.IsTerminal() {
			return record, nil
		}

		select {
		case <-ctx.Done():
			return record, fmt.Errorf("still %s: %w", record.Status, ctx.Err())
		case <-ticker.C:
		}
	}
}
