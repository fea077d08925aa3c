package tasks

import (
	"fmt"
	"os"

	"github.com/jackadi-io/hive/cmd/hive/style"
	"github.com/jackadi-io/hive/cmd/hive/subcommand/drone"
	"github.com/jackadi-io/hive/internal/serializer"
	"github.com/spf13/cobra"
)

func Root() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "tasks [OPTION] ...",
		Short:   "create, inspect and cancel tasks",
		GroupID: "operations",
	}

	cmd.AddCommand(listCommand())
	cmd.AddCommand(getCommand())
	cmd.AddCommand(newCommand())
	cmd.AddCommand(deleteCommand())

	return cmd
}

func completeDrone(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) == 0 {
		return drone.ListDrones(), cobra.ShellCompDirectiveNoFileComp
	}
	return []string{}, cobra.ShellCompDirectiveNoFileComp
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, style.RenderError(err.Error()))
	os.Exit(1)
}

func printJSON(v any) {
	result, err := serializer.JSON.MarshalIndent(v, "", "  ")
	if err != nil {
		fail(fmt.Errorf("failed to serialize response in JSON: %w", err))
	}
	fmt.Println(string(result))
}
