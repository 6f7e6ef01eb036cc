package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var progressCmd = &cobra.Command{
	Use:   "progress",
	Short: "Manage stored progress analyses",
	Long: `Progress analyses are kept only while 'store progress images' consent is on.

Examples:
  skinscan progress list
  skinscan progress delete`,
}

var progressListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored progress analyses, newest first",
	Args:  cobra.NoArgs,
	RunE:  runProgressList,
}

var progressDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete every stored progress analysis",
	Args:  cobra.NoArgs,
	RunE:  runProgressDelete,
}

func init() {
	progressCmd.AddCommand(progressListCmd)
	progressCmd.AddCommand(progressDeleteCmd)

	rootCmd.AddCommand(progressCmd)
}

func runProgressList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.bootstrap(ctx); err != nil {
		return err
	}
	entries, err := a.ctrl.ListProgress(ctx)
	if err != nil {
		printError(err)
		return err
	}

	if jsonOut {
		return printJSON(map[string]interface{}{
			"entries": entries,
			"count":   len(entries),
		})
	}
	if len(entries) == 0 {
		fmt.Println("No progress entries found")
		return nil
	}

	w := newTable()
	printTableHeader(w, "ID", "CREATED", "IMAGE")
	for _, e := range entries {
		created := e.CreatedAt
		if t, err := e.Time(); err == nil {
			created = t.Local().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%d\t%s\t%s\n", e.ID, created, yesNo(e.StoredImage))
	}
	return w.Flush()
}

func runProgressDelete(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.bootstrap(ctx); err != nil {
		return err
	}
	if err := a.ctrl.DeleteProgress(ctx); err != nil {
		printError(err)
		return err
	}
	fmt.Println("Progress history deleted")
	return nil
}
