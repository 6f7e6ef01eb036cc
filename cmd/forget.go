package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var forgetCmd = &cobra.Command{
	Use:   "forget",
	Short: "Delete everything the service holds about you",
	Long: `Delete progress history, withdraw donated samples, remove consent and end
the session. The next command starts a new session.

This action cannot be undone.`,
	Args: cobra.NoArgs,
	RunE: runForget,
}

func init() {
	forgetCmd.Flags().BoolP("force", "f", false, "skip confirmation prompt")

	rootCmd.AddCommand(forgetCmd)
}

func runForget(cmd *cobra.Command, args []string) error {
	force, _ := cmd.Flags().GetBool("force")
	if !force {
		fmt.Print("Delete all of your data? [y/N]: ")
		var answer string
		_, _ = fmt.Scanln(&answer)
		if answer != "y" && answer != "Y" {
			fmt.Println("Aborted")
			return nil
		}
	}

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
	res, err := a.ctrl.DeleteMe(ctx)
	if err != nil {
		printError(err)
		return err
	}

	if jsonOut {
		return printJSON(res)
	}
	fmt.Println("All data deleted")
	fmt.Printf("  Progress entries:     %d\n", res.DeletedProgressEntries)
	fmt.Printf("  Withdrawn donations:  %d\n", res.WithdrawnDonations)
	fmt.Printf("  Consent removed:      %s\n", yesNo(res.DeletedConsent))
	return nil
}
