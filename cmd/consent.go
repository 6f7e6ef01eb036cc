package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/skinscan/internal/apiclient"
	"github.com/example/skinscan/internal/consent"
	"github.com/example/skinscan/internal/flow"
)

var consentCmd = &cobra.Command{
	Use:   "consent",
	Short: "Show or change consent",
	Long: `Show the current consent, or change it with the flags below. The two
choices are independent: changing one never changes the other.

The new value is kept locally even if the service cannot be reached; the
warning is printed and the next change sends the full value again.

A change accepts the current privacy policy, terms of use and consent copy.
Their versions are recorded with the consent; --show-legal prints them in full.

Examples:
  skinscan consent
  skinscan consent --donate
  skinscan consent --store-progress=false
  skinscan consent --show-legal`,
	Args: cobra.NoArgs,
	RunE: runConsent,
}

func init() {
	consentCmd.Flags().Bool("store-progress", false, "keep analyzed images to track progress")
	consentCmd.Flags().Bool("donate", false, "donate the analyzed region to improve the model")
	consentCmd.Flags().Bool("show-legal", false, "print the legal documents behind the consent")

	rootCmd.AddCommand(consentCmd)
}

func runConsent(cmd *cobra.Command, args []string) error {
	var patch consent.Patch
	if cmd.Flags().Changed("store-progress") {
		v, _ := cmd.Flags().GetBool("store-progress")
		patch.StoreProgressImages = &v
	}
	if cmd.Flags().Changed("donate") {
		v, _ := cmd.Flags().GetBool("donate")
		patch.DonateForImprovement = &v
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

	showLegal, _ := cmd.Flags().GetBool("show-legal")
	var bundle *apiclient.LegalBundle
	if showLegal || !patch.Empty() {
		bundle, err = a.ctrl.FetchLegal(ctx)
		if err != nil {
			warn("legal documents unavailable, the service will record its current versions: %v", err)
		}
	}

	current := a.ctrl.Consent()
	if !patch.Empty() {
		current, err = a.ctrl.SetConsent(ctx, patch)
		if flow.KindOf(err) == flow.SyncFailure {
			warn("consent saved locally but the service was not updated: %v", err)
		} else if err != nil {
			return err
		}
	}

	if jsonOut {
		if showLegal {
			return printJSON(map[string]interface{}{"consent": current, "legal": bundle})
		}
		return printJSON(current)
	}
	fmt.Printf("Store progress images:   %s\n", yesNo(current.StoreProgressImages))
	fmt.Printf("Donate for improvement:  %s\n", yesNo(current.DonateForImprovement))
	if v := current.LegalVersions; !v.Empty() {
		fmt.Printf("Accepted versions:       privacy %s, terms %s, consent %s\n", v.PrivacyVersion, v.TermsVersion, v.ConsentVersion)
	}
	if showLegal && bundle != nil {
		for _, doc := range []apiclient.LegalDoc{bundle.PrivacyPolicy, bundle.TermsOfUse, bundle.ConsentCopy} {
			fmt.Printf("\n--- %s (version %s, effective %s)\n\n%s\n", doc.Key, doc.Version, doc.EffectiveAt, doc.BodyMarkdown)
		}
	}
	return nil
}
