package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	desiredFile string
	apiName     string
	region      string
	stage       string
	outputFile  string
	dryRun      bool
	debugMode   bool
)

var rootCmd = &cobra.Command{
	Use:   "gatewayctl",
	Short: "Reconciler engine: desired proxy route → gateway deployment",
	Long:  "gatewayctl reconciles a wildcard proxy route onto a remote API gateway with the minimal ordered sequence of control-plane calls, then publishes a deployment snapshot that activates it",
}

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Reconcile the gateway and publish a deployment",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runApply()
	},
}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show the step sequence a reconciliation would issue",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPlan()
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the desired-state YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runValidate()
	},
}

var urlCmd = &cobra.Command{
	Use:   "url",
	Short: "Print the public invoke URL for the configured stage",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runURL()
	},
}

func init() {
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(urlCmd)

	// Global flags (available to all commands)
	rootCmd.PersistentFlags().StringVarP(&desiredFile, "file", "f", "desired.yaml", "Desired-state file path")
	rootCmd.PersistentFlags().StringVar(&apiName, "api-name", "", "Override api.name from the desired-state file")
	rootCmd.PersistentFlags().StringVar(&region, "region", "", "Override api.region from the desired-state file")
	rootCmd.PersistentFlags().StringVar(&stage, "stage", "", "Override api.stage from the desired-state file")

	// Command-specific flags
	applyCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Compute and print the plan without mutating the gateway")
	applyCmd.Flags().BoolVar(&debugMode, "debug", false, "Enable debug output")

	planCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Write the plan to a file (json/yaml by extension)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
