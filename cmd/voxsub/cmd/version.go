package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/voxsub/voxsub/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  "Print the version, commit and build details of this voxsub binary.",
	Run: func(cmd *cobra.Command, args []string) {
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			fmt.Println(version.JSON())
			return
		}
		fmt.Println(version.String())
	},
}

func init() {
	versionCmd.Flags().Bool("json", false, "output version information as JSON")
	rootCmd.AddCommand(versionCmd)
}
