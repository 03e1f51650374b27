package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCommand builds the `psn-admin` command tree.
// The tools work offline on the same planner and codec the service uses.
// NewRootCommand 构建 `psn-admin` 命令树，离线复用服务的容量规划与校验位逻辑。
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "psn-admin",
		Short: "A CLI tool for planning and checking pseudonym domains.",
		Long: `psn-admin performs offline administrative tasks for the pseudonymization
service, such as sizing RANDOM domains and computing or verifying check digits.`,
		SilenceUsage: true,
	}
	rootCmd.AddCommand(newCapacityCommand(), newCheckDigitCommand())
	return rootCmd
}

// Execute is the main entry point for the CLI application.
// Execute 是 CLI 应用程序的主入口点。
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
