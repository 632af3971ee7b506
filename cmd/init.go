package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/weftlang/weftsync/internal/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default .weftsync.yml to the current directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		const path = ".weftsync.yml"
		if _, err := os.Stat(path); err == nil && !initForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}

		if err := config.Default().Save(path); err != nil {
			return err
		}
		fmt.Println("Wrote", path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing config file")
}
