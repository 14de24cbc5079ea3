package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var wipeForce bool

var wipeCmd = &cobra.Command{
	Use:   "wipe",
	Short: "Delete all world data",
	Long: `Deletes every record from every table while keeping the schema.
There is no undo; export first if in doubt.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !wipeForce {
			fmt.Printf("This deletes ALL data in %s/%s. Type the database name to confirm: ",
				cfg.SurrealDBNamespace, cfg.SurrealDBDatabase)
			line, err := bufio.NewReader(os.Stdin).ReadString('\n')
			if err != nil {
				return err
			}
			if strings.TrimSpace(line) != cfg.SurrealDBDatabase {
				fmt.Println("Aborted")
				return nil
			}
		}

		if err := dbClient.WipeData(cmd.Context()); err != nil {
			return fmt.Errorf("wipe data: %w", err)
		}
		fmt.Println("All data deleted")
		return nil
	},
}

func init() {
	wipeCmd.Flags().BoolVar(&wipeForce, "force", false, "skip the confirmation prompt")
}
