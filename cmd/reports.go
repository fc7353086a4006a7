package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tabloom/tabloom/internal/utils"
)

var reportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "Browse stored reports",
}

var reportsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored reports, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		st, err := newStore()
		if err != nil {
			return err
		}
		reps, err := st.List()
		if err != nil {
			return err
		}
		if len(reps) == 0 {
			cmd.Println("No reports yet. Generate one with: tabloom generate <files>")
			return nil
		}
		for _, rep := range reps {
			cmd.Printf("%s  %s  score=%d  %s\n",
				rep.ID, rep.CreatedAt.Local().Format("2006-01-02 15:04"), rep.Quality.Score, rep.Title)
		}
		return nil
	},
}

var reportsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print one report as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := newStore()
		if err != nil {
			return err
		}
		rep, err := st.Get(args[0])
		if err != nil {
			return err
		}
		b, err := utils.PrettyJSON(rep)
		if err != nil {
			return err
		}
		cmd.Println(string(b))
		return nil
	},
}

var reportsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete one report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := newStore()
		if err != nil {
			return err
		}
		existed, err := st.Delete(args[0])
		if err != nil {
			return err
		}
		if !existed {
			return fmt.Errorf("no report with id %s", args[0])
		}
		cmd.Printf("✓ Deleted %s\n", args[0])
		return nil
	},
}

func init() {
	reportsCmd.AddCommand(reportsListCmd, reportsShowCmd, reportsDeleteCmd)
	rootCmd.AddCommand(reportsCmd)
}
