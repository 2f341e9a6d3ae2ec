package commands

import (
	"bytes"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"vocsched/internal/config"
	"vocsched/internal/schedule"
)

func templateCmd() *cobra.Command {
	var (
		tpl    schedule.Template
		month  int
		output string
	)
	cmd := &cobra.Command{
		Use:   "template NAME",
		Short: "Write an empty schedule for an upcoming congress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tpl.Name = args[0]
			tpl.Month = time.Month(month)
			s, err := schedule.FromTemplate(tpl)
			if err != nil {
				return err
			}
			s.AddRooms(cfg.Rooms)

			if output == "" || output == "-" {
				return s.WriteJSON(cmd.OutOrStdout())
			}
			var buf bytes.Buffer
			if err := s.WriteJSON(&buf); err != nil {
				return err
			}
			if err := config.WriteFileAtomic(output, buf.Bytes(), 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s (%d days)\n", output, s.DaysCount())
			return nil
		},
	}
	cmd.Flags().IntVar(&tpl.Congress, "congress", 0, "congress number, e.g. 33 for 33C3")
	cmd.Flags().IntVar(&tpl.StartDay, "start-day", 27, "day of month of the first day")
	cmd.Flags().IntVar(&tpl.Days, "days", 4, "number of days")
	cmd.Flags().IntVar(&month, "month", 12, "month of the first day")
	cmd.Flags().StringVarP(&output, "output", "o", "-", "output file, - for stdout")
	_ = cmd.MarkFlagRequired("congress")
	return cmd
}
