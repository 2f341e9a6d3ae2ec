package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	appLog "vocsched/internal/log"
	"vocsched/internal/pipeline"
	"vocsched/internal/validate"
)

func convertCmd() *cobra.Command {
	var (
		output  string
		lintXML bool
	)
	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Run the pipeline once and write <prefix>.schedule.{json,xml,ics}",
		RunE: func(cmd *cobra.Command, args []string) error {
			if output != "" {
				cfg.OutputPrefix = output
			}
			if lintXML {
				cfg.ValidateXML = true
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			r, err := pipeline.New(cfg)
			if err != nil {
				return err
			}
			a, err := r.Run(cmd.Context())
			if err != nil {
				return err
			}
			if err := pipeline.WriteFiles(cfg.OutputPrefix, a); err != nil {
				return err
			}

			if cfg.ValidateXML {
				_, xmlPath, _ := pipeline.Files(cfg.OutputPrefix)
				err := validate.XMLLint(cmd.Context(), cfg.XSDFile, xmlPath)
				switch {
				case errors.Is(err, validate.ErrValidatorMissing):
					appLog.Warn("xmllint not installed, XML not validated")
				case err != nil:
					return err
				}
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%d events, %d imported, %d rejected, %d warnings\n",
				a.Schedule.EventCount(), a.Imported, len(a.Rejected), len(a.Warnings))
			for _, rj := range a.Rejected {
				fmt.Fprintf(out, "rejected: [%s] %s at %s: %v\n", rj.Source, rj.Title, rj.Start.Format("2006-01-02 15:04"), rj.Err)
			}
			for _, w := range a.Warnings {
				fmt.Fprintf(out, "warning: %v\n", w)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output prefix (overrides config)")
	cmd.Flags().BoolVar(&lintXML, "xmllint", false, "validate the XML with xmllint against xsd_file")
	return cmd
}
