package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/shepherd/pkg/history"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect archived runs",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List archived runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		archivePath, _ := cmd.Flags().GetString("archive")

		archive, err := history.NewBoltArchive(archivePath)
		if err != nil {
			return err
		}
		defer archive.Close()

		records, err := archive.List()
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "RUN\tID\tSTARTED\tDURATION\tOUTCOME\tINSTANCES")
		for _, r := range records {
			outcome := "failed"
			if r.AllSucceeded() {
				outcome = "success"
			}
			fmt.Fprintf(w, "#%d\t%s\t%s\t%s\t%s\t%d\n",
				r.Count, r.ID, r.StartedAt.Format(time.RFC3339),
				r.Duration.Round(time.Second), outcome, len(r.Instances))
		}
		return w.Flush()
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one archived run as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		archivePath, _ := cmd.Flags().GetString("archive")

		archive, err := history.NewBoltArchive(archivePath)
		if err != nil {
			return err
		}
		defer archive.Close()

		record, err := archive.Get(args[0])
		if err != nil {
			return err
		}

		out, err := json.MarshalIndent(record, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	for _, cmd := range []*cobra.Command{runsListCmd, runsShowCmd} {
		cmd.Flags().String("archive", "runs.db", "Path to the run archive database")
	}
	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
}
