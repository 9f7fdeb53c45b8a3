package main

import (
	"errors"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/arloliu/crawlsource"
	"github.com/arloliu/crawlsource/internal/partition"
)

func partitionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "partitions",
		Short: "List the leader partition and open work items of a store",
		Long: `Partitions prints the leader partition and every work item that is not
COMPLETED. Permanently failed items show as CLOSED with no reopen time.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			be, err := openStore(cmd.Context(), viper.GetString("store"), viper.GetString("bucket"))
			if err != nil {
				return err
			}
			defer be.Close()

			var rows []crawlsource.Partition
			leader, err := be.store.Get(cmd.Context(), crawlsource.PartitionTypeLeader, crawlsource.LeaderPartitionKey)
			switch {
			case err == nil:
				p, err := partition.Decode(leader)
				if err != nil {
					return err
				}
				rows = append(rows, p)
			case !errors.Is(err, crawlsource.ErrPartitionNotFound):
				return err
			}

			recs, err := be.store.ScanCandidates(cmd.Context(), crawlsource.PartitionTypeWorkItem, func(crawlsource.StoreRecord) bool { return true })
			if err != nil {
				return err
			}
			for _, rec := range recs {
				if rec.Status == crawlsource.StatusCompleted {
					continue
				}
				p, err := partition.Decode(rec)
				if err != nil {
					return err
				}
				rows = append(rows, p)
			}

			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"Type", "Key", "Status", "Owner", "Owner Expiry", "Reopen At", "Closed", "Version"})
			for _, p := range rows {
				tw.AppendRow(table.Row{p.Type, p.Key, p.Status, p.OwnerID, formatTime(p.OwnerExpiry), formatTime(p.ReopenAt), p.ClosedCount, p.Version})
			}
			tw.Render()

			return nil
		},
	}

	return cmd
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}

	return t.Local().Format(time.RFC3339)
}
