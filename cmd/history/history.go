// Package history implements the detection history commands.
package history

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sentinelvision/sentinel-go/internal/conf"
	"github.com/sentinelvision/sentinel-go/internal/store"
)

// Command creates the history command with its list and clear subcommands.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show or clear the detection history",
	}
	cmd.AddCommand(listCommand(settings), clearCommand(settings))
	return cmd
}

func listCommand(settings *conf.Settings) *cobra.Command {
	var (
		class         string
		camera        int
		dateRange     string
		minConfidence float64
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List detection history, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := openStore(settings)
			if err != nil {
				return err
			}
			defer func() { _ = ds.Close() }()

			filter := store.HistoryFilter{
				Class:         class,
				DateBucket:    store.DateBucket(dateRange),
				MinConfidence: minConfidence,
			}
			if camera > 0 {
				index := camera - 1
				filter.CameraIndex = &index
			}

			entries, err := ds.GetHistory(settings.EffectiveUserID(), filter)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("No matching detections.")
				return nil
			}
			for _, e := range entries {
				fmt.Printf("%s  %-12s %5.1f%%  camera %d\n",
					e.Timestamp, e.Class, e.Score*100, e.CameraIndex+1)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&class, "class", "", "Only show detections of this class")
	cmd.Flags().IntVar(&camera, "camera", 0, "Only show detections from this camera number")
	cmd.Flags().StringVar(&dateRange, "range", string(store.DateBucketAll), "Date range: all, today, yesterday or this-week")
	cmd.Flags().Float64Var(&minConfidence, "minconfidence", 0, "Only show detections at or above this confidence")

	return cmd
}

func clearCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete the user's detection history",
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := openStore(settings)
			if err != nil {
				return err
			}
			defer func() { _ = ds.Close() }()

			if err := ds.ClearHistory(settings.EffectiveUserID()); err != nil {
				return err
			}
			fmt.Println("History cleared.")
			return nil
		},
	}
}

func openStore(settings *conf.Settings) (*store.DataStore, error) {
	ds := store.New(store.Config{
		Path:             settings.Store.Path,
		MaxHistoryItems:  settings.Alert.MaxHistory,
		MaxNotifications: settings.Alert.MaxUnreadKept,
		Debug:            settings.Debug,
	})
	if err := ds.Open(); err != nil {
		return nil, err
	}
	return ds, nil
}
