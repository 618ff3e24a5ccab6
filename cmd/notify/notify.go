// Package notify implements the notification management commands.
package notify

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sentinelvision/sentinel-go/internal/conf"
	"github.com/sentinelvision/sentinel-go/internal/store"
)

// Command creates the notify command with its subcommands.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Manage notifications and related users",
	}
	cmd.AddCommand(
		listCommand(settings),
		readCommand(settings),
		clearCommand(settings),
		relateCommand(settings),
		unrelateCommand(settings),
	)
	return cmd
}

func listCommand(settings *conf.Settings) *cobra.Command {
	var unreadOnly bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List notifications, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := openStore(settings)
			if err != nil {
				return err
			}
			defer func() { _ = ds.Close() }()

			notifications, err := ds.GetNotifications(settings.EffectiveUserID())
			if err != nil {
				return err
			}

			shown := 0
			for _, n := range notifications {
				if unreadOnly && n.Read {
					continue
				}
				status := " "
				if !n.Read {
					status = "*"
				}
				fmt.Printf("%s %s  %s  %s — %s\n", status, n.NotificationID, n.Timestamp, n.Title, n.Message)
				shown++
			}
			if shown == 0 {
				fmt.Println("No notifications.")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&unreadOnly, "unread", false, "Only show unread notifications")
	return cmd
}

func readCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "read [notification-id]",
		Short: "Mark a notification as read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := openStore(settings)
			if err != nil {
				return err
			}
			defer func() { _ = ds.Close() }()
			return ds.MarkRead(settings.EffectiveUserID(), args[0])
		},
	}
}

func clearCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete all of the user's notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := openStore(settings)
			if err != nil {
				return err
			}
			defer func() { _ = ds.Close() }()

			if err := ds.ClearNotifications(settings.EffectiveUserID()); err != nil {
				return err
			}
			fmt.Println("Notifications cleared.")
			return nil
		},
	}
}

func relateCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "relate [user-id]",
		Short: "Share detection notifications with another user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := openStore(settings)
			if err != nil {
				return err
			}
			defer func() { _ = ds.Close() }()

			if err := ds.AddRelatedUser(settings.EffectiveUserID(), args[0]); err != nil {
				return err
			}
			fmt.Printf("Users %s and %s now share detection notifications.\n",
				settings.EffectiveUserID(), args[0])
			return nil
		},
	}
}

func unrelateCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "unrelate [user-id]",
		Short: "Stop sharing detection notifications with another user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := openStore(settings)
			if err != nil {
				return err
			}
			defer func() { _ = ds.Close() }()
			return ds.RemoveRelatedUser(settings.EffectiveUserID(), args[0])
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
