package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mcoot/gameserver/internal/protocol"
)

func newCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create",
		Short: "Open a new room and enter it",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := roundTrip(cmd, true, &protocol.Envelope{
				Type:   protocol.TypeRequest,
				Action: protocol.ActionCreateGame,
			})
			return err
		},
	}
}

func newEnterCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "enter <game-id>",
		Short: "Enter an open room",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := roundTrip(cmd, true, &protocol.Envelope{
				Type:   protocol.TypeRequest,
				Action: protocol.ActionEnterGame,
				GameID: args[0],
			})
			return err
		},
	}
}

func newLeaveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "leave",
		Short: "Leave the current room",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := roundTrip(cmd, true, &protocol.Envelope{
				Type:   protocol.TypeRequest,
				Action: protocol.ActionLeaveGame,
			})
			return err
		},
	}
}

func newValueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "value <name>",
		Short: "Query a server value: authenticated, username or game_id",
		Long: `Query a named value from the server.

The saved session is resumed when there is one; without it only
"authenticated" can be asked.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := roundTrip(cmd, cfg.Token != "", &protocol.Envelope{
				Type:   protocol.TypeRequest,
				Action: protocol.ActionValue,
				Value:  args[0],
			})
			return err
		},
	}
}

func newSendCmd() *cobra.Command {
	var (
		msgType string
		value   string
		data    string
		anon    bool
	)

	cmd := &cobra.Command{
		Use:   "send <action>",
		Short: "Send an arbitrary message and print the reply",
		Long: `Send a message with any action, for example the room actions
broadcast, set_data and get_data:

  gsctl send broadcast --data '{"text":"hi"}'
  gsctl send set_data --value score --data '42'
  gsctl send get_data --value score`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env := &protocol.Envelope{
				Type:   protocol.Type(msgType),
				Action: args[0],
			}
			if value != "" {
				env.Value = value
			}
			if data != "" {
				if !json.Valid([]byte(data)) {
					return fmt.Errorf("--data is not valid JSON")
				}
				env.Data = json.RawMessage(data)
			}

			_, err := roundTrip(cmd, !anon, env)
			return err
		},
	}

	cmd.Flags().StringVar(&msgType, "type", string(protocol.TypeRequest), "Message type")
	cmd.Flags().StringVar(&value, "value", "", "Value field")
	cmd.Flags().StringVar(&data, "data", "", "Data field, as JSON")
	cmd.Flags().BoolVar(&anon, "anonymous", false, "Send without resuming the saved session")

	return cmd
}

func newWatchCmd() *cobra.Command {
	var (
		count    int
		duration time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Resume the session and print messages as they arrive",
		Long: `Resume the saved session, rejoining its room, and print every message
the server pushes. Stops after --count messages, after --duration, when the
server closes the connection, or on Ctrl+C.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := connect(cmd, true)
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()

			ctx := cmd.Context()
			if duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, duration)
				defer cancel()
			}

			for seen := 0; count == 0 || seen < count; seen++ {
				msg, err := s.Next(ctx)
				if err == nil {
					out.PrintLine(msg)
					continue
				}
				switch {
				case errors.Is(err, ErrClosed):
					return nil
				case ctx.Err() != nil:
					if count > 0 && errors.Is(ctx.Err(), context.DeadlineExceeded) {
						return fmt.Errorf("received %d of %d messages in %s", seen, count, duration)
					}
					return nil
				default:
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&count, "count", 0, "Stop after this many messages (0 for no limit)")
	cmd.Flags().DurationVar(&duration, "duration", 0, "Stop after this long (0 for no limit)")

	return cmd
}
