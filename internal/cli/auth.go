package cli

import (
	"github.com/spf13/cobra"

	"github.com/mcoot/gameserver/internal/protocol"
)

func newGuestCmd() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "guest",
		Short: "Sign in as a guest and save the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := roundTrip(cmd, false, &protocol.Envelope{
				Type:     protocol.TypeAuthenticate,
				Action:   protocol.ActionLoginGuest,
				Username: name,
			})
			if err != nil {
				return err
			}
			return saveSession(resp)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Guest name (required)")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

func newRegisterCmd() *cobra.Command {
	var username, password string

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a new user",
		Long:  "Register a new user. Registration does not sign in; run login afterwards.",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := roundTrip(cmd, false, &protocol.Envelope{
				Type:     protocol.TypeAuthenticate,
				Action:   protocol.ActionRegister,
				Username: username,
				Password: password,
			})
			return err
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "Username (required)")
	cmd.Flags().StringVar(&password, "password", "", "Password (required)")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")

	return cmd
}

func newLoginCmd() *cobra.Command {
	var username, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in as a registered user and save the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := roundTrip(cmd, false, &protocol.Envelope{
				Type:     protocol.TypeAuthenticate,
				Action:   protocol.ActionLogin,
				Username: username,
				Password: password,
			})
			if err != nil {
				return err
			}
			return saveSession(resp)
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "Username (required)")
	cmd.Flags().StringVar(&password, "password", "", "Password (required)")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")

	return cmd
}

func newResumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Resume the saved session and show who it belongs to",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := roundTrip(cmd, true, &protocol.Envelope{
				Type:   protocol.TypeRequest,
				Action: protocol.ActionValue,
				Value:  protocol.ValueUsername,
			})
			return err
		},
	}
}

func newSignOutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "signout",
		Short: "End the saved session and remove the token file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := roundTrip(cmd, true, &protocol.Envelope{
				Type:   protocol.TypeRequest,
				Action: protocol.ActionSignOut,
			}); err != nil {
				return err
			}
			return cfg.ClearToken()
		},
	}
}

// saveSession persists the session id of a successful sign in
func saveSession(resp *protocol.Envelope) error {
	if resp.Success == nil || !*resp.Success || resp.SessionID == "" {
		return nil
	}
	return cfg.SaveToken(resp.SessionID)
}
