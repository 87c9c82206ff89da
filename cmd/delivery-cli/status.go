package main

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/buildlens/delivery-intake/internal/delivery"
)

var commentFlag string

var acceptCmd = &cobra.Command{
	Use:   "accept <delivery-id>",
	Short: "Accept a delivery (SSK)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runStatusAction(args[0], delivery.ActionAccept)
	},
}

var rejectCmd = &cobra.Command{
	Use:   "reject <delivery-id>",
	Short: "Reject a delivery (SSK)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runStatusAction(args[0], delivery.ActionReject)
	},
}

var sendToLabCmd = &cobra.Command{
	Use:   "send-to-lab <delivery-id>",
	Short: "Forward a delivery to the lab (SSK)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runStatusAction(args[0], delivery.ActionSendToLab)
	},
}

func init() {
	acceptCmd.Flags().StringVar(&commentFlag, "comment", "", "Justification (required)")
	rejectCmd.Flags().StringVar(&commentFlag, "comment", "", "Justification (required)")
}

// runStatusAction validates inputs, checks the status table for the acting
// role, then posts the transition.
func runStatusAction(id string, action delivery.Action) {
	ctx := context.Background()
	cfg, _, client := setup(ctx)
	role := delivery.Role(cfg.Role)

	// Comment validation fails before any request is sent.
	if err := delivery.ValidateAction(action, commentFlag); err != nil {
		log.Fatal().Err(err).Msg("Invalid action")
	}

	d, err := client.GetDelivery(ctx, id)
	exitOnAuthError(err)

	if !delivery.CanPerform(d.Status, role, action) {
		log.Fatal().
			Str("status", string(d.Status)).
			Str("role", string(role)).
			Str("action", string(action)).
			Msg("Action not allowed for this delivery")
	}

	next := delivery.NextStatus(action)
	err = client.PostStatus(ctx, id, next, commentFlag)
	exitOnAuthError(err)

	log.Info().
		Str("deliveryId", id).
		Str("status", delivery.DisplayStatus(next)).
		Msg("Delivery status updated")
}
