// delivery-cli tracks physical material deliveries through the multi-party
// approval workflow: the foreman receives a delivery by photographing its
// invoices and confirming the extracted material list, the quality inspector
// accepts, rejects or forwards it to the lab.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/buildlens/delivery-intake/internal/api"
	"github.com/buildlens/delivery-intake/internal/config"
	"github.com/buildlens/delivery-intake/internal/delivery"
	"github.com/buildlens/delivery-intake/internal/logging"
	"github.com/buildlens/delivery-intake/internal/session"
)

// CLI flags
var (
	objectFlag  string
	todayFlag   bool
	statusFlag  string
	accessFlag  string
	refreshFlag string
)

// rootCmd is the main Cobra command for the CLI.
var rootCmd = &cobra.Command{
	Use:   "delivery-cli",
	Short: "Material delivery tracking for construction sites",
	Long: `delivery-cli drives the delivery approval workflow from the command line.

The foreman receives physical deliveries: photographed invoices are sent to a
text-extraction service, the extracted material line items are reviewed and
edited, and confirming them marks the delivery as received. The quality
inspector (SSK) then accepts the delivery, rejects it, or forwards it to the
lab for testing.

Examples:
  delivery-cli login --access TOKEN --refresh TOKEN
  delivery-cli list --today --object OBJ-12
  delivery-cli show 8412
  delivery-cli receive 8412 --photo invoice1.jpg --photo invoice2.jpg
  delivery-cli accept 8412 --comment "Certificates match"
  delivery-cli send-to-lab 8412`,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List deliveries, optionally filtered by day, site or status",
	Run:   runList,
}

var showCmd = &cobra.Command{
	Use:   "show <delivery-id>",
	Short: "Show one delivery",
	Args:  cobra.ExactArgs(1),
	Run:   runShow,
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store a session token pair",
	Run:   runLogin,
}

func init() {
	listCmd.Flags().BoolVar(&todayFlag, "today", false, "Only today's deliveries")
	listCmd.Flags().StringVar(&objectFlag, "object", "", "Filter by site (object id)")
	listCmd.Flags().StringVar(&statusFlag, "status", "", "Filter by status")

	loginCmd.Flags().StringVar(&accessFlag, "access", "", "Access token")
	loginCmd.Flags().StringVar(&refreshFlag, "refresh", "", "Refresh token")

	rootCmd.AddCommand(listCmd, showCmd, loginCmd, receiveCmd, acceptCmd, rejectCmd, sendToLabCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads configuration and builds the session manager and backend client.
func setup(ctx context.Context) (config.Config, *session.Manager, *api.Client) {
	logging.Init()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	sess, err := session.NewManager(cfg.SessionFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create session manager")
	}
	if err := sess.Load(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load session")
	}
	if _, ok := sess.Current(); !ok && cfg.SessionSSMParam != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to load AWS config")
		}
		if err := sess.LoadFromSSM(ctx, ssm.NewFromConfig(awsCfg), cfg.SessionSSMParam); err != nil {
			log.Warn().Err(err).Msg("SSM session load failed, continuing logged out")
		}
	}

	return cfg, sess, api.NewClient(cfg.BackendURL, sess)
}

// exitOnAuthError turns an expired session into a login hint.
func exitOnAuthError(err error) {
	if err == nil {
		return
	}
	if errors.Is(err, api.ErrAuthExpired) {
		log.Fatal().Msg("Session expired, run: delivery-cli login")
	}
	log.Fatal().Err(err).Msg("Request failed")
}

func runList(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	_, _, client := setup(ctx)

	var status delivery.Status
	if statusFlag != "" {
		parsed, err := delivery.ParseStatus(statusFlag)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid --status")
		}
		status = parsed
	}

	deliveries, err := client.ListDeliveries(ctx, api.ListFilter{
		Today:    todayFlag,
		ObjectID: objectFlag,
		Status:   status,
	})
	exitOnAuthError(err)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tSUPPLIER\tEXPECTED\tTITLE")
	for _, d := range deliveries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			d.ID, delivery.DisplayStatus(d.Status), d.Supplier, d.ExpectedDate, d.Title)
	}
	w.Flush()
}

func runShow(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	_, _, client := setup(ctx)

	d, err := client.GetDelivery(ctx, args[0])
	exitOnAuthError(err)

	fmt.Printf("Delivery %s: %s\n", d.ID, d.Title)
	fmt.Printf("  Status:    %s\n", delivery.DisplayStatus(d.Status))
	fmt.Printf("  Site:      %s\n", d.ObjectID)
	fmt.Printf("  Supplier:  %s\n", d.Supplier)
	fmt.Printf("  Expected:  %s\n", d.ExpectedDate)
	fmt.Printf("  Items:     %d\n", d.ItemsCount)
	fmt.Printf("  Photos:    %d\n", len(d.InvoicePhotos))
	if d.Description != "" {
		fmt.Printf("  Notes:     %s\n", d.Description)
	}
}

func runLogin(cmd *cobra.Command, args []string) {
	logging.Init()

	if accessFlag == "" || refreshFlag == "" {
		log.Fatal().Msg("Both --access and --refresh are required")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	sess, err := session.NewManager(cfg.SessionFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create session manager")
	}
	if err := sess.Set(session.Tokens{Access: accessFlag, Refresh: refreshFlag}); err != nil {
		log.Fatal().Err(err).Msg("Failed to store session")
	}
	log.Info().Msg("Session stored")
}
