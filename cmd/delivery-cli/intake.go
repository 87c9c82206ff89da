package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/buildlens/delivery-intake/internal/archive"
	"github.com/buildlens/delivery-intake/internal/config"
	"github.com/buildlens/delivery-intake/internal/delivery"
	"github.com/buildlens/delivery-intake/internal/extract"
	"github.com/buildlens/delivery-intake/internal/intake"
	"github.com/buildlens/delivery-intake/internal/photo"
	"github.com/buildlens/delivery-intake/internal/staging"
)

var (
	photoFlags []string
	yesFlag    bool
)

var receiveCmd = &cobra.Command{
	Use:   "receive <delivery-id>",
	Short: "Receive a delivery: extract invoice photos, review materials, confirm",
	Long: `Receive runs the material-intake flow for one delivery.

Attached invoice photos are sent to the extraction service in a single batch.
The extracted material line items are printed for review; confirming them
marks the delivery as received and persists the material list. On extraction
failure the photos stay attached and nothing is committed.`,
	Args: cobra.ExactArgs(1),
	Run:  runReceive,
}

func init() {
	receiveCmd.Flags().StringArrayVar(&photoFlags, "photo", nil, "Invoice photo path (repeatable)")
	receiveCmd.Flags().BoolVarP(&yesFlag, "yes", "y", false, "Confirm without prompting")
}

func runReceive(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	cfg, _, client := setup(ctx)
	deliveryID := args[0]
	role := delivery.Role(cfg.Role)

	d, err := client.GetDelivery(ctx, deliveryID)
	exitOnAuthError(err)

	if !delivery.CanPerform(d.Status, role, delivery.ActionReceive) {
		log.Fatal().
			Str("status", string(d.Status)).
			Str("role", string(role)).
			Msg("Delivery cannot be received")
	}

	flow := intake.NewFlow(deliveryID, d.ObjectID, delivery.FlowIntake,
		client, newExtractor(ctx, cfg), newStagingStore(ctx, cfg))

	photos := make([]*photo.Captured, 0, len(photoFlags))
	for _, path := range photoFlags {
		p, err := photo.Load(path)
		if err != nil {
			log.Fatal().Err(err).Str("path", path).Msg("Failed to load photo")
		}
		photos = append(photos, p)
	}
	if err := flow.AttachPhotos(photos...); err != nil {
		log.Fatal().Err(err).Msg("Failed to attach photos")
	}

	if err := flow.Process(ctx); err != nil {
		log.Fatal().Err(err).Msg("Extraction failed, photos kept, try again")
	}

	records := flow.Records()
	printRecords(records)

	if !yesFlag && !promptConfirm() {
		flow.Cancel(ctx)
		log.Info().Msg("Intake cancelled")
		return
	}

	if err := flow.Confirm(ctx); err != nil {
		log.Fatal().Err(err).Msg("Confirm failed")
	}
	log.Info().Str("deliveryId", deliveryID).Msg("Delivery received")

	archiveIntake(ctx, cfg, deliveryID, d.ObjectID, photos, records)
}

// newExtractor selects the extraction backend from configuration.
func newExtractor(ctx context.Context, cfg config.Config) extract.Extractor {
	if cfg.ExtractorKind == "gemini" {
		g, err := extract.NewGeminiExtractor(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create Gemini extractor")
		}
		return g
	}
	return extract.NewHTTPExtractor(cfg.ExtractURL)
}

// newStagingStore returns the DynamoDB store when a table is configured,
// otherwise the in-memory store.
func newStagingStore(ctx context.Context, cfg config.Config) staging.Store {
	if cfg.StagingTable == "" {
		return staging.NewMemoryStore()
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load AWS config")
	}
	return staging.NewDynamoStore(dynamodb.NewFromConfig(awsCfg), cfg.StagingTable)
}

// archiveIntake uploads the photo+manifest bundle when a bucket is configured.
func archiveIntake(ctx context.Context, cfg config.Config, deliveryID, objectID string, photos []*photo.Captured, records []delivery.MaterialRecord) {
	if cfg.ArchiveBucket == "" {
		return
	}

	bundle, err := archive.Bundle(deliveryID, objectID, photos, records)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to build intake bundle")
		return
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load AWS config, skipping archive")
		return
	}
	if _, err := archive.Upload(ctx, s3.NewFromConfig(awsCfg), cfg.ArchiveBucket, deliveryID, objectID, bundle); err != nil {
		log.Warn().Err(err).Msg("Intake archived locally only")
	}
}

func printRecords(records []delivery.MaterialRecord) {
	if len(records) == 0 {
		fmt.Println("No material records extracted. Retake the invoice photos and try again.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "#\tNAME\tQUANTITY\tSIZE\tVOLUME\tNET WEIGHT")
	for i, r := range records {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			i+1, r.Name, r.Quantity, r.Size, r.Volume, r.NetWeight)
	}
	w.Flush()
}

func promptConfirm() bool {
	fmt.Print("Confirm intake and mark delivery received? [y/N]: ")
	reader := bufio.NewReader(os.Stdin)
	answer, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}
