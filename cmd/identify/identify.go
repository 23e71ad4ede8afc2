// Package identify implements the one-shot identification subcommand for
// classifying a single media file from the command line.
package identify

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fieldquest/fieldquest-go/internal/app"
	"github.com/fieldquest/fieldquest-go/internal/conf"
	"github.com/fieldquest/fieldquest-go/internal/identify"
)

type options struct {
	kind    string
	targets []string
	lat     float64
	lon     float64
	userID  string
}

// Command creates the identify command
func Command(settings *conf.Settings) *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "identify [media file]",
		Short: "Identify a single media file",
		Long:  "Run a media file through the configured classification providers and print the results.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIdentify(cmd, settings, opts, args[0])
		},
	}

	cmd.Flags().StringVarP(&opts.kind, "kind", "k", "image", "Media kind: image or audio")
	cmd.Flags().StringSliceVarP(&opts.targets, "targets", "t", nil, "Identification targets: species, bird, macro")
	cmd.Flags().Float64Var(&opts.lat, "lat", 0, "Latitude of the observation")
	cmd.Flags().Float64Var(&opts.lon, "lon", 0, "Longitude of the observation")
	cmd.Flags().StringVarP(&opts.userID, "user", "u", "cli", "User ID to attribute the submission to")

	return cmd
}

func runIdentify(cmd *cobra.Command, settings *conf.Settings, opts *options, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading media file: %w", err)
	}

	sub := &identify.MediaSubmission{
		Kind:   identify.MediaKind(opts.kind),
		UserID: opts.userID,
	}
	switch sub.Kind {
	case identify.MediaImage:
		sub.ImageData = data
	case identify.MediaAudio:
		sub.AudioData = data
	}
	if cmd.Flags().Changed("lat") {
		sub.Latitude = identify.Float64(opts.lat)
	}
	if cmd.Flags().Changed("lon") {
		sub.Longitude = identify.Float64(opts.lon)
	}
	for _, t := range opts.targets {
		sub.Targets = append(sub.Targets, identify.Target(t))
	}
	if len(sub.Targets) == 0 {
		// Default to every target the media kind can serve.
		for _, t := range identify.AllTargets {
			if t.EligibleFor(sub.Kind) {
				sub.Targets = append(sub.Targets, t)
			}
		}
	}

	application, err := app.New(settings)
	if err != nil {
		return err
	}
	defer func() {
		_ = application.Close()
	}()

	result, err := application.Service.SubmitForIdentification(cmd.Context(), sub)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding results: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
