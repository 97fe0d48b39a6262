package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/qrvision/internal/batch"
	"github.com/MeKo-Tech/qrvision/internal/detection"
	"github.com/MeKo-Tech/qrvision/internal/vision"
)

// decodeServiceName names the local vision service in logs and metrics.
const decodeServiceName = "decode"

func newDecodeCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decode [flags] <image|directory>...",
		Short: "Decode QR codes in image files",
		Long: `Decode QR codes in image files and print their payloads and boxes.

Directories are expanded to the supported images they contain (PNG, JPEG,
GIF, BMP, TIFF and WebP). URLs are never opened by this command.

Examples:
  qrvision decode qr.png
  qrvision decode ./qr_dataset --format json --output results.json
  qrvision decode ./qr_dataset -r --overlay-dir ./overlays
  qrvision decode scan.jpg --no-preprocess --formats qr,datamatrix`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			recursive, _ := cmd.Flags().GetBool("recursive")
			workers, _ := cmd.Flags().GetInt("workers")
			include, _ := cmd.Flags().GetStringSlice("include")
			exclude, _ := cmd.Flags().GetStringSlice("exclude")
			raw, _ := cmd.Flags().GetBool("no-preprocess")

			attrs := a.cfg.QRAttributes("")
			attrs["trigger"] = vision.TriggerNone
			if raw {
				attrs["preprocess"] = false
			}

			ctx := cmd.Context()
			svc, err := vision.NewQRService(ctx, vision.Dependencies{}, vision.ResourceConfig{
				Name:       decodeServiceName,
				API:        vision.APIVision,
				Model:      vision.QRModel,
				Attributes: attrs,
			}, vision.WithLogger(a.logger))
			if err != nil {
				return fmt.Errorf("failed to create vision service: %w", err)
			}
			defer func() { _ = svc.Close(context.Background()) }()

			overlay := detection.DefaultOverlayOptions()
			if c := detection.ParseHexColor(a.cfg.Output.OverlayBoxColor); c != nil {
				overlay.BoxColor = c
				overlay.LabelColor = c
			}

			res, err := batch.Run(ctx, svc, args, batch.Config{
				Discover: batch.DiscoverOptions{
					Recursive:       recursive,
					IncludePatterns: include,
					ExcludePatterns: exclude,
				},
				Workers:    workers,
				OverlayDir: a.cfg.Output.OverlayDir,
				Overlay:    overlay,
				Logger:     a.logger,
			})
			if err != nil {
				return err
			}

			if err := res.SaveResults(cmd.OutOrStdout(), a.cfg.Output.Format, a.cfg.Output.File); err != nil {
				return fmt.Errorf("failed to write results: %w", err)
			}

			withCodes, failed, codes := res.Stats()
			a.logger.Info("Decoding finished",
				"files", len(res.Results),
				"with_codes", withCodes,
				"codes", codes,
				"failed", failed,
				"duration", res.Duration.String())
			if failed == len(res.Results) {
				return fmt.Errorf("all %d files failed to decode", failed)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringP("format", "f", "text", "output format: text, json, csv or yaml")
	bindFlag(f, "format", "output.format")
	f.StringP("output", "o", "", "write results to this file instead of stdout")
	bindFlag(f, "output", "output.file")
	f.String("overlay-dir", "", "directory for annotated copies of the images")
	bindFlag(f, "overlay-dir", "output.overlay_dir")
	f.String("overlay-box-color", "", "overlay box color (hex)")
	bindFlag(f, "overlay-box-color", "output.overlay_box_color")
	f.StringSlice("formats", nil, "symbologies to decode (qr, datamatrix, aztec, code128, ...)")
	bindFlag(f, "formats", "detection.formats")
	f.Bool("try-harder", false, "spend more time looking for codes")
	bindFlag(f, "try-harder", "detection.try_harder")
	f.Bool("no-preprocess", false, "decode the raw image without preprocessing")
	f.BoolP("recursive", "r", false, "descend into subdirectories")
	f.Int("workers", 0, "number of images decoded in parallel (0 = number of CPUs)")
	f.StringSlice("include", nil, "only decode files matching these glob patterns")
	f.StringSlice("exclude", nil, "skip files matching these glob patterns")

	return cmd
}
