package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/qrvision/internal/batch"
)

func newUploadCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upload [flags] <directory|image>...",
		Short: "Upload image files to a part on a remote host",
		Long: `Upload the first --limit image files found in the given directories to the
data store of a remote host, tagged with --tags.

The target part is read from PART_ID unless --part-id is given.

Examples:
  qrvision upload ./qr_dataset
  qrvision upload ./qr_dataset --part-id part-1 --tags qr,dataset --limit 50`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			recursive, _ := cmd.Flags().GetBool("recursive")
			partID := a.cfg.Robot.PartID
			if partID == "" {
				return errors.New("part ID is required (--part-id, PART_ID or robot.part_id)")
			}

			files, err := batch.Discover(args, batch.DiscoverOptions{
				Recursive: recursive,
				Limit:     a.cfg.Upload.Limit,
			})
			if err != nil {
				return fmt.Errorf("failed to discover image files: %w", err)
			}
			if len(files) == 0 {
				return batch.ErrNoImages
			}

			ctx, stop := signalContext(cmd)
			defer stop()

			client, err := dialRobot(ctx, a.cfg, a.logger)
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()

			out := cmd.OutOrStdout()
			uploaded := 0
			for _, file := range files {
				if err := ctx.Err(); err != nil {
					return err
				}
				meta, err := client.UploadFile(ctx, partID, a.cfg.Upload.Tags, file)
				if err != nil {
					a.logger.Error("Failed to upload file", "file", file, "error", err)
					continue
				}
				uploaded++
				a.logger.Info("Uploaded file", "file", file, "id", meta.ID, "size", meta.Size)
				_, _ = fmt.Fprintf(out, "%s -> %s\n", file, meta.ID)
			}

			_, _ = fmt.Fprintf(out, "Uploaded %d of %d files to part %s\n", uploaded, len(files), partID)
			if uploaded < len(files) {
				return fmt.Errorf("%d of %d uploads failed", len(files)-uploaded, len(files))
			}
			return nil
		},
	}

	f := cmd.Flags()
	addRobotFlags(f)
	f.String("part-id", "", "part receiving the files")
	bindFlag(f, "part-id", "robot.part_id")
	f.StringSlice("tags", nil, "tags attached to every file (default qr)")
	bindFlag(f, "tags", "upload.tags")
	f.Int("limit", 20, "maximum number of files to upload (0 = all)")
	bindFlag(f, "limit", "upload.limit")
	f.BoolP("recursive", "r", false, "descend into subdirectories")

	return cmd
}
