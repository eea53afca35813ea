package main

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"
)

func newLoadCmd(a *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "load <locator>",
		Short: "Load an image through the cache",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := a.coordinator.LoadImage(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), output, data)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to file instead of stdout")
	return cmd
}

func newPublishCmd(a *app) *cobra.Command {
	var dest string
	cmd := &cobra.Command{
		Use:   "publish <file>",
		Short: "Prepare and upload a photo, printing its locator",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			locator, err := a.coordinator.PublishImage(cmd.Context(), raw, dest)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), locator)
			return err
		},
	}
	cmd.Flags().StringVarP(&dest, "dest", "d", "", `destination hint; a trailing "/" picks a unique name`)
	return cmd
}

func newPreloadCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "preload <locator>...",
		Short: "Warm the cache with many images",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.coordinator.PreloadAll(cmd.Context(), args)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "loaded %d, failed %d, skipped %d\n", len(res.Loaded), len(res.Failed), len(res.Skipped))

			failed := make([]string, 0, len(res.Failed))
			for id := range res.Failed {
				failed = append(failed, id)
			}
			sort.Strings(failed)
			for _, id := range failed {
				fmt.Fprintf(out, "  %s: %v\n", id, res.Failed[id])
			}
			if err != nil {
				return err
			}
			if len(failed) > 0 {
				return fmt.Errorf("%d of %d images failed to load", len(failed), len(args))
			}
			return nil
		},
	}
}

func newThumbnailCmd(a *app) *cobra.Command {
	var (
		size   int
		output string
	)
	cmd := &cobra.Command{
		Use:   "thumbnail <locator>",
		Short: "Render a cached JPEG thumbnail of an image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := a.coordinator.Thumbnail(cmd.Context(), args[0], size)
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), output, data)
		},
	}
	cmd.Flags().IntVarP(&size, "size", "s", 256, "longest side in pixels")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to file instead of stdout")
	return cmd
}

func newInvalidateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "invalidate <locator>...",
		Short: "Drop images from the local cache",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			for _, id := range args {
				a.coordinator.Invalidate(id)
			}
			return nil
		},
	}
}

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <locator>",
		Short: "Delete an image remotely and from the cache",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.coordinator.DeleteImage(cmd.Context(), args[0])
		},
	}
}

func newClearCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Empty the local cache",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			return a.coordinator.ClearAll()
		},
	}
}

func writeOutput(stdout io.Writer, path string, data []byte) error {
	if path == "" {
		_, err := stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil { //nolint:gosec // output is user-facing media
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
