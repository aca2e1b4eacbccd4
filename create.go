package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"nlcal/src-server/extract"
	"nlcal/src-server/utils"

	"github.com/spf13/cobra"
)

func newCreateCmd() *cobra.Command {
	var (
		imagePaths []string
		outputPath string
	)
	cmd := &cobra.Command{
		Use:   "create [description]",
		Short: "Create an .ics file from a description and/or images",
		Example: `  nlcal create "Dinner with Mia next Friday 7pm at Luigi's"
  nlcal create -i poster.png -o concert.ics`,
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := utils.NewConfig()
			if err != nil {
				return fmt.Errorf("create: %w", err)
			}
			as := utils.NewAppState(config)

			images := make([]extract.Image, 0, len(imagePaths))
			for _, path := range imagePaths {
				image, err := extract.LoadImage(path, config.GetImageMaxBytes())
				if err != nil {
					return fmt.Errorf("create: %w", err)
				}
				images = append(images, image)
			}

			stderr := cmd.ErrOrStderr()
			result, err := as.Creator.Create(cmd.Context(), strings.Join(args, " "), images, func(line string) {
				fmt.Fprintln(stderr, line)
			})
			if err != nil {
				return fmt.Errorf("create: %w", err)
			}
			for _, event := range result.Events {
				fmt.Fprintf(stderr, "%s  %s -> %s\n", event.UID, event.Start.UTC().Format(time.RFC3339), event.End.UTC().Format(time.RFC3339))
			}

			return writeDocument(cmd.OutOrStdout(), outputPath, result.Document)
		},
	}
	cmd.Flags().StringSliceVarP(&imagePaths, "image", "i", nil, "image file to read the event from, repeatable")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "write the calendar to this file instead of stdout")
	return cmd
}

func writeDocument(stdout io.Writer, path, document string) error {
	if path == "" || path == "-" {
		_, err := io.WriteString(stdout, document)
		return err
	}
	if err := os.WriteFile(path, []byte(document), 0o644); err != nil {
		return fmt.Errorf("writeDocument: %w", err)
	}
	return nil
}
