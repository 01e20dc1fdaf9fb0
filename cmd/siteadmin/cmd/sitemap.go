package cmd

import (
	"os"
	"time"

	"github.com/jonkersai/website/blog"
	"github.com/jonkersai/website/sitemap"
	"github.com/spf13/cobra"
)

func (a *app) newSitemapCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "sitemap",
		Short: "Write sitemap.xml for the static pages and published posts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			b, err := a.backend(ctx)
			if err != nil {
				return err
			}
			defer b.Close()

			blogService, err := blog.NewService(b.Store)
			if err != nil {
				return err
			}
			generator, err := sitemap.NewGenerator(a.cfg.GetBaseURL(), blogService)
			if err != nil {
				return err
			}
			doc, err := generator.Generate(ctx, time.Now())
			if err != nil {
				return err
			}

			if output == "" || output == "-" {
				_, err = cmd.OutOrStdout().Write(doc)
				return err
			}
			return os.WriteFile(output, doc, 0o644)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "file to write (default stdout)")
	return cmd
}
