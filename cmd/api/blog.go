package main

import (
	"fmt"

	"github.com/residencyreview/eras-review-api/internal/blog"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func blogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "blog",
		Short: "Blog automation tasks",
	}

	var topic string
	var draft bool
	generate := &cobra.Command{
		Use:   "generate",
		Short: "Generate one blog post now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			post, err := a.generator.Generate(cmd.Context(), blog.Request{Topic: topic, Publish: !draft})
			if err != nil {
				return err
			}
			a.log.WithFields(logrus.Fields{"post_id": post.ID, "slug": post.Slug, "status": post.Status}).Info("blog post created")
			fmt.Fprintln(cmd.OutOrStdout(), a.site.PostURL(post.Slug))
			return nil
		},
	}
	generate.Flags().StringVar(&topic, "topic", "", "topic to write about (default: least recently used catalogue topic)")
	generate.Flags().BoolVar(&draft, "draft", false, "save as draft instead of publishing")

	ping := &cobra.Command{
		Use:   "ping <slug>",
		Short: "Re-send search engine pings and social posts for a published post",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			post, err := a.posts.PublishedBySlug(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("load %q: %w", args[0], err)
			}
			a.generator.Announce(cmd.Context(), post)
			return nil
		},
	}

	cmd.AddCommand(generate, ping)
	return cmd
}
