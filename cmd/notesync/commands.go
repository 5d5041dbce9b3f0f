package main

import (
	"context"

	"github.com/MarcoPoloResearchLab/notesync/internal/notes"
	"github.com/spf13/cobra"
)

func newListCommand(app *clientApp) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Reconcile with the remote store and print the collection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.run(cmd, func(ctx context.Context, s *session) (any, error) {
				return s.service.Sync(ctx, s.owner, s.connectivity)
			})
		},
	}
}

func newCreateCommand(app *clientApp) *cobra.Command {
	var (
		title    string
		content  string
		tags     []string
		category string
		color    string
		pinned   bool
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a note",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.run(cmd, func(ctx context.Context, s *session) (any, error) {
				draft := notes.NoteDraft{
					Title:    title,
					Content:  content,
					Tags:     tags,
					IsPinned: pinned,
					UserID:   s.owner,
				}
				if cmd.Flags().Changed("category") {
					draft.Category = &category
				}
				if cmd.Flags().Changed("color") {
					draft.Color = &color
				}
				return s.service.CreateNote(ctx, draft, s.connectivity)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "Note title")
	cmd.Flags().StringVar(&content, "content", "", "Note body")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "Tag (repeatable)")
	cmd.Flags().StringVar(&category, "category", "", "Category")
	cmd.Flags().StringVar(&color, "color", "", "Color")
	cmd.Flags().BoolVar(&pinned, "pinned", false, "Pin the note")
	return cmd
}

func newUpdateCommand(app *clientApp) *cobra.Command {
	var (
		title    string
		content  string
		tags     []string
		category string
		color    string
		pinned   bool
	)
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Patch fields of a note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			var patch notes.NotePatch
			if flags.Changed("title") {
				patch.Title = &title
			}
			if flags.Changed("content") {
				patch.Content = &content
			}
			if flags.Changed("tag") {
				patch.Tags = &tags
			}
			if flags.Changed("category") {
				patch.Category = &category
			}
			if flags.Changed("color") {
				patch.Color = &color
			}
			if flags.Changed("pinned") {
				patch.IsPinned = &pinned
			}
			return app.run(cmd, func(ctx context.Context, s *session) (any, error) {
				return s.service.UpdateNote(ctx, s.owner, notes.NoteID(args[0]), patch, s.connectivity)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "New title")
	cmd.Flags().StringVar(&content, "content", "", "New body")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "Replacement tags (repeatable)")
	cmd.Flags().StringVar(&category, "category", "", "New category, empty clears it")
	cmd.Flags().StringVar(&color, "color", "", "New color, empty clears it")
	cmd.Flags().BoolVar(&pinned, "pinned", false, "Pinned state")
	return cmd
}

func newDeleteCommand(app *clientApp) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.run(cmd, func(ctx context.Context, s *session) (any, error) {
				return nil, s.service.DeleteNote(ctx, s.owner, notes.NoteID(args[0]), s.connectivity)
			})
		},
	}
}

func newPinCommand(app *clientApp) *cobra.Command {
	return &cobra.Command{
		Use:   "pin <id>",
		Short: "Toggle the pinned flag of a note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.run(cmd, func(ctx context.Context, s *session) (any, error) {
				return s.service.TogglePin(ctx, s.owner, notes.NoteID(args[0]), s.connectivity)
			})
		},
	}
}

func newStatusCommand(app *clientApp) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the pending change ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.run(cmd, func(ctx context.Context, s *session) (any, error) {
				return s.service.Status(ctx, s.owner)
			})
		},
	}
}
