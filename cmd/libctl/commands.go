package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"librarian/internal/db"
	"librarian/internal/repository"
	"librarian/internal/service"
)

func newMigrateCmd(a *app) *cobra.Command {
	var reset bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := db.Migrate(a.db, reset || a.cfg.Database.Reset, a.log); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		},
	}
	cmd.Flags().BoolVar(&reset, "reset", false, "drop every table before migrating")
	return cmd
}

func newCreateAdminCmd(a *app) *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an administrator, or promote an existing user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Without Redis the promoted user's old sessions stay valid until
			// they expire, so the session store is required here too.
			sessions, closeSessions, err := a.sessionStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closeSessions()

			users := service.NewUserService(repository.NewUserRepository(a.db), sessions, nil, a.log)
			user, created, err := users.EnsureAdmin(cmd.Context(), email, password)
			if err != nil {
				return err
			}

			verb := "promoted"
			if created {
				verb = "created"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "admin %s: %s (%s)\n", verb, user.Email, user.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "administrator email")
	cmd.Flags().StringVar(&password, "password", "", "administrator password (min 6 characters)")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newSeedBooksCmd(a *app) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "seed-books",
		Short: "Import books from a JSON file",
		Long:  "Import books from a JSON array of objects with title, author, isbn, publisher, year, category, location, description, coverImage and isHighlighted.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			books, err := readBooksFile(file)
			if err != nil {
				return err
			}

			catalog := service.NewBookService(repository.NewBookRepository(a.db), nil, a.log)
			count, err := catalog.Import(cmd.Context(), books)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d books\n", count)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "path to the JSON file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// seedBook is one entry of a seed file.
type seedBook struct {
	Title         string `json:"title"`
	Author        string `json:"author"`
	ISBN          string `json:"isbn"`
	Publisher     string `json:"publisher"`
	Year          string `json:"year"`
	Category      string `json:"category"`
	Location      string `json:"location"`
	Description   string `json:"description"`
	CoverImage    string `json:"coverImage"`
	IsHighlighted bool   `json:"isHighlighted"`
}

func readBooksFile(path string) ([]service.CreateBookInput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var entries []seedBook
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%s contains no books", path)
	}

	books := make([]service.CreateBookInput, 0, len(entries))
	for _, e := range entries {
		books = append(books, service.CreateBookInput{
			Title:         e.Title,
			Author:        e.Author,
			ISBN:          e.ISBN,
			Publisher:     e.Publisher,
			Year:          e.Year,
			Category:      e.Category,
			Location:      e.Location,
			Description:   e.Description,
			CoverImage:    e.CoverImage,
			IsHighlighted: e.IsHighlighted,
		})
	}
	return books, nil
}
