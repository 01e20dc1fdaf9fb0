package blog

import (
	"context"
	"strings"

	"github.com/jonkersai/website/internal/validation"
	"github.com/jonkersai/website/recordstore"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const countConcurrency = 4

type termKind struct {
	name       string
	table      string
	joinTable  string
	joinColumn string
}

var (
	categoryKind = termKind{name: "category", table: CategoriesTable, joinTable: PostCategoriesTable, joinColumn: "category_id"}
	tagKind      = termKind{name: "tag", table: TagsTable, joinTable: PostTagsTable, joinColumn: "tag_id"}
)

type termInput struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description" validate:"max=500"`
}

func (s *Service) ListCategories(ctx context.Context) ([]Term, error) {
	return s.listTerms(ctx, categoryKind)
}

func (s *Service) CreateCategory(ctx context.Context, name, description string) (*Term, error) {
	return s.createTerm(ctx, categoryKind, termInput{Name: name, Description: description})
}

// UpdateCategory renames a category; its slug follows the new name.
func (s *Service) UpdateCategory(ctx context.Context, id, name, description string) (*Term, error) {
	return s.updateTerm(ctx, categoryKind, id, termInput{Name: name, Description: description})
}

func (s *Service) DeleteCategory(ctx context.Context, id string) error {
	return s.deleteTerm(ctx, categoryKind, id)
}

func (s *Service) ListTags(ctx context.Context) ([]Term, error) {
	return s.listTerms(ctx, tagKind)
}

func (s *Service) CreateTag(ctx context.Context, name string) (*Term, error) {
	return s.createTerm(ctx, tagKind, termInput{Name: name})
}

// RenameTag renames a tag; its slug follows the new name.
func (s *Service) RenameTag(ctx context.Context, id, name string) (*Term, error) {
	return s.updateTerm(ctx, tagKind, id, termInput{Name: name})
}

func (s *Service) DeleteTag(ctx context.Context, id string) error {
	return s.deleteTerm(ctx, tagKind, id)
}

// listTerms returns the terms ordered by name with their post counts. A
// failed count is logged and reported as zero.
func (s *Service) listTerms(ctx context.Context, kind termKind) ([]Term, error) {
	rows, err := s.store.Select(ctx, kind.table, recordstore.Query{
		Order: []recordstore.Order{{Column: "name"}},
	})
	if err != nil {
		return nil, errors.Wrapf(err, "[list %s] select", kind.name)
	}
	terms := make([]Term, len(rows))
	for i, r := range rows {
		terms[i] = termFromRow(r)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(countConcurrency)
	for i := range terms {
		g.Go(func() error {
			n, err := s.store.Count(gctx, kind.joinTable, recordstore.Where(recordstore.Eq(kind.joinColumn, terms[i].ID)))
			if err != nil {
				log.Err(err).Str(kind.name, terms[i].ID).Msg("Counting posts failed")
				return nil
			}
			terms[i].PostCount = n
			return nil
		})
	}
	_ = g.Wait()
	return terms, nil
}

func (s *Service) createTerm(ctx context.Context, kind termKind, in termInput) (*Term, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := validation.Struct(&in); err != nil {
		return nil, err
	}
	row := recordstore.Row{"name": in.Name, "slug": Slugify(in.Name)}
	if kind == categoryKind && in.Description != "" {
		row["description"] = in.Description
	}
	inserted, err := s.store.Insert(ctx, kind.table, row)
	if err != nil {
		return nil, storeError(err, "[create "+kind.name+"] insert")
	}
	if len(inserted) == 0 {
		return nil, errors.Errorf("[create %s] insert returned no row", kind.name)
	}
	t := termFromRow(inserted[0])
	return &t, nil
}

func (s *Service) updateTerm(ctx context.Context, kind termKind, id string, in termInput) (*Term, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := validation.Struct(&in); err != nil {
		return nil, err
	}
	patch := recordstore.Row{"name": in.Name, "slug": Slugify(in.Name)}
	if kind == categoryKind {
		patch["description"] = in.Description
	}
	updated, err := s.store.Update(ctx, kind.table, recordstore.Where(recordstore.Eq("id", id)), patch)
	if err != nil {
		return nil, storeError(err, "[update "+kind.name+"] update")
	}
	if len(updated) == 0 {
		return nil, ErrNotFound
	}
	t := termFromRow(updated[0])
	if t.PostCount, err = s.store.Count(ctx, kind.joinTable, recordstore.Where(recordstore.Eq(kind.joinColumn, id))); err != nil {
		log.Err(err).Str(kind.name, id).Msg("Counting posts failed")
	}
	return &t, nil
}

// deleteTerm refuses to delete a term still assigned to posts.
func (s *Service) deleteTerm(ctx context.Context, kind termKind, id string) error {
	n, err := s.store.Count(ctx, kind.joinTable, recordstore.Where(recordstore.Eq(kind.joinColumn, id)))
	if err != nil {
		return errors.Wrapf(err, "[delete %s] count posts", kind.name)
	}
	if n > 0 {
		return ErrInUse
	}
	if err := s.store.Delete(ctx, kind.table, recordstore.Where(recordstore.Eq("id", id))); err != nil {
		return errors.Wrapf(err, "[delete %s] delete", kind.name)
	}
	return nil
}
