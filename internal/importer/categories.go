package importer

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dvloznov/budget-backend/internal/domain"
)

// maxCategoryName mirrors the store's category name limit.
const maxCategoryName = 200

type rootKey struct {
	kind domain.Kind
	name string
}

type childKey struct {
	kind     domain.Kind
	parentID string
	name     string
}

// categoryCreator resolves category names to ids, minting new categories
// when the store has no match. Parents are always created before children.
type categoryCreator struct {
	now time.Time

	existingRoot  map[rootKey]string
	existingChild map[childKey]string
	createdRoot   map[rootKey]string
	createdChild  map[childKey]string
	created       []domain.Category
}

func truncateName(name string) string {
	name = strings.TrimSpace(name)
	if len(name) > maxCategoryName {
		name = name[:maxCategoryName]
	}
	return name
}

func (c *categoryCreator) rootID(kind domain.Kind, name string) string {
	name = truncateName(name)
	key := rootKey{kind: kind, name: domain.NormalizeText(name)}
	if id, ok := c.existingRoot[key]; ok {
		return id
	}
	if id, ok := c.createdRoot[key]; ok {
		return id
	}
	id := uuid.New().String()
	c.createdRoot[key] = id
	c.created = append(c.created, domain.Category{
		ID:        id,
		Name:      name,
		Kind:      kind,
		Active:    true,
		CreatedAt: c.now,
		UpdatedAt: c.now,
	})
	return id
}

func (c *categoryCreator) childID(kind domain.Kind, parentID, name string) string {
	name = truncateName(name)
	key := childKey{kind: kind, parentID: parentID, name: domain.NormalizeText(name)}
	if id, ok := c.existingChild[key]; ok {
		return id
	}
	if id, ok := c.createdChild[key]; ok {
		return id
	}
	id := uuid.New().String()
	c.createdChild[key] = id
	c.created = append(c.created, domain.Category{
		ID:        id,
		Name:      name,
		Kind:      kind,
		ParentID:  parentID,
		Active:    true,
		CreatedAt: c.now,
		UpdatedAt: c.now,
	})
	return id
}

// existingCategoryMaps indexes the store's categories by kind and normalized
// name, split into roots and children.
func (imp *Importer) existingCategoryMaps() (map[rootKey]string, map[childKey]string) {
	roots := map[rootKey]string{}
	children := map[childKey]string{}
	for _, c := range imp.store.ListCategories() {
		name := domain.NormalizeText(c.Name)
		if c.ParentID == "" {
			roots[rootKey{kind: c.Kind, name: name}] = c.ID
		} else {
			children[childKey{kind: c.Kind, parentID: c.ParentID, name: name}] = c.ID
		}
	}
	return roots, children
}
