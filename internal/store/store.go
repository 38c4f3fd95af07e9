// Package store persists product records and ERP descriptors behind a
// backend-neutral interface. SQLite serves single-operator installs;
// Postgres serves the shared deployment.
package store

import (
	"context"

	"github.com/meridien-distribution/catalog-cli/internal/model"
)

// ProductFilter specifies criteria for listing products.
type ProductFilter struct {
	Status model.Status `json:"status,omitempty"`
	Limit  int          `json:"limit,omitempty"`
	Offset int          `json:"offset,omitempty"`
}

// Store defines the persistence interface for the catalog pipeline.
//
// FindByKey returns (nil, nil) when no record carries the value: an
// absent record is a normal lookup outcome, not an error.
type Store interface {
	// Products
	UpsertProduct(ctx context.Context, p *model.ProductRecord) error
	GetProduct(ctx context.Context, id string) (*model.ProductRecord, error)
	FindByKey(ctx context.Context, key model.FieldKey, value string) (*model.ProductRecord, error)
	ListProducts(ctx context.Context, filter ProductFilter) ([]model.ProductRecord, error)
	UpdateStatus(ctx context.Context, id string, status model.Status) error
	CountByStatus(ctx context.Context) (map[model.Status]int, error)

	// ERP descriptor cache
	ReplaceDescriptors(ctx context.Context, descriptors []model.ERPDescriptor) error
	ListDescriptors(ctx context.Context) ([]model.ERPDescriptor, error)

	// Orphan images
	LogOrphanImages(ctx context.Context, orphans []model.ImageRef) error
	ListOrphanImages(ctx context.Context, limit int) ([]model.ImageRef, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
