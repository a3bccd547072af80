package vector

import (
	"context"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"
)

// ClassName is the weaviate class holding indexed chunks.
const ClassName = "DocumentChunk"

// SchemaClient defines the interface for Weaviate schema operations
type SchemaClient interface {
	ClassExists(ctx context.Context, className string) (bool, error)
	CreateClass(ctx context.Context, class *models.Class) error
	GetClass(ctx context.Context, className string) (*models.Class, error)
	AddProperty(ctx context.Context, className string, property *models.Property) error
}

// Properties lists the chunk properties. Everything not promoted to its own
// property travels JSON-encoded in "metadata".
func Properties() []*models.Property {
	return []*models.Property{
		{Name: "content", DataType: []string{"text"}},
		{Name: "source", DataType: []string{"string"}},
		{Name: "fileName", DataType: []string{"text"}},
		{Name: "type", DataType: []string{"string"}},
		{Name: "page", DataType: []string{"int"}},
		{Name: "chunkIndex", DataType: []string{"int"}},
		{Name: "metadata", DataType: []string{"text"}},
	}
}

// EnsureSchema creates the chunk class, or adds properties missing from an
// older version of it.
func EnsureSchema(ctx context.Context, client SchemaClient) error {
	exists, err := client.ClassExists(ctx, ClassName)
	if err != nil {
		return err
	}

	properties := Properties()
	if !exists {
		class := &models.Class{
			Class:       ClassName,
			Description: "A chunk of an ingested document",
			Vectorizer:  "none",
			Properties:  properties,
		}
		return client.CreateClass(ctx, class)
	}

	class, err := client.GetClass(ctx, ClassName)
	if err != nil {
		return err
	}

	existingProps := make(map[string]bool)
	for _, p := range class.Properties {
		existingProps[p.Name] = true
	}

	for _, p := range properties {
		if !existingProps[p.Name] {
			if err := client.AddProperty(ctx, ClassName, p); err != nil {
				return err
			}
		}
	}
	return nil
}

// ClientAdapter satisfies SchemaClient with a live weaviate client.
type ClientAdapter struct {
	Client *weaviate.Client
}

func NewClientAdapter(client *weaviate.Client) *ClientAdapter {
	return &ClientAdapter{Client: client}
}

func (a *ClientAdapter) ClassExists(ctx context.Context, className string) (bool, error) {
	return a.Client.Schema().ClassExistenceChecker().WithClassName(className).Do(ctx)
}

func (a *ClientAdapter) CreateClass(ctx context.Context, class *models.Class) error {
	return a.Client.Schema().ClassCreator().WithClass(class).Do(ctx)
}

func (a *ClientAdapter) GetClass(ctx context.Context, className string) (*models.Class, error) {
	return a.Client.Schema().ClassGetter().WithClassName(className).Do(ctx)
}

func (a *ClientAdapter) AddProperty(ctx context.Context, className string, property *models.Property) error {
	return a.Client.Schema().PropertyCreator().WithClassName(className).WithProperty(property).Do(ctx)
}
