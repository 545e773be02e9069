package services

import (
	"context"
	"fmt"
	"time"

	"fitroomapi/models"
)

const DefaultClassifyCooldown = 3 * time.Second

// ClassifyItem is one garment image queued for classification.
type ClassifyItem struct {
	GarmentID uint
	Image     ImageInput
}

// ClassifyResult carries the per-item outcome. Err is a *GenerationError
// when set.
type ClassifyResult struct {
	GarmentID uint
	Category  models.GarmentCategory
	Err       error
}

// GarmentClassifier runs classification strictly one item at a time with a
// cooldown between calls, so a batch of uploads never bursts against the
// model quota.
type GarmentClassifier struct {
	LLM      GenAIProvider
	Model    LLMModelName
	Cooldown time.Duration

	// OnItemStart and OnItemDone let the caller flip per-garment status
	// around each call. Either may be nil.
	OnItemStart func(garmentID uint)
	OnItemDone  func(result ClassifyResult)
}

func NewGarmentClassifier(llm GenAIProvider) *GarmentClassifier {
	return &GarmentClassifier{
		LLM:      llm,
		Model:    Flash25,
		Cooldown: DefaultClassifyCooldown,
	}
}

// ProcessBatch classifies the items in order. A failing item is recorded and
// skipped; the rest of the batch still runs. The cooldown is applied between
// consecutive calls, not after the last one.
func (c *GarmentClassifier) ProcessBatch(ctx context.Context, items []ClassifyItem) []ClassifyResult {
	results := make([]ClassifyResult, 0, len(items))
	for i, item := range items {
		if i > 0 && c.Cooldown > 0 {
			select {
			case <-ctx.Done():
				results = append(results, ClassifyResult{GarmentID: item.GarmentID, Err: NormalizeGenerationError(ctx.Err())})
				continue
			case <-time.After(c.Cooldown):
			}
		}
		if c.OnItemStart != nil {
			c.OnItemStart(item.GarmentID)
		}

		result := ClassifyResult{GarmentID: item.GarmentID}
		category, err := c.LLM.ClassifyGarment(ctx, item.Image, c.Model)
		if err != nil {
			fmt.Printf("[Classify: %v] failed: %v\n", item.GarmentID, err)
			result.Err = NormalizeGenerationError(err)
		} else {
			result.Category = category
		}

		if c.OnItemDone != nil {
			c.OnItemDone(result)
		}
		results = append(results, result)
	}
	return results
}
