package services_test

import (
	"context"
	"testing"
	"time"

	"fitroomapi/models"
	"fitroomapi/services"
	"fitroomapi/test"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func classifyItems(ids ...uint) []services.ClassifyItem {
	items := make([]services.ClassifyItem, 0, len(ids))
	for _, id := range ids {
		items = append(items, services.ClassifyItem{
			GarmentID: id,
			Image:     services.ImageInput{Data: []byte{0x1}, MIMEType: "image/png"},
		})
	}
	return items
}

func TestProcessBatchKeepsSubmissionOrder(t *testing.T) {
	llm := &test.GenAIProviderMock{Categories: []models.GarmentCategory{
		models.CategoryTops, models.CategoryFootwear, models.CategoryHeadwear,
	}}
	classifier := services.NewGarmentClassifier(llm)
	classifier.Cooldown = 0

	results := classifier.ProcessBatch(context.Background(), classifyItems(7, 3, 9))

	require.Len(t, results, 3)
	assert.Equal(t, uint(7), results[0].GarmentID)
	assert.Equal(t, uint(3), results[1].GarmentID)
	assert.Equal(t, uint(9), results[2].GarmentID)
	assert.Equal(t, models.CategoryTops, results[0].Category)
	assert.Equal(t, models.CategoryFootwear, results[1].Category)
	assert.Equal(t, models.CategoryHeadwear, results[2].Category)
}

func TestProcessBatchCooldownBetweenItemsOnly(t *testing.T) {
	llm := &test.GenAIProviderMock{}
	classifier := services.NewGarmentClassifier(llm)
	classifier.Cooldown = 50 * time.Millisecond

	started := time.Now()
	results := classifier.ProcessBatch(context.Background(), classifyItems(1, 2, 3))
	elapsed := time.Since(started)

	require.Len(t, results, 3)
	// two gaps for three items, no trailing wait
	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
	assert.Less(t, elapsed, 200*time.Millisecond)
}

func TestProcessBatchSingleItemNoCooldown(t *testing.T) {
	llm := &test.GenAIProviderMock{}
	classifier := services.NewGarmentClassifier(llm)
	classifier.Cooldown = time.Hour

	done := make(chan struct{})
	go func() {
		classifier.ProcessBatch(context.Background(), classifyItems(1))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("single-item batch waited on the cooldown")
	}
}

func TestProcessBatchFailureDoesNotAbortBatch(t *testing.T) {
	llm := &test.GenAIProviderMock{Categories: []models.GarmentCategory{
		models.CategoryTops, "", models.CategoryBottoms,
	}}
	classifier := services.NewGarmentClassifier(llm)
	classifier.Cooldown = 0

	results := classifier.ProcessBatch(context.Background(), classifyItems(1, 2, 3))

	require.Len(t, results, 3)
	assert.NoError(t, results[0].Err)
	assert.Error(t, results[1].Err)
	assert.NoError(t, results[2].Err)
	assert.Equal(t, models.CategoryBottoms, results[2].Category)
}

func TestProcessBatchCallbacks(t *testing.T) {
	llm := &test.GenAIProviderMock{}
	classifier := services.NewGarmentClassifier(llm)
	classifier.Cooldown = 0

	var startedIDs []uint
	var doneIDs []uint
	classifier.OnItemStart = func(garmentID uint) {
		startedIDs = append(startedIDs, garmentID)
	}
	classifier.OnItemDone = func(result services.ClassifyResult) {
		doneIDs = append(doneIDs, result.GarmentID)
	}

	classifier.ProcessBatch(context.Background(), classifyItems(5, 6))

	assert.Equal(t, []uint{5, 6}, startedIDs)
	assert.Equal(t, []uint{5, 6}, doneIDs)
}

func TestProcessBatchContextCancelledDuringCooldown(t *testing.T) {
	llm := &test.GenAIProviderMock{}
	classifier := services.NewGarmentClassifier(llm)
	classifier.Cooldown = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	results := classifier.ProcessBatch(ctx, classifyItems(1, 2))

	require.Len(t, results, 2)
	assert.NoError(t, results[0].Err)
	assert.Error(t, results[1].Err)
}
