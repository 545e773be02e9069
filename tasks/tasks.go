package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"fitroomapi/models"
	"fitroomapi/services"
	"fitroomapi/telegram"

	firebase "firebase.google.com/go/v4"
	"github.com/getsentry/sentry-go"
	"github.com/hibiken/asynq"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

type GenerationPayload struct {
	GenerationID uint `json:"generation_id"`
}

type ClassifyBatchPayload struct {
	GarmentIDs []uint `json:"garment_ids"`
}

// Client initializes an asynq client for enqueuing tasks
func NewClient() (*asynq.Client, error) {
	return asynq.NewClient(asynq.RedisClientOpt{Addr: os.Getenv("ASYNC_BROKER_ADDRESS")}), nil
}

func NewGenerationTask(generationID uint) (*asynq.Task, error) {
	payload, err := json.Marshal(GenerationPayload{GenerationID: generationID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask("generate:run", payload), nil
}

func NewClassifyBatchTask(garmentIDs []uint) (*asynq.Task, error) {
	payload, err := json.Marshal(ClassifyBatchPayload{GarmentIDs: garmentIDs})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask("garments:classify", payload), nil
}

func getGarmentImage(awsService services.AWSServiceProvider, garment models.Garment) (services.ImageInput, error) {
	bucketName := os.Getenv("R2_BUCKET_NAME")
	if garment.ImageURL == nil {
		return services.ImageInput{}, fmt.Errorf("[Garment: %v] image key is nil", garment.ID)
	}
	fileBytes, err := services.FetchObject(context.TODO(), awsService, bucketName, *garment.ImageURL)
	if err != nil {
		sentry.CaptureException(fmt.Errorf("[Garment: %v] error downloading image %s: %v", garment.ID, *garment.ImageURL, err))
		return services.ImageInput{}, err
	}
	return services.ImageInput{Data: fileBytes, MIMEType: garment.MIMEType}, nil
}

func loadTryOnItems(db *gorm.DB, awsService services.AWSServiceProvider, ids pq.Int64Array, category models.GarmentCategory) ([]services.TryOnItem, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var garments []models.Garment
	if err := db.Where("id in ?", []int64(ids)).Find(&garments).Error; err != nil {
		return nil, err
	}
	byID := make(map[int64]models.Garment, len(garments))
	for _, garment := range garments {
		byID[int64(garment.ID)] = garment
	}

	// selection order comes from the stored ID array, not the query
	items := make([]services.TryOnItem, 0, len(ids))
	for _, id := range ids {
		garment, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("garment %v no longer exists", id)
		}
		image, err := getGarmentImage(awsService, garment)
		if err != nil {
			return nil, err
		}
		items = append(items, services.TryOnItem{Garment: garment, Category: category, Image: image})
	}
	return items, nil
}

// userKeyGate fronts the user's stored video key. Requesting a credential
// pushes the user back into the key selection screen.
type userKeyGate struct {
	db    *gorm.DB
	fbApp *firebase.App
	user  models.UserAccount
}

func (g *userKeyGate) HasCredential() bool {
	return g.user.VideoAPIKey != nil && *g.user.VideoAPIKey != ""
}

func (g *userKeyGate) RequestCredential() {
	fmt.Printf("[User: %v] no video key selected, requesting selection\n", g.user.ID)
	if g.fbApp != nil {
		services.SendNotification(g.fbApp, g.db, g.user.ID, "Video key needed",
			"Select an API key in settings, then press generate again", map[string]string{"type": "select_video_key"})
	}
}

// HandleGenerationTask runs one generation job end to end: expand the stored
// selection, render sequentially, persist every image the moment it lands and
// record the terminal status.
func HandleGenerationTask(ctx context.Context, t *asynq.Task, db *gorm.DB, llm services.GenAIProvider, awsService services.AWSServiceProvider, fbApp *firebase.App) error {
	var payload GenerationPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return err
	}
	fmt.Printf("[Generation: %v] Start Processing\n", payload.GenerationID)

	var generation models.Generation
	res := db.Joins("UserAccount").Joins("Company").First(&generation, payload.GenerationID)
	if res.Error != nil {
		sentry.CaptureException(fmt.Errorf("[QUEUE] Error on retrieving generation for processing %v", payload.GenerationID))
		return res.Error
	}

	generation.Status = models.GenerationStatusRunning
	if err := db.Save(&generation).Error; err != nil {
		sentry.CaptureException(fmt.Errorf("[Generation: %v] Error on saving running status: %v", payload.GenerationID, err))
		return err
	}

	bucketName := os.Getenv("R2_BUCKET_NAME")
	selection := services.Selection{}
	var loadErr error
	if generation.Mode == models.GenerationModeTryOn {
		for _, group := range []struct {
			ids      pq.Int64Array
			category models.GarmentCategory
			target   *[]services.TryOnItem
		}{
			{generation.OutfitIDs, models.CategoryOutfits, &selection.Outfits},
			{generation.TopIDs, models.CategoryTops, &selection.Tops},
			{generation.BottomIDs, models.CategoryBottoms, &selection.Bottoms},
			{generation.FootwearIDs, models.CategoryFootwear, &selection.Footwear},
			{generation.HeadwearIDs, models.CategoryHeadwear, &selection.Headwear},
			{generation.AccessoryIDs, models.CategoryAccessories, &selection.Accessories},
		} {
			*group.target, loadErr = loadTryOnItems(db, awsService, group.ids, group.category)
			if loadErr != nil {
				saveGenerationFail(db, &generation, services.NormalizeGenerationError(loadErr))
				return loadErr
			}
		}
	}

	var avatar services.ImageInput
	if generation.GeneratedWithAvatarURL != "" {
		avatarBytes, err := services.FetchObject(ctx, awsService, bucketName, generation.GeneratedWithAvatarURL)
		if err != nil {
			sentry.CaptureException(fmt.Errorf("[Generation: %v] Error downloading avatar %s: %v", payload.GenerationID, generation.GeneratedWithAvatarURL, err))
			saveGenerationFail(db, &generation, services.NormalizeGenerationError(err))
			return err
		}
		avatar = services.ImageInput{Data: avatarBytes, MIMEType: "image/png"}
	}

	orchestrator := services.NewGenerationOrchestrator(llm, &userKeyGate{db: db, fbApp: fbApp, user: generation.UserAccount})
	if generation.Company.EnforcedLLMModel != nil {
		orchestrator.ImageModel = services.LLMModelName(*generation.Company.EnforcedLLMModel)
		fmt.Printf("[Generation: %v] [ENFORCE MODEL] Using enforced model: %s\n", payload.GenerationID, orchestrator.ImageModel.String())
	}
	orchestrator.Publish = func(index int, image []byte) {
		key := fmt.Sprintf("results/%v-%v.png", generation.ID, index)
		if err := services.StoreObject(ctx, awsService, bucketName, key, image); err != nil {
			sentry.CaptureException(fmt.Errorf("[Generation: %v] Error uploading result %v: %v", generation.ID, index, err))
			return
		}
		workspaceImage := models.WorkspaceImage{
			GenerationID:  generation.ID,
			UserAccountID: generation.UserAccountID,
			Position:      index,
			ImageURL:      key,
			MIMEType:      "image/png",
		}
		if err := db.Create(&workspaceImage).Error; err != nil {
			sentry.CaptureException(fmt.Errorf("[Generation: %v] Error saving workspace image %v: %v", generation.ID, index, err))
			return
		}
		fmt.Printf("[Generation: %v] Result %v published\n", generation.ID, index)
	}

	request := &services.GenerationRequest{
		Mode:      generation.Mode,
		Selection: selection,
		Avatar:    avatar,
	}
	if generation.Instruction != nil {
		request.Instruction = *generation.Instruction
	}
	if generation.AspectRatio != nil {
		request.AspectRatio = *generation.AspectRatio
	}
	if generation.Resolution != nil {
		request.Resolution = *generation.Resolution
	}
	if generation.Mode == models.GenerationModeTryOn {
		generation.CombinationCount = len(services.GenerateCombinations(selection))
	}

	outcome := orchestrator.Generate(ctx, request)
	generation.Duration = &outcome.Duration
	generation.ResultCount = len(outcome.Images)

	if outcome.Err != nil {
		fmt.Printf("[Generation: %v] Failed after %v results: %v\n", generation.ID, len(outcome.Images), outcome.Err)
		saveGenerationFail(db, &generation, services.NormalizeGenerationError(outcome.Err))
		telegram.AlertFailure(fmt.Sprintf("Generation %v (%s) failed for user %v: %v", generation.ID, generation.Mode, generation.UserAccountID, outcome.Err))
		if generation.UserAccount.ReceiveNotifications {
			services.SendNotification(fbApp, db, generation.UserAccountID, "Generation failed",
				services.NormalizeGenerationError(outcome.Err).Message,
				map[string]string{"generation_id": fmt.Sprintf("%d", generation.ID), "type": "generation_failed"})
		}
		return nil
	}

	if generation.Mode == models.GenerationModeVideo && len(outcome.Video) > 0 {
		key := fmt.Sprintf("results/%v.mp4", generation.ID)
		if err := services.StoreObject(ctx, awsService, bucketName, key, outcome.Video); err != nil {
			sentry.CaptureException(fmt.Errorf("[Generation: %v] Error uploading video: %v", generation.ID, err))
			saveGenerationFail(db, &generation, services.NormalizeGenerationError(err))
			return err
		}
		generation.VideoURL = &key
	}

	generation.Status = models.GenerationStatusSucceeded
	generation.ErrorKind = nil
	generation.ErrorMessage = nil
	if err := db.Save(&generation).Error; err != nil {
		sentry.CaptureException(fmt.Errorf("[QUEUE] Error on saving generation %v", payload.GenerationID))
		return err
	}
	fmt.Printf("[Generation: %v] Finished successfully in %.1fs\n", generation.ID, outcome.Duration)

	if generation.UserAccount.ReceiveNotifications {
		services.SendNotification(fbApp, db, generation.UserAccountID, "Your look is ready",
			fmt.Sprintf("Generated %v result(s)", maxInt(generation.ResultCount, 1)),
			map[string]string{"generation_id": fmt.Sprintf("%d", generation.ID), "type": "generation_done"})
	}
	return nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func saveGenerationFail(db *gorm.DB, generation *models.Generation, generr *services.GenerationError) {
	generation.Status = models.GenerationStatusFailed
	kind := string(generr.Kind)
	generation.ErrorKind = &kind
	generation.ErrorMessage = services.StrPointer(generr.Message)
	if err := db.Save(generation).Error; err != nil {
		sentry.CaptureException(fmt.Errorf("[Fail Generation %v] Error on saving failed status: %v", generation.ID, err))
	}
}

// HandleClassifyBatchTask classifies a batch of uploaded garments strictly in
// upload order, one model call at a time. One bad photo never sinks the rest
// of the batch.
func HandleClassifyBatchTask(ctx context.Context, t *asynq.Task, db *gorm.DB, llm services.GenAIProvider, awsService services.AWSServiceProvider, fbApp *firebase.App) error {
	var payload ClassifyBatchPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return err
	}
	fmt.Printf("[Classify] Batch of %v garments\n", len(payload.GarmentIDs))

	items := make([]services.ClassifyItem, 0, len(payload.GarmentIDs))
	garmentsByID := make(map[uint]models.Garment, len(payload.GarmentIDs))
	var ownerID uint
	for _, garmentID := range payload.GarmentIDs {
		var garment models.Garment
		if err := db.First(&garment, garmentID).Error; err != nil {
			sentry.CaptureException(fmt.Errorf("[Garment: %v] Error retrieving garment for classification: %v", garmentID, err))
			continue
		}
		if garment.ClassifyStatus == models.ClassifyStatusDone {
			fmt.Printf("[Garment: %v] Already classified, skipping\n", garmentID)
			continue
		}
		image, err := getGarmentImage(awsService, garment)
		if err != nil {
			saveClassifyFail(db, garment, services.NormalizeGenerationError(err))
			continue
		}
		// flatten busy backgrounds before the model sees the photo
		cleaned, err := services.WhitenGarmentBackground(image.Data, 190, 235, 0.55)
		if err != nil {
			fmt.Printf("[Garment: %v] Background cleanup failed, using original: %v\n", garmentID, err)
		} else {
			image = services.ImageInput{Data: cleaned, MIMEType: "image/png"}
		}
		ownerID = garment.OwnerID
		garmentsByID[garment.ID] = garment
		items = append(items, services.ClassifyItem{GarmentID: garment.ID, Image: image})
	}
	if len(items) == 0 {
		return nil
	}

	classifier := services.NewGarmentClassifier(llm)
	classifier.OnItemStart = func(garmentID uint) {
		db.Model(&models.Garment{}).Where("id = ?", garmentID).
			Update("classify_status", models.ClassifyStatusClassifying)
	}
	classifier.OnItemDone = func(result services.ClassifyResult) {
		garment := garmentsByID[result.GarmentID]
		if result.Err != nil {
			saveClassifyFail(db, garment, services.NormalizeGenerationError(result.Err))
			return
		}
		updates := map[string]interface{}{
			"classify_status":        models.ClassifyStatusDone,
			"category":               result.Category,
			"classify_error_message": nil,
		}
		if err := db.Model(&models.Garment{}).Where("id = ?", result.GarmentID).Updates(updates).Error; err != nil {
			sentry.CaptureException(fmt.Errorf("[Garment: %v] Error saving classification: %v", result.GarmentID, err))
			return
		}
		fmt.Printf("[Garment: %v] Classified as %s\n", result.GarmentID, result.Category)
	}

	results := classifier.ProcessBatch(ctx, items)
	failed := 0
	for _, result := range results {
		if result.Err != nil {
			failed++
		}
	}
	fmt.Printf("[Classify] Batch finished: %v ok, %v failed\n", len(results)-failed, failed)

	if fbApp != nil && ownerID != 0 {
		services.SendNotification(fbApp, db, ownerID, "Closet updated",
			fmt.Sprintf("%v item(s) added to your closet", len(results)-failed),
			map[string]string{"type": "classify_done"})
	}
	return nil
}

func saveClassifyFail(db *gorm.DB, garment models.Garment, generr *services.GenerationError) {
	garment.ClassifyRetryTimes = garment.ClassifyRetryTimes + 1
	garment.ClassifyErrorMessage = services.StrPointer(generr.Message)
	garment.ClassifyStatus = models.ClassifyStatusFailed
	if err := db.Save(&garment).Error; err != nil {
		sentry.CaptureException(fmt.Errorf("[Fail Garment %v] Error on saving failed classify status: %v", garment.ID, err))
	}
}

// EnqueueGeneration creates the asynq task for a freshly created generation.
func EnqueueGeneration(client *asynq.Client, generationID uint) error {
	task, err := NewGenerationTask(generationID)
	if err != nil {
		return err
	}
	taskInfo, err := client.Enqueue(task, asynq.MaxRetry(1), asynq.ProcessIn(1*time.Second), asynq.Queue("generate"))
	if err != nil {
		return err
	}
	fmt.Printf("[Generation: %v] Task enqueued: %s\n", generationID, taskInfo.ID)
	return nil
}

func EnqueueClassifyBatch(client *asynq.Client, garmentIDs []uint) error {
	task, err := NewClassifyBatchTask(garmentIDs)
	if err != nil {
		return err
	}
	taskInfo, err := client.Enqueue(task, asynq.MaxRetry(2), asynq.ProcessIn(1*time.Second), asynq.Queue("classify"))
	if err != nil {
		return err
	}
	fmt.Printf("[Classify] Batch task enqueued: %s\n", taskInfo.ID)
	return nil
}
