package controllers

import (
	"fmt"
	"net/http"
	"time"

	"fitroomapi/models"
	"fitroomapi/services"
	"fitroomapi/tasks"

	"github.com/getsentry/sentry-go"
	"github.com/hibiken/asynq"
	"github.com/labstack/echo/v4"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

type CreateGenerationIn struct {
	Mode string `json:"mode" validate:"required,oneof=try-on edit video"`

	OutfitIDs    []int64 `json:"outfit_ids"`
	TopIDs       []int64 `json:"top_ids"`
	BottomIDs    []int64 `json:"bottom_ids"`
	FootwearIDs  []int64 `json:"footwear_ids"`
	HeadwearIDs  []int64 `json:"headwear_ids"`
	AccessoryIDs []int64 `json:"accessory_ids"`

	Instruction *string `json:"instruction" validate:"omitempty,max=2000"`
	AspectRatio *string `json:"aspect_ratio" validate:"omitempty,oneof=16:9 9:16"`
	Resolution  *string `json:"resolution" validate:"omitempty,oneof=720p 1080p"`

	// edit and video run against one previous result
	SourceImageID *uint `json:"source_image_id"`
}

type WorkspaceImageOut struct {
	ID       uint    `json:"id"`
	Position int     `json:"position"`
	Uri      *string `json:"uri,omitempty"`
}

type GenerationOut struct {
	ID               uint                `json:"id"`
	Mode             string              `json:"mode"`
	Status           string              `json:"status"`
	Duration         *float64            `json:"duration"`
	CombinationCount int                 `json:"combination_count"`
	ResultCount      int                 `json:"result_count"`
	ErrorKind        *string             `json:"error_kind"`
	ErrorMessage     *string             `json:"error_message"`
	Results          []WorkspaceImageOut `json:"results"`
	VideoUri         *string             `json:"video_uri,omitempty"`
	CreatedAt        string              `json:"created_at"`
}

type GenerationsController struct {
	AWSService services.AWSServiceProvider
	URLCache   services.URLCacheServiceProvider
}

func (controller *GenerationsController) GenerationRoutes(g *echo.Group) {
	g.POST("/create", controller.CreateGeneration)
	g.GET("/:generationId", controller.GetGeneration)
	g.GET("/workspace", controller.ListWorkspace)
}

// checkGenerationLimits returns an *echo.HTTPError when the plan is
// exhausted, nil when the job may run. The caller must return the error
// unwritten.
func checkGenerationLimits(db *gorm.DB, user models.UserAccount) error {
	company := user.Memberships[0].Company
	if string(company.Subscription) == "free" {
		var totalGenerationCount int64
		if err := db.Model(&models.Generation{}).Where("company_id = ?", company.ID).Count(&totalGenerationCount).Error; err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "Failed to get generation data")
		}
		fmt.Printf("[User %v] Free plan, generation count: %v\n", user.ID, totalGenerationCount)
		if totalGenerationCount >= 5 {
			return echo.NewHTTPError(http.StatusForbidden, "You have reached the free limit of 5 generations, please subscribe")
		}
	}

	if company.EnforcedDailyGenerationLimit != nil {
		var dailyGenerationCount int64
		today := time.Now().UTC().Format("2006-01-02")
		if err := db.Model(&models.Generation{}).Where("company_id = ? AND DATE(created_at) = ?", company.ID, today).Count(&dailyGenerationCount).Error; err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "Failed to get generation data")
		}
		fmt.Printf("[User %v] Enforced daily limit, generation count: %v\n", user.ID, dailyGenerationCount)
		if dailyGenerationCount >= int64(*company.EnforcedDailyGenerationLimit) {
			return echo.NewHTTPError(http.StatusForbidden, fmt.Sprintf("You have reached the limit of %v daily generations. Please wait for the next day.", *company.EnforcedDailyGenerationLimit))
		}
	}
	return nil
}

// CreateGeneration validates the descriptor, snapshots the selection and
// hands the job to the worker queue. Input problems are rejected here so a
// doomed job never reaches the queue.
func (controller *GenerationsController) CreateGeneration(c echo.Context) error {
	var req CreateGenerationIn
	if err := c.Bind(&req); err != nil {
		fmt.Println(err)
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if err := c.Validate(req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	user, ok := c.Get("currentUser").(models.UserAccount)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}
	db, ok := c.Get("__db").(*gorm.DB)
	if !ok {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Database connection error"})
	}
	asynqClient, ok := c.Get("__asynqclient").(*asynq.Client)
	if !ok {
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Service is not available, please try again a bit later"})
	}

	selectedCount := len(req.OutfitIDs) + len(req.TopIDs) + len(req.BottomIDs) +
		len(req.FootwearIDs) + len(req.HeadwearIDs) + len(req.AccessoryIDs)

	avatarURL := ""
	switch req.Mode {
	case models.GenerationModeTryOn:
		if selectedCount == 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "Select at least one item to try on"})
		}
		if user.UserFullBodyImageURL == nil || *user.UserFullBodyImageURL == "" {
			return c.JSON(http.StatusForbidden, map[string]string{"error": "You have to set your avatar first before generating try-on"})
		}
		avatarURL = *user.UserFullBodyImageURL
	case models.GenerationModeEdit, models.GenerationModeVideo:
		if req.Instruction == nil || *req.Instruction == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "Describe what you want first"})
		}
		if req.SourceImageID == nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "Select an image to start from"})
		}
		var source models.WorkspaceImage
		if err := db.Where("id = ? AND user_account_id = ?", *req.SourceImageID, user.ID).First(&source).Error; err != nil {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "Selected image was not found"})
		}
		avatarURL = source.ImageURL
	}
	if req.Mode == models.GenerationModeVideo && req.AspectRatio == nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Pick an aspect ratio for the video"})
	}

	if err := checkGenerationLimits(db, user); err != nil {
		return err
	}

	generation := models.Generation{
		Mode:                   req.Mode,
		UserAccountID:          user.ID,
		CompanyID:              user.Memberships[0].CompanyID,
		OutfitIDs:              pq.Int64Array(req.OutfitIDs),
		TopIDs:                 pq.Int64Array(req.TopIDs),
		BottomIDs:              pq.Int64Array(req.BottomIDs),
		FootwearIDs:            pq.Int64Array(req.FootwearIDs),
		HeadwearIDs:            pq.Int64Array(req.HeadwearIDs),
		AccessoryIDs:           pq.Int64Array(req.AccessoryIDs),
		Instruction:            req.Instruction,
		AspectRatio:            req.AspectRatio,
		Resolution:             req.Resolution,
		GeneratedWithAvatarURL: avatarURL,
		Status:                 models.GenerationStatusPending,
	}
	if err := db.Create(&generation).Error; err != nil {
		sentry.CaptureException(err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to start generation, please try again"})
	}

	if err := tasks.EnqueueGeneration(asynqClient, generation.ID); err != nil {
		sentry.CaptureException(err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Sorry, could not start generation, please try again"})
	}

	return c.JSON(http.StatusCreated, map[string]interface{}{
		"generation_id": generation.ID,
		"status":        generation.Status,
	})
}

func (controller *GenerationsController) presignWorkspaceImages(c echo.Context, images []models.WorkspaceImage) []WorkspaceImageOut {
	results := make([]WorkspaceImageOut, 0, len(images))
	for _, image := range images {
		uri, err := controller.URLCache.GetReadURL(c.Request().Context(), image.ImageURL)
		if err != nil {
			sentry.CaptureException(err)
			uri = ""
		}
		results = append(results, WorkspaceImageOut{ID: image.ID, Position: image.Position, Uri: &uri})
	}
	return results
}

// GetGeneration reports job status together with every result published so
// far, so clients can render partial progress while the batch is running.
func (controller *GenerationsController) GetGeneration(c echo.Context) error {
	user, ok := c.Get("currentUser").(models.UserAccount)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}
	db := c.Get("__db").(*gorm.DB)

	var generationId uint
	if err := echo.PathParamsBinder(c).Uint("generationId", &generationId).BindError(); err != nil {
		return echo.ErrBadRequest
	}

	var generation models.Generation
	if err := db.Where("id = ? AND user_account_id = ?", generationId, user.ID).First(&generation).Error; err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Generation not found"})
	}

	var images []models.WorkspaceImage
	if err := db.Where("generation_id = ?", generation.ID).Order("position").Find(&images).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to fetch results"})
	}

	out := GenerationOut{
		ID:               generation.ID,
		Mode:             generation.Mode,
		Status:           generation.Status,
		Duration:         generation.Duration,
		CombinationCount: generation.CombinationCount,
		ResultCount:      len(images),
		ErrorKind:        generation.ErrorKind,
		ErrorMessage:     generation.ErrorMessage,
		Results:          controller.presignWorkspaceImages(c, images),
		CreatedAt:        generation.CreatedAt.Format("2006-01-02T15:04:05Z"),
	}
	if generation.VideoURL != nil {
		videoUri, err := controller.URLCache.GetReadURL(c.Request().Context(), *generation.VideoURL)
		if err == nil {
			out.VideoUri = &videoUri
		} else {
			sentry.CaptureException(err)
		}
	}
	return c.JSON(http.StatusOK, out)
}

// ListWorkspace lists every rendered result of the user, newest first.
func (controller *GenerationsController) ListWorkspace(c echo.Context) error {
	user, ok := c.Get("currentUser").(models.UserAccount)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}
	db := c.Get("__db").(*gorm.DB)

	var images []models.WorkspaceImage
	if err := db.Where("user_account_id = ?", user.ID).Order("id desc").Limit(100).Find(&images).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to fetch workspace"})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"images": controller.presignWorkspaceImages(c, images),
	})
}
