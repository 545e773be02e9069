package controllers

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"fitroomapi/models"
	"fitroomapi/services"
	"fitroomapi/tasks"

	firebase "firebase.google.com/go/v4"
	"github.com/getsentry/sentry-go"
	"github.com/hibiken/asynq"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
)

type CreateGarmentIn struct {
	Name        string  `json:"name" validate:"omitempty,max=100"`
	FileName    *string `json:"file_name" validate:"required,max=200"`
	Description *string `json:"description" validate:"omitempty,max=500"`
	// set to skip classification and file the garment directly
	Category *string `json:"category" validate:"omitempty,category"`
}

type ClassifyGarmentsIn struct {
	GarmentIDs []uint `json:"garment_ids" validate:"required,min=1,max=20"`
}

type BatchImportIn struct {
	FileName string `json:"file_name" validate:"required,max=200"`
}

type GarmentResponse struct {
	ID                   uint    `json:"id"`
	Name                 string  `json:"name"`
	Description          *string `json:"description"`
	Category             string  `json:"category"`
	ClassifyStatus       string  `json:"classify_status"`
	ClassifyErrorMessage *string `json:"classify_error_message,omitempty"`
	Uri                  *string `json:"uri,omitempty"`
	CreatedAt            string  `json:"created_at"`
	UpdatedAt            string  `json:"updated_at"`
}

type GarmentCreatedResponse struct {
	Garment       GarmentResponse `json:"garment"`
	FileUploadUrl string          `json:"file_upload_url"`
}

type ClosetListResponse struct {
	Outfits     []GarmentResponse `json:"outfits"`
	Tops        []GarmentResponse `json:"tops"`
	Bottoms     []GarmentResponse `json:"bottoms"`
	Footwear    []GarmentResponse `json:"footwear"`
	Headwear    []GarmentResponse `json:"headwear"`
	Accessories []GarmentResponse `json:"accessories"`
	Pending     []GarmentResponse `json:"pending"`
}

type GarmentsController struct {
	AWSService  services.AWSServiceProvider
	FirebaseApp *firebase.App
	URLCache    services.URLCacheServiceProvider
}

func (controller *GarmentsController) GarmentRoutes(g *echo.Group) {
	g.POST("/create", controller.CreateGarment)
	g.POST("/classify", controller.ClassifyGarments)
	g.POST("/import", controller.BatchImport)
	g.GET("/list", controller.ListCloset)
	g.DELETE("/reset", controller.ResetCloset)
}

// checkGarmentLimits returns an *echo.HTTPError when the closet is full, nil
// when the upload may proceed. The caller must return the error unwritten.
func checkGarmentLimits(db *gorm.DB, user models.UserAccount, added int) error {
	company := user.Memberships[0].Company
	if string(company.Subscription) == "free" {
		var totalGarmentCount int64
		if err := db.Model(&models.Garment{}).Where("company_id = ?", company.ID).Count(&totalGarmentCount).Error; err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "Failed to get closet data")
		}
		fmt.Printf("[User %v] Free plan, garment count: %v\n", user.ID, totalGarmentCount)
		if totalGarmentCount+int64(added) > 10 {
			return echo.NewHTTPError(http.StatusForbidden, "You have reached the free limit of 10 closet items, please subscribe")
		}
	}

	if company.EnforcedDailyGarmentLimit != nil {
		var dailyGarmentCount int64
		today := time.Now().UTC().Format("2006-01-02")
		if err := db.Model(&models.Garment{}).Where("company_id = ? AND DATE(created_at) = ?", company.ID, today).Count(&dailyGarmentCount).Error; err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "Failed to get closet data")
		}
		fmt.Printf("[User %v] Enforced daily limit, garment count: %v\n", user.ID, dailyGarmentCount)
		if dailyGarmentCount+int64(added) > int64(*company.EnforcedDailyGarmentLimit) {
			return echo.NewHTTPError(http.StatusForbidden, fmt.Sprintf("You have reached the limit of %v daily uploads. Please wait for the next day.", *company.EnforcedDailyGarmentLimit))
		}
	}
	return nil
}

// CreateGarment registers an upload: the row is created pending and the
// client pushes the photo to the returned presigned URL, then calls
// /classify to queue it.
func (controller *GarmentsController) CreateGarment(c echo.Context) error {
	var req CreateGarmentIn
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

	if req.FileName == nil || *req.FileName == "" {
		sentry.CaptureException(fmt.Errorf("Image was not provided when creating garment %s, user %v", req.Name, user.ID))
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Sorry, it seems image was not provided, please try again"})
	}
	if !services.IsAllowedImageExtension(*req.FileName) {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Only image files can be added to the closet"})
	}
	if err := checkGarmentLimits(db, user, 1); err != nil {
		return err
	}

	garment := models.Garment{
		Name:           req.Name,
		Description:    req.Description,
		OwnerID:        user.ID,
		CompanyID:      user.Memberships[0].CompanyID,
		MIMEType:       services.MIMETypeForFilename(*req.FileName),
		ClassifyStatus: models.ClassifyStatusPending,
	}
	if req.Category != nil {
		// manual filing skips the queue entirely
		garment.Category = models.GarmentCategory(*req.Category)
		garment.ClassifyStatus = models.ClassifyStatusDone
	}

	var bucketName = services.GetEnv("R2_BUCKET_NAME", "")
	safeFileName := fmt.Sprintf("garments/%v-%s", user.ID, *req.FileName)
	uploadUrl, presignErr := controller.AWSService.PresignLink(context.Background(), bucketName, safeFileName)
	garment.ImageURL = &safeFileName
	if presignErr != nil {
		log.Printf("Unable to presign upload for %s!, %s", garment.Name, presignErr)
		return c.JSON(http.StatusInternalServerError, echo.Map{
			"message": "Error while creating garment with attachment",
		})
	}
	if err := db.Create(&garment).Error; err != nil {
		sentry.CaptureException(err)
		return err
	}

	response := GarmentCreatedResponse{
		Garment:       garmentResponse(garment, nil),
		FileUploadUrl: uploadUrl,
	}
	return c.JSON(http.StatusCreated, response)
}

// ClassifyGarments queues the uploaded garments for sequential
// classification, in the order the client lists them.
func (controller *GarmentsController) ClassifyGarments(c echo.Context) error {
	var req ClassifyGarmentsIn
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if err := c.Validate(req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	user, ok := c.Get("currentUser").(models.UserAccount)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}
	db := c.Get("__db").(*gorm.DB)
	asynqClient, ok := c.Get("__asynqclient").(*asynq.Client)
	if !ok {
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Service is not available, please try again a bit later"})
	}

	var ownedCount int64
	if err := db.Model(&models.Garment{}).Where("id in ? AND owner_id = ?", req.GarmentIDs, user.ID).Count(&ownedCount).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to get closet data"})
	}
	if ownedCount != int64(len(req.GarmentIDs)) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Some garments were not found"})
	}

	db.Model(&models.Garment{}).Where("id in ?", req.GarmentIDs).
		Update("classify_status", models.ClassifyStatusPending)

	if err := tasks.EnqueueClassifyBatch(asynqClient, req.GarmentIDs); err != nil {
		sentry.CaptureException(err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Sorry, could not queue classification, please try again"})
	}
	return c.JSON(http.StatusAccepted, map[string]interface{}{"queued": len(req.GarmentIDs)})
}

// BatchImport unpacks an already uploaded zip into individual garments and
// queues the whole batch for classification.
func (controller *GarmentsController) BatchImport(c echo.Context) error {
	var req BatchImportIn
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if err := c.Validate(req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	user, ok := c.Get("currentUser").(models.UserAccount)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}
	db := c.Get("__db").(*gorm.DB)
	asynqClient, ok := c.Get("__asynqclient").(*asynq.Client)
	if !ok {
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Service is not available, please try again a bit later"})
	}

	bucketName := services.GetEnv("R2_BUCKET_NAME", "")
	zipKey := fmt.Sprintf("imports/%v-%s", user.ID, req.FileName)
	zipBytes, err := services.FetchObject(c.Request().Context(), controller.AWSService, bucketName, zipKey)
	if err != nil {
		sentry.CaptureException(fmt.Errorf("[User: %v] Error downloading import zip %s: %v", user.ID, zipKey, err))
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Could not read the uploaded archive, please upload it again"})
	}

	images, err := services.ExtractZipGarmentImages(zipBytes, req.FileName, user.ID)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	if err := checkGarmentLimits(db, user, len(images)); err != nil {
		return err
	}

	garmentIDs := make([]uint, 0, len(images))
	for i, image := range images {
		key := fmt.Sprintf("garments/%v-import-%v-%s.png", user.ID, i, image.Name)
		if err := services.StoreObject(c.Request().Context(), controller.AWSService, bucketName, key, image.Data); err != nil {
			sentry.CaptureException(fmt.Errorf("[User: %v] Error storing imported garment %s: %v", user.ID, image.Name, err))
			continue
		}
		garment := models.Garment{
			Name:           image.Name,
			OwnerID:        user.ID,
			CompanyID:      user.Memberships[0].CompanyID,
			ImageURL:       &key,
			MIMEType:       image.MIMEType,
			ClassifyStatus: models.ClassifyStatusPending,
		}
		if err := db.Create(&garment).Error; err != nil {
			sentry.CaptureException(err)
			continue
		}
		garmentIDs = append(garmentIDs, garment.ID)
	}
	if len(garmentIDs) == 0 {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Could not import any garment from the archive"})
	}

	if err := tasks.EnqueueClassifyBatch(asynqClient, garmentIDs); err != nil {
		sentry.CaptureException(err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Imported, but could not queue classification, please retry"})
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{"imported": len(garmentIDs), "garment_ids": garmentIDs})
}

func garmentResponse(item models.Garment, uri *string) GarmentResponse {
	return GarmentResponse{
		ID:                   item.ID,
		Name:                 item.Name,
		Description:          item.Description,
		Category:             string(item.Category),
		ClassifyStatus:       item.ClassifyStatus,
		ClassifyErrorMessage: item.ClassifyErrorMessage,
		Uri:                  uri,
		CreatedAt:            item.CreatedAt.Format("2006-01-02T15:04:05Z"),
		UpdatedAt:            item.UpdatedAt.Format("2006-01-02T15:04:05Z"),
	}
}

// populatePresignedGarmentImages enriches raw garment rows with presigned
// URLs concurrently, falling back to a direct presign when the cache layer
// itself fails.
func (controller *GarmentsController) populatePresignedGarmentImages(ctx context.Context, garments []models.Garment) []GarmentResponse {
	if len(garments) == 0 {
		return []GarmentResponse{}
	}

	var wg sync.WaitGroup
	processedResponses := make([]GarmentResponse, len(garments))
	bucketName := services.GetEnv("R2_BUCKET_NAME", "")

	for i, garmentItem := range garments {
		wg.Add(1)
		go func(index int, item models.Garment) {
			defer wg.Done()

			var imageUrl string
			if item.ImageURL != nil && *item.ImageURL != "" {
				objectKey := *item.ImageURL

				url, err := controller.URLCache.GetReadURL(ctx, objectKey)
				if err == nil {
					imageUrl = url
				} else {
					log.Printf("CACHE WARNING: Cache system failed for key '%s': %v. Triggering manual R2 fallback.", objectKey, err)
					sentry.WithScope(func(scope *sentry.Scope) {
						scope.SetTag("failure_type", "cache_system")
						scope.SetExtra("objectKey", objectKey)
						sentry.CaptureException(err)
					})

					fallbackUrl, fallbackErr := controller.AWSService.GetPresignedR2FileReadURL(ctx, bucketName, objectKey)
					if fallbackErr != nil {
						log.Printf("CRITICAL: Manual R2 fallback also failed for key '%s': %v", objectKey, fallbackErr)
						sentry.CaptureException(fallbackErr)
					} else {
						imageUrl = fallbackUrl
					}
				}
			}
			processedResponses[index] = garmentResponse(item, &imageUrl)
		}(i, garmentItem)
	}

	wg.Wait()
	return processedResponses
}

// ListCloset returns the closet grouped by category. Items still waiting for
// classification (or failed) surface in the pending group with their status.
func (controller *GarmentsController) ListCloset(c echo.Context) error {
	user, ok := c.Get("currentUser").(models.UserAccount)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}
	db, ok := c.Get("__db").(*gorm.DB)
	if !ok {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Database connection error"})
	}

	var garments []models.Garment
	if err := db.Where("owner_id = ? AND company_id = ?", user.ID, user.Memberships[0].CompanyID).Order("id").Find(&garments).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to fetch closet"})
	}

	processedResponses := controller.populatePresignedGarmentImages(c.Request().Context(), garments)

	response := ClosetListResponse{
		Outfits:     []GarmentResponse{},
		Tops:        []GarmentResponse{},
		Bottoms:     []GarmentResponse{},
		Footwear:    []GarmentResponse{},
		Headwear:    []GarmentResponse{},
		Accessories: []GarmentResponse{},
		Pending:     []GarmentResponse{},
	}
	for _, item := range processedResponses {
		if item.ClassifyStatus != models.ClassifyStatusDone {
			response.Pending = append(response.Pending, item)
			continue
		}
		switch models.GarmentCategory(item.Category) {
		case models.CategoryOutfits:
			response.Outfits = append(response.Outfits, item)
		case models.CategoryTops:
			response.Tops = append(response.Tops, item)
		case models.CategoryBottoms:
			response.Bottoms = append(response.Bottoms, item)
		case models.CategoryFootwear:
			response.Footwear = append(response.Footwear, item)
		case models.CategoryHeadwear:
			response.Headwear = append(response.Headwear, item)
		case models.CategoryAccessories:
			response.Accessories = append(response.Accessories, item)
		default:
			response.Pending = append(response.Pending, item)
		}
	}
	return c.JSON(http.StatusOK, response)
}

// ResetCloset wipes the whole catalogue for the user.
func (controller *GarmentsController) ResetCloset(c echo.Context) error {
	user, ok := c.Get("currentUser").(models.UserAccount)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}
	db := c.Get("__db").(*gorm.DB)

	result := db.Where("owner_id = ? AND company_id = ?", user.ID, user.Memberships[0].CompanyID).Delete(&models.Garment{})
	if result.Error != nil {
		sentry.CaptureException(result.Error)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to reset closet"})
	}
	fmt.Printf("[User %v] Closet reset, %v garments removed\n", user.ID, result.RowsAffected)
	return c.JSON(http.StatusOK, map[string]interface{}{"removed": result.RowsAffected})
}
