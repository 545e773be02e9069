package controllers

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"fitroomapi/models"
	"fitroomapi/services"

	"github.com/getsentry/sentry-go"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
)

type SetAvatarIn struct {
	FileName *string `json:"file_name" validate:"required,max=1000"`
}

type SetVideoKeyIn struct {
	APIKey string `json:"api_key" validate:"required,max=200"`
}

type NotificationSettingsIn struct {
	ReceiveNotifications *bool `json:"receive_notifications" validate:"required"`
}

type ProfileController struct {
	AWSService services.AWSServiceProvider
	URLCache   services.URLCacheServiceProvider
}

func (controller *ProfileController) ProfileRoutes(g *echo.Group) {
	g.GET("/me", controller.Me)
	g.POST("/avatar", controller.SetAvatar)
	g.POST("/push", controller.RegisterPushToken)
	g.POST("/video_key", controller.SetVideoKey)
	g.DELETE("/video_key", controller.ClearVideoKey)
	g.POST("/notifications", controller.SetNotificationSettings)
}

func (controller *ProfileController) Me(c echo.Context) error {
	user, ok := c.Get("currentUser").(models.UserAccount)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}

	var avatarUri *string
	if user.UserFullBodyImageURL != nil && *user.UserFullBodyImageURL != "" {
		uri, err := controller.URLCache.GetReadURL(c.Request().Context(), *user.UserFullBodyImageURL)
		if err == nil {
			avatarUri = &uri
		} else {
			sentry.CaptureException(err)
		}
	}
	return c.JSON(http.StatusOK, models.UserMeOut{
		Id:                   UIntToStr(user.ID),
		CompanyId:            UIntToStr(user.Memberships[0].CompanyID),
		Name:                 user.Name,
		Email:                user.Email,
		AvatarURL:            user.AvatarURL,
		ReceiveNotifications: user.ReceiveNotifications,
		FullBodyAvatarSet:    user.FullBodyAvatarSet,
		FullBodyAvatarUrl:    avatarUri,
	})
}

// SetAvatar presigns the full body photo upload that try-ons render onto.
func (controller *ProfileController) SetAvatar(c echo.Context) error {
	var req SetAvatarIn
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

	if !services.IsAllowedImageExtension(*req.FileName) {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Avatar must be an image file"})
	}

	bucketName := services.GetEnv("R2_BUCKET_NAME", "")
	safeFileName := fmt.Sprintf("avatars/%v-%s", user.ID, *req.FileName)
	uploadUrl, err := controller.AWSService.PresignLink(context.Background(), bucketName, safeFileName)
	if err != nil {
		log.Printf("Unable to presign avatar upload for user %v, %s", user.ID, err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Error while setting avatar"})
	}

	user.UserFullBodyImageURL = &safeFileName
	user.FullBodyAvatarSet = true
	if err := db.Save(&user).Error; err != nil {
		sentry.CaptureException(err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Error while saving avatar"})
	}
	return c.JSON(http.StatusOK, map[string]string{"file_upload_url": uploadUrl})
}

func (controller *ProfileController) RegisterPushToken(c echo.Context) error {
	var req models.UserPushIn
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

	var existing models.UserPushToken
	r := db.Where("user_account_id = ? AND token = ?", user.ID, req.Token).Limit(1).Find(&existing)
	if r.RowsAffected > 0 {
		existing.Active = true
		db.Save(&existing)
		return c.JSON(http.StatusOK, map[string]string{"message": "Token refreshed"})
	}

	token := models.UserPushToken{
		UserAccountID: user.ID,
		Platform:      models.Platform(req.Platform),
		Token:         req.Token,
		Active:        true,
	}
	if err := db.Create(&token).Error; err != nil {
		sentry.CaptureException(err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Error while saving push token"})
	}
	return c.JSON(http.StatusCreated, map[string]string{"message": "Token registered"})
}

// SetVideoKey stores the user-supplied key the video workflow requires.
func (controller *ProfileController) SetVideoKey(c echo.Context) error {
	var req SetVideoKeyIn
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

	user.VideoAPIKey = &req.APIKey
	if err := db.Save(&user).Error; err != nil {
		sentry.CaptureException(err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Error while saving key"})
	}
	fmt.Printf("[User %v] Video key selected\n", user.ID)
	return c.JSON(http.StatusOK, map[string]string{"message": "Key saved, press generate again"})
}

func (controller *ProfileController) ClearVideoKey(c echo.Context) error {
	user, ok := c.Get("currentUser").(models.UserAccount)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}
	db := c.Get("__db").(*gorm.DB)

	user.VideoAPIKey = nil
	if err := db.Save(&user).Error; err != nil {
		sentry.CaptureException(err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Error while removing key"})
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Key removed"})
}

func (controller *ProfileController) SetNotificationSettings(c echo.Context) error {
	var req NotificationSettingsIn
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

	user.ReceiveNotifications = *req.ReceiveNotifications
	if err := db.Save(&user).Error; err != nil {
		sentry.CaptureException(err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Error while saving settings"})
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Settings saved"})
}
