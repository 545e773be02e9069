package controllers

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"fitroomapi/models"
	"fitroomapi/services"

	firebase "firebase.google.com/go/v4"
	"github.com/getsentry/sentry-go"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
)

type AuthController struct {
	Google      services.GoogleServiceProvider
	FirebaseApp *firebase.App
}

func (m *AuthController) AuthRoutes(g *echo.Group) {
	g.POST("/google", m.GoogleSignIn)
}

// GoogleSignIn verifies the Google id token and signs the user in, creating
// the account and its personal closet company on first contact.
func (m *AuthController) GoogleSignIn(c echo.Context) error {
	googleCreds := new(models.GoogleAuthSignIn)
	if err := c.Bind(googleCreds); err != nil {
		return err
	}
	if err := c.Validate(googleCreds); err != nil {
		return err
	}

	payload, err := m.Google.ValidateIdToken(context.Background(), googleCreds.IdToken, os.Getenv("GOOGLE_CLIENT_ID"))
	if err != nil {
		fmt.Println(err)
		return c.JSON(http.StatusForbidden, map[string]interface{}{"message": "Couldn't verify credentials"})
	}
	sub, ok := payload.Claims["sub"]
	if !ok {
		sentry.CaptureMessage(fmt.Sprintf("Error when fetching user data %s", payload.Claims))
		return c.JSON(http.StatusForbidden, map[string]interface{}{"message": "Couldn't verify credentials"})
	}
	var googleId string = sub.(string)

	googleEmail, ok := payload.Claims["email"]
	if !ok {
		sentry.CaptureMessage(fmt.Sprintf("Error when fetching user data email %s", payload.Claims))
		return c.JSON(http.StatusForbidden, map[string]interface{}{"message": "Couldn't verify credentials"})
	}
	pictureUrl, _ := payload.Claims["picture"].(string)
	googleName, _ := payload.Claims["name"].(string)

	db := c.Get("__db").(*gorm.DB)
	var user models.UserAccount
	r := db.Preload("Memberships.Company").Where("google_id = ?", googleId).Limit(1).Find(&user)
	if r.Error != nil {
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{"message": "Internal server error"})
	}

	isNew := r.RowsAffected == 0
	if isNew {
		user = models.UserAccount{
			Name:      googleName,
			Email:     googleEmail.(string),
			GoogleID:  googleId,
			Platform:  models.Platform(googleCreds.Platform),
			LastIp:    c.RealIP(),
			Status:    "FINISHED_AUTH",
			AvatarURL: pictureUrl,
		}
		if err := db.Create(&user).Error; err != nil {
			sentry.CaptureException(err)
			return c.JSON(http.StatusInternalServerError, map[string]interface{}{"message": "Sorry, something wrong happened, please try again!"})
		}

		company := models.Company{
			Name:         fmt.Sprintf("%s's closet", googleName),
			OwnerID:      user.ID,
			Subscription: models.Free,
			Active:       true,
		}
		db.Create(&company)
		db.Create(&models.UserCompanyRole{
			CompanyID:     company.ID,
			UserAccountID: user.ID,
			Active:        true,
			Role:          models.OWNER,
		})
		user.Memberships = []models.UserCompanyRole{{CompanyID: company.ID, Company: company}}
		fmt.Println("User onboarding finished google: ", googleEmail, googleId)
	} else {
		if user.Banned {
			return echo.ErrForbidden
		}
		user.AvatarURL = pictureUrl
		user.LastIp = c.RealIP()
		user.Platform = models.Platform(googleCreds.Platform)
		db.Save(&user)
	}

	refreshToken, err := GenerateRefreshToken(fmt.Sprint(user.ID))
	if err != nil {
		fmt.Println(err)
		return echo.ErrInternalServerError
	}

	var companyId uint
	if len(user.Memberships) > 0 {
		companyId = user.Memberships[0].CompanyID
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"id":            user.ID,
		"company_id":    companyId,
		"name":          user.Name,
		"email":         user.Email,
		"new":           isNew,
		"avatar":        user.AvatarURL,
		"access_token":  GenerateUserToken(fmt.Sprint(user.ID), c, 72),
		"refresh_token": refreshToken,
	})
}
