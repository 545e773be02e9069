package controllers

import (
	"fmt"
	"log"
	"net/http"

	"fitroomapi/models"

	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
)

func userIDFromToken(c echo.Context) (interface{}, error) {
	userRaw := c.Get("user")
	if userRaw == nil {
		return nil, echo.ErrUnauthorized
	}
	user := userRaw.(*jwt.Token)
	claims := user.Claims.(jwt.MapClaims)
	userId := claims["sub"]
	if userId == nil || userId == "" {
		log.Println("Error while getting the token information!")
		return nil, echo.ErrUnauthorized
	}
	return userId, nil
}

// UserMiddleware resolves the authenticated user with its memberships and
// rejects accounts that never finished onboarding.
func UserMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		db := c.Get("__db").(*gorm.DB)
		userId, err := userIDFromToken(c)
		if err != nil {
			return err
		}

		var currentUser models.UserAccount
		db.Preload("Memberships.Company").First(&currentUser, userId)
		if len(currentUser.Memberships) == 0 {
			// just indicator..
			return echo.NewHTTPError(http.StatusLocked)
		}
		if currentUser.Banned {
			return echo.NewHTTPError(http.StatusLocked)
		}
		c.Set("currentUser", currentUser)
		fmt.Printf("Fetched user %s memberships: %v \n ", currentUser.Name, len(currentUser.Memberships))
		return next(c)
	}
}

// UserOnlyMiddleware resolves the user without requiring a membership, used
// by onboarding endpoints.
func UserOnlyMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		db := c.Get("__db").(*gorm.DB)
		userId, err := userIDFromToken(c)
		if err != nil {
			return err
		}

		var currentUser models.UserAccount
		db.Preload("Memberships.Company").First(&currentUser, userId)
		c.Set("currentUser", currentUser)

		fmt.Printf("Fetched only user access %s memberships: %v \n ", currentUser.Name, len(currentUser.Memberships))
		return next(c)
	}
}
