package models

import (
	"regexp"

	"github.com/go-playground/validator"
)

type Platform string

const (
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
	PlatformWeb     Platform = "web"
)

func (l *Platform) Scan(value interface{}) error {
	*l = Platform(value.(string))
	return nil
}

func (l Platform) Value() string {
	return string(l)
}

func ValidatePlatform(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	matched, _ := regexp.MatchString("^ios|android|web$", string(value))
	return matched
}

type Subscription string

const (
	Free Subscription = "free"
	Pro  Subscription = "pro"
)

func (l *Subscription) Scan(value interface{}) error {
	*l = Subscription(value.(string))
	return nil
}

func (l Subscription) Value() (string, error) {
	return string(l), nil
}

type Role string

const (
	ADMIN Role = "ADMIN"
	OWNER Role = "OWNER"
)

func (l *Role) Scan(value interface{}) error {
	*l = Role(value.(string))
	return nil
}

func (l Role) Value() (string, error) {
	return string(l), nil
}

// GarmentCategory is the closed set of catalogue categories the classifier
// is allowed to answer with. "outfits" is a full look and is mutually
// exclusive with tops/bottoms as a base layer when combinations are built.
type GarmentCategory string

const (
	CategoryOutfits     GarmentCategory = "outfits"
	CategoryTops        GarmentCategory = "tops"
	CategoryBottoms     GarmentCategory = "bottoms"
	CategoryFootwear    GarmentCategory = "footwear"
	CategoryHeadwear    GarmentCategory = "headwear"
	CategoryAccessories GarmentCategory = "accessories"
)

var AllGarmentCategories = []GarmentCategory{
	CategoryOutfits,
	CategoryTops,
	CategoryBottoms,
	CategoryFootwear,
	CategoryHeadwear,
	CategoryAccessories,
}

func (c *GarmentCategory) Scan(value interface{}) error {
	*c = GarmentCategory(value.(string))
	return nil
}

func (c GarmentCategory) Value() (string, error) {
	return string(c), nil
}

func IsGarmentCategory(value string) bool {
	for _, c := range AllGarmentCategories {
		if string(c) == value {
			return true
		}
	}
	return false
}

func ValidateGarmentCategory(fl validator.FieldLevel) bool {
	return IsGarmentCategory(fl.Field().String())
}
