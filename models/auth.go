package models

import "time"

type JsonModel struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type UserAccount struct {
	JsonModel
	Name   string `json:"name"`
	Email  string `json:"email" gorm:"unique"`
	Banned bool   `gorm:"default:false" json:"-"`
	LastIp string `json:"-"`
	//"STARTED_AUTH", "FINISHED_AUTH"
	Status      string            `json:"-"`
	GoogleID    string            `json:"-"`
	Platform    Platform          `sql:"type:ENUM('ios', 'android', 'web')" json:"platform"`
	Memberships []UserCompanyRole `gorm:"foreignKey:UserAccountID"`

	ReceiveNotifications bool   `json:"receive_notifications"`
	AvatarURL            string `json:"avatar_url"`

	// full body avatar that try-ons are rendered onto
	FullBodyAvatarSet    bool    `json:"full_body_avatar_set"`
	UserFullBodyImageURL *string `json:"user_image_url"`

	// user-supplied key for video generations, selected in the app
	VideoAPIKey *string `json:"-"`
}

type UserPushToken struct {
	JsonModel
	UserAccountID uint
	UserAccount   UserAccount `json:"user_account"`
	Platform      Platform    `sql:"type:ENUM('ios', 'android', 'web')" json:"platform"`
	Token         string      `json:"token"`
	Active        bool        `gorm:"default:false" json:"-"`
}

type UserCompanyRole struct {
	JsonModel
	UserAccountID    uint
	UserAccount      UserAccount `json:"user_account"`
	Active           bool        `gorm:"default:false" json:"-"`
	Role             Role        `sql:"type:ENUM('OWNER', 'ADMIN')" json:"role"`
	InviteAcceptedAt *int64      `json:"invite_accepted_at"`
	CompanyID        uint
	Company          Company `json:"company"`
}

type Company struct {
	JsonModel
	Name         string            `json:"name"`
	Owner        UserAccount       `json:"-"`
	OwnerID      uint              `json:"-"`
	Subscription Subscription      `json:"subscription"`
	Members      []UserCompanyRole `json:"members"`
	Active       bool              `json:"active"`

	EnforcedDailyGarmentLimit    *int32 `json:"enforced_daily_garment_limit"`
	EnforcedDailyGenerationLimit *int32 `json:"enforced_daily_generation_limit"`
	// overrides the default image model when set
	EnforcedLLMModel *int32 `json:"enforced_llm_model"`
}
