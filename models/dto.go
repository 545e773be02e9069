package models

type GoogleAuthSignIn struct {
	IdToken  string `json:"idToken" validate:"required"`
	Platform string `json:"platform" validate:"required,platform"`
}

type GoogleSignInOut struct {
	Email       string `json:"email"`
	Id          string `json:"id"`
	CompanyId   string `json:"company_id"`
	New         bool   `json:"new"`
	Avatar      string `json:"avatar"`
	AccessToken string `json:"access_token"`
}

type UserPushIn struct {
	Token    string `json:"token" validate:"required"`
	Platform string `json:"platform" validate:"required,platform"`
}

type UserMeOut struct {
	Id                   string  `json:"id"`
	CompanyId            string  `json:"company_id"`
	Name                 string  `json:"name"`
	Email                string  `json:"email"`
	AvatarURL            string  `json:"avatar_url"`
	ReceiveNotifications bool    `json:"receive_notifications"`
	FullBodyAvatarSet    bool    `json:"full_body_avatar_set"`
	FullBodyAvatarUrl    *string `json:"user_fullbody_avatar_url"`
}
