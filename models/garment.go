package models

// Garment is a catalogue item owned by a user. Rows are created when an
// upload is accepted and never mutated after classification finishes; a
// catalogue reset is the only way they go away.
type Garment struct {
	JsonModel
	Name        string          `json:"name"`
	Description *string         `gorm:"type:text" json:"description"`
	Category    GarmentCategory `json:"category"` // empty until classified or set manually
	Owner       UserAccount     `json:"-"`
	OwnerID     uint            `json:"-"`
	CompanyID   uint            `json:"-"`
	Company     Company         `json:"company"`

	ImageURL *string `json:"image_url"` // object key in the garment bucket
	MIMEType string  `json:"mime_type"`

	// pending, classifying, in_closet, failed
	ClassifyStatus       string  `json:"classify_status"`
	ClassifyRetryTimes   int     `json:"classify_retry_times"`
	ClassifyErrorMessage *string `json:"classify_error_message"`
}

const (
	ClassifyStatusPending     = "pending"
	ClassifyStatusClassifying = "classifying"
	ClassifyStatusDone        = "in_closet"
	ClassifyStatusFailed      = "failed"
)
