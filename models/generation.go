package models

import "github.com/lib/pq"

const (
	GenerationModeTryOn = "try-on"
	GenerationModeEdit  = "edit"
	GenerationModeVideo = "video"
)

const (
	GenerationStatusPending   = "pending"
	GenerationStatusRunning   = "running"
	GenerationStatusSucceeded = "succeeded"
	GenerationStatusFailed    = "failed"
)

// Generation is one "Generate" invocation: a try-on batch, a single edit, or
// a video job. The selection is snapshotted as per-category garment ID lists
// in selection order. A new invocation creates a new row; nothing is retried
// in place.
type Generation struct {
	JsonModel
	Mode          string      `json:"mode"` // try-on, edit, video
	UserAccountID uint        `json:"-"`
	UserAccount   UserAccount `json:"user_account"`
	CompanyID     uint        `json:"company_id"`
	Company       Company     `json:"company"`

	OutfitIDs    pq.Int64Array `gorm:"type:bigint[]" json:"outfit_ids"`
	TopIDs       pq.Int64Array `gorm:"type:bigint[]" json:"top_ids"`
	BottomIDs    pq.Int64Array `gorm:"type:bigint[]" json:"bottom_ids"`
	FootwearIDs  pq.Int64Array `gorm:"type:bigint[]" json:"footwear_ids"`
	HeadwearIDs  pq.Int64Array `gorm:"type:bigint[]" json:"headwear_ids"`
	AccessoryIDs pq.Int64Array `gorm:"type:bigint[]" json:"accessory_ids"`

	// edit instruction or video prompt depending on mode
	Instruction *string `gorm:"type:text" json:"instruction"`
	AspectRatio *string `json:"aspect_ratio"` // 16:9 or 9:16, video only
	Resolution  *string `json:"resolution"`   // video only

	// avatar at the point of generation
	GeneratedWithAvatarURL string `json:"generated_with_avatar_url"`

	Status       string   `json:"status"`
	Duration     *float64 `json:"duration"` // in seconds
	ErrorKind    *string  `json:"error_kind"`
	ErrorMessage *string  `json:"error_message"`

	// how many combinations the engine expanded this run into (try-on only)
	CombinationCount int     `json:"combination_count"`
	ResultCount      int     `json:"result_count"`
	VideoURL         *string `json:"video_url"` // object key of the downloaded clip
}

// WorkspaceImage is one rendered result of a generation, stored as an object
// in the results bucket. Position preserves combination order.
type WorkspaceImage struct {
	JsonModel
	GenerationID  uint       `gorm:"index" json:"generation_id"`
	Generation    Generation `json:"-"`
	UserAccountID uint       `json:"-"`
	Position      int        `json:"position"`
	ImageURL      string     `json:"image_url"`
	MIMEType      string     `json:"mime_type"`
}
