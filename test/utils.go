package test

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"time"

	"fitroomapi/models"
	"fitroomapi/services"

	"github.com/golang-jwt/jwt/v4"
	"google.golang.org/api/idtoken"
	"gorm.io/gorm"
)

func JsonString(model interface{}) string {
	bytes, _ := json.Marshal(model)
	return string(bytes)
}

func NewJSONRequest(method string, target string, param interface{}) *http.Request {

	req := httptest.NewRequest(method, target, strings.NewReader(JsonString(param)))
	req.Header.Add("Content-Type", "application/json")
	req.Header.Add("Accept", "application/json")
	return req
}

func GenerateUserToken(userPk string) string {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   userPk,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour * 72)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	})
	t, err := token.SignedString([]byte(os.Getenv("JWT_SECRET")))
	if err != nil {
		log.Fatalf("Error when signing user token for %s. Error %s ", userPk, err)
	}
	return t
}

func NewJSONAuthRequest(method string, target string, userPk string, param interface{}) *http.Request {
	log.Println(JsonString(param))
	req := httptest.NewRequest(method, target, strings.NewReader(JsonString(param)))
	req.Header.Add("Content-Type", "application/json")
	req.Header.Add("Accept", "application/json")
	token := GenerateUserToken(userPk)
	req.Header.Add("Authorization", fmt.Sprintf("Bearer %s", token))
	return req
}

func Int64Pointer(i int64) *int64 {
	return &i
}

func StrPointer(s string) *string {
	return &s
}

func FakeUser(db *gorm.DB, company *models.Company) *models.UserAccount {
	user := &models.UserAccount{
		Name:                 "OurName",
		Email:                "email@example.com",
		GoogleID:             "12232",
		Platform:             models.PlatformIOS,
		LastIp:               "123.122.122.122",
		Status:               "FINISHED_AUTH",
		AvatarURL:            "pictureurl",
		FullBodyAvatarSet:    true,
		UserFullBodyImageURL: StrPointer("avatars/1-full-body.png"),
	}
	db.Create(&user)

	if company == nil {
		company = &models.Company{
			Name:         "My Closet",
			OwnerID:      user.ID,
			Subscription: "pro",
			Active:       true,
		}
		db.Create(&company)
	}
	var user_membership = &models.UserCompanyRole{
		CompanyID:        company.ID,
		UserAccountID:    user.ID,
		Active:           true,
		InviteAcceptedAt: Int64Pointer(time.Now().UnixMilli()),
		Role:             "OWNER",
	}
	db.Save(&user)
	tokenDb := models.UserPushToken{
		UserAccountID: user.ID,
		Platform:      "android",
		Token:         "cX-UZ3zwQEiPt-2GJkG2gA:APA91bGqRflaGrJrnynhRwZ442HdgUjVcO7mWMFnx6IwAdJ9RRKopvSP4QU7hbvTmk1XAp8XGvtHZLvo5JmOPTVKBbGqqvhfbZWKlXA9csEjx1hgpNvrWepU",
		Active:        true,
	}
	db.Save(&tokenDb)
	db.Save(&user_membership)
	db.Preload("Memberships.Company").First(&user, user.ID)

	return user
}

func FakeUserWithEmail(db *gorm.DB, email string, googleId string) *models.UserAccount {
	user := &models.UserAccount{
		Name:     "Other User",
		Email:    email,
		GoogleID: googleId,
		Platform: models.PlatformAndroid,
		Status:   "FINISHED_AUTH",
	}
	db.Create(&user)
	company := &models.Company{
		Name:         "Other Closet",
		OwnerID:      user.ID,
		Subscription: "pro",
		Active:       true,
	}
	db.Create(&company)
	db.Create(&models.UserCompanyRole{
		CompanyID:        company.ID,
		UserAccountID:    user.ID,
		Active:           true,
		InviteAcceptedAt: Int64Pointer(time.Now().UnixMilli()),
		Role:             "OWNER",
	})
	db.Preload("Memberships.Company").First(&user, user.ID)
	return user
}

func FakeGarment(db *gorm.DB, user *models.UserAccount, name string, category models.GarmentCategory) *models.Garment {
	key := fmt.Sprintf("garments/%v-%s.png", user.ID, name)
	garment := &models.Garment{
		Name:           name,
		Category:       category,
		OwnerID:        user.ID,
		CompanyID:      user.Memberships[0].CompanyID,
		ImageURL:       &key,
		MIMEType:       "image/png",
		ClassifyStatus: models.ClassifyStatusDone,
	}
	db.Create(garment)
	return garment
}

type GoogleServiceMock struct{}

func (gsm GoogleServiceMock) ValidateIdToken(ctx context.Context, idToken string, audience string) (*idtoken.Payload, error) {

	return &idtoken.Payload{Issuer: "Issue", Audience: "AAA", Expires: 119919191919, IssuedAt: 12312321321, Subject: "fake@example.com", Claims: map[string]interface{}{
		"email":   "fake@example.com",
		"picture": "pictureurl",
		"name":    "Fake User",
		"sub":     "123googleid",
	}}, nil

}

type AWSProviderMock struct {
	MockUrl string
}

func (awsService AWSProviderMock) InitPresignClient(ctx context.Context) error {
	return nil
}

func (awsService AWSProviderMock) PresignLink(ctx context.Context, bucketName string, fileName string) (string, error) {

	return fmt.Sprintf("https://fakebucketurl.com/%s", fileName), nil
}

func (awsService AWSProviderMock) GetPresignedR2FileReadURL(ctx context.Context, bucketName, fileKey string) (string, error) {
	return awsService.MockUrl, nil
}

func (awsService AWSProviderMock) UploadToPresignedURL(ctx context.Context, bucketName, url string, fileContent []byte) (string, int, error) {
	return url, 204, nil
}

// URLCacheMock short-circuits presigning in handler tests.
type URLCacheMock struct {
	MockUrl string
}

func (m URLCacheMock) GetReadURL(ctx context.Context, objectKey string) (string, error) {
	if objectKey == "" {
		return "", nil
	}
	return m.MockUrl, nil
}

// GenAIProviderMock is a scripted generative service. Calls are recorded in
// order; FailAt makes the Nth styled-image call fail (1-based, 0 disables).
type GenAIProviderMock struct {
	Calls        int
	FailAt       int
	FailErr      error
	Images       [][]byte
	Instructions []string
	Categories   []models.GarmentCategory

	// video script
	PollsUntilDone int
	VideoBytes     []byte
	DownloadURI    string
	StartErr       error

	classifyCalls int
	pollCalls     int
}

func (m *GenAIProviderMock) GenerateStyledImage(ctx context.Context, refs []services.ImageInput, instruction string, modelName services.LLMModelName) (*services.LLMResponse, error) {
	m.Calls++
	m.Instructions = append(m.Instructions, instruction)
	if m.FailAt > 0 && m.Calls >= m.FailAt {
		err := m.FailErr
		if err == nil {
			err = fmt.Errorf("quota exceeded for quota metric")
		}
		return nil, err
	}
	image := []byte(fmt.Sprintf("image-%v", m.Calls))
	if len(m.Images) >= m.Calls {
		image = m.Images[m.Calls-1]
	}
	return &services.LLMResponse{Images: [][]byte{image}, TotalTokenCount: 42}, nil
}

func (m *GenAIProviderMock) ClassifyGarment(ctx context.Context, image services.ImageInput, modelName services.LLMModelName) (models.GarmentCategory, error) {
	m.classifyCalls++
	if len(m.Categories) >= m.classifyCalls {
		category := m.Categories[m.classifyCalls-1]
		if category == "" {
			return "", fmt.Errorf("classifier returned no valid category")
		}
		return category, nil
	}
	return models.CategoryTops, nil
}

func (m *GenAIProviderMock) StartVideoGeneration(ctx context.Context, image services.ImageInput, prompt string, aspectRatio string, resolution string) (*services.VideoOperation, error) {
	if m.StartErr != nil {
		return nil, m.StartErr
	}
	op := &services.VideoOperation{Name: "operations/fake-video", Done: m.PollsUntilDone == 0}
	if op.Done {
		m.finishOperation(op)
	}
	return op, nil
}

func (m *GenAIProviderMock) PollVideoOperation(ctx context.Context, op *services.VideoOperation) (*services.VideoOperation, error) {
	m.pollCalls++
	out := &services.VideoOperation{Name: op.Name, Done: m.pollCalls >= m.PollsUntilDone}
	if out.Done {
		m.finishOperation(out)
	}
	return out, nil
}

// finishOperation hands back either inline bytes or a download reference,
// never both, so tests can target each retrieval path.
func (m *GenAIProviderMock) finishOperation(op *services.VideoOperation) {
	if m.DownloadURI != "" {
		op.DownloadURI = m.DownloadURI
		return
	}
	op.VideoBytes = m.VideoBytes
}

func (m *GenAIProviderMock) FetchVideo(ctx context.Context, downloadURI string) ([]byte, error) {
	return m.VideoBytes, nil
}

// FakeCredentialGate records gate interactions for workflow tests.
type FakeCredentialGate struct {
	Available bool
	Requested int
}

func (g *FakeCredentialGate) HasCredential() bool {
	return g.Available
}

func (g *FakeCredentialGate) RequestCredential() {
	g.Requested++
}
