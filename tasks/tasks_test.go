package tasks

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"fitroomapi/dbhelper"
	"fitroomapi/models"
	"fitroomapi/test"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeImageServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("fake-image-bytes"))
	}))
}

func TestGenerationTaskPersistsResultsInSelectionOrder(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	user := test.FakeUser(db, nil)

	first := test.FakeGarment(db, user, "striped tee", models.CategoryTops)
	second := test.FakeGarment(db, user, "linen shirt", models.CategoryTops)

	generation := models.Generation{
		Mode:          models.GenerationModeTryOn,
		UserAccountID: user.ID,
		CompanyID:     user.Memberships[0].CompanyID,
		// reversed against creation order, the stored array must win
		TopIDs:                 pq.Int64Array{int64(second.ID), int64(first.ID)},
		GeneratedWithAvatarURL: *user.UserFullBodyImageURL,
		Status:                 models.GenerationStatusPending,
	}
	require.NoError(t, db.Create(&generation).Error)

	mockServer := fakeImageServer(t)
	defer mockServer.Close()

	fakeTask, err := NewGenerationTask(generation.ID)
	require.NoError(t, err)
	awsServiceMock := &test.AWSProviderMock{MockUrl: mockServer.URL}
	llm := &test.GenAIProviderMock{}

	err = HandleGenerationTask(context.Background(), fakeTask, db, llm, awsServiceMock, nil)
	assert.NoError(t, err)

	var updated models.Generation
	require.NoError(t, db.First(&updated, generation.ID).Error)
	assert.Equal(t, models.GenerationStatusSucceeded, updated.Status)
	assert.Equal(t, 2, updated.CombinationCount)
	assert.Equal(t, 2, updated.ResultCount)
	assert.Nil(t, updated.ErrorKind)
	require.NotNil(t, updated.Duration)

	var images []models.WorkspaceImage
	require.NoError(t, db.Where("generation_id = ?", generation.ID).Order("position").Find(&images).Error)
	require.Len(t, images, 2)
	assert.Equal(t, 0, images[0].Position)
	assert.Equal(t, fmt.Sprintf("results/%v-0.png", generation.ID), images[0].ImageURL)
	assert.Equal(t, 1, images[1].Position)
	assert.Equal(t, fmt.Sprintf("results/%v-1.png", generation.ID), images[1].ImageURL)

	// the stored ID array drives render order, not DB insertion order
	require.Len(t, llm.Instructions, 2)
	assert.Contains(t, llm.Instructions[0], "linen shirt")
	assert.Contains(t, llm.Instructions[1], "striped tee")
}

func TestGenerationTaskFailFastKeepsPartialResults(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	user := test.FakeUser(db, nil)

	topA := test.FakeGarment(db, user, "tee", models.CategoryTops)
	topB := test.FakeGarment(db, user, "shirt", models.CategoryTops)
	bottomA := test.FakeGarment(db, user, "jeans", models.CategoryBottoms)
	bottomB := test.FakeGarment(db, user, "chinos", models.CategoryBottoms)

	generation := models.Generation{
		Mode:                   models.GenerationModeTryOn,
		UserAccountID:          user.ID,
		CompanyID:              user.Memberships[0].CompanyID,
		TopIDs:                 pq.Int64Array{int64(topA.ID), int64(topB.ID)},
		BottomIDs:              pq.Int64Array{int64(bottomA.ID), int64(bottomB.ID)},
		GeneratedWithAvatarURL: *user.UserFullBodyImageURL,
		Status:                 models.GenerationStatusPending,
	}
	require.NoError(t, db.Create(&generation).Error)

	mockServer := fakeImageServer(t)
	defer mockServer.Close()

	fakeTask, err := NewGenerationTask(generation.ID)
	require.NoError(t, err)
	awsServiceMock := &test.AWSProviderMock{MockUrl: mockServer.URL}
	llm := &test.GenAIProviderMock{FailAt: 2, FailErr: fmt.Errorf("quota exceeded for quota metric")}

	err = HandleGenerationTask(context.Background(), fakeTask, db, llm, awsServiceMock, nil)
	assert.NoError(t, err)

	var updated models.Generation
	require.NoError(t, db.First(&updated, generation.ID).Error)
	assert.Equal(t, models.GenerationStatusFailed, updated.Status)
	assert.Equal(t, 4, updated.CombinationCount)
	assert.Equal(t, 1, updated.ResultCount)
	require.NotNil(t, updated.ErrorKind)
	assert.Equal(t, "quota", *updated.ErrorKind)
	require.NotNil(t, updated.ErrorMessage)
	assert.NotContains(t, *updated.ErrorMessage, "quota metric")

	// the one render that landed before the failure stays published
	var images []models.WorkspaceImage
	require.NoError(t, db.Where("generation_id = ?", generation.ID).Order("position").Find(&images).Error)
	require.Len(t, images, 1)
	assert.Equal(t, 0, images[0].Position)
}

func TestGenerationTaskMissingGarmentFails(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	user := test.FakeUser(db, nil)

	generation := models.Generation{
		Mode:                   models.GenerationModeTryOn,
		UserAccountID:          user.ID,
		CompanyID:              user.Memberships[0].CompanyID,
		TopIDs:                 pq.Int64Array{424242},
		GeneratedWithAvatarURL: *user.UserFullBodyImageURL,
		Status:                 models.GenerationStatusPending,
	}
	require.NoError(t, db.Create(&generation).Error)

	fakeTask, err := NewGenerationTask(generation.ID)
	require.NoError(t, err)

	err = HandleGenerationTask(context.Background(), fakeTask, db, &test.GenAIProviderMock{}, &test.AWSProviderMock{}, nil)
	assert.Error(t, err)

	var updated models.Generation
	require.NoError(t, db.First(&updated, generation.ID).Error)
	assert.Equal(t, models.GenerationStatusFailed, updated.Status)
}

func TestClassifyBatchTaskFlipsStatuses(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	user := test.FakeUser(db, nil)

	good := test.FakeGarment(db, user, "new tee", models.CategoryTops)
	bad := test.FakeGarment(db, user, "blurry photo", models.CategoryTops)
	db.Model(&models.Garment{}).Where("id in ?", []uint{good.ID, bad.ID}).
		Updates(map[string]interface{}{"classify_status": models.ClassifyStatusPending, "category": ""})

	mockServer := fakeImageServer(t)
	defer mockServer.Close()

	fakeTask, err := NewClassifyBatchTask([]uint{good.ID, bad.ID})
	require.NoError(t, err)
	awsServiceMock := &test.AWSProviderMock{MockUrl: mockServer.URL}
	llm := &test.GenAIProviderMock{Categories: []models.GarmentCategory{models.CategoryTops, ""}}

	err = HandleClassifyBatchTask(context.Background(), fakeTask, db, llm, awsServiceMock, nil)
	assert.NoError(t, err)

	var classified models.Garment
	require.NoError(t, db.First(&classified, good.ID).Error)
	assert.Equal(t, models.ClassifyStatusDone, classified.ClassifyStatus)
	assert.Equal(t, models.CategoryTops, classified.Category)
	assert.Nil(t, classified.ClassifyErrorMessage)

	var failed models.Garment
	require.NoError(t, db.First(&failed, bad.ID).Error)
	assert.Equal(t, models.ClassifyStatusFailed, failed.ClassifyStatus)
	assert.Equal(t, 1, failed.ClassifyRetryTimes)
	require.NotNil(t, failed.ClassifyErrorMessage)
}

func TestClassifyBatchTaskSkipsAlreadyClassified(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	user := test.FakeUser(db, nil)

	done := test.FakeGarment(db, user, "already filed", models.CategoryFootwear)

	fakeTask, err := NewClassifyBatchTask([]uint{done.ID})
	require.NoError(t, err)

	err = HandleClassifyBatchTask(context.Background(), fakeTask, db, &test.GenAIProviderMock{}, &test.AWSProviderMock{}, nil)
	assert.NoError(t, err)

	var untouched models.Garment
	require.NoError(t, db.First(&untouched, done.ID).Error)
	assert.Equal(t, models.ClassifyStatusDone, untouched.ClassifyStatus)
	assert.Equal(t, models.CategoryFootwear, untouched.Category)
}
