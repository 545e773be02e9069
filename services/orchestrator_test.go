package services_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"fitroomapi/models"
	"fitroomapi/services"
	"fitroomapi/test"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tryOnItem(name string) services.TryOnItem {
	return services.TryOnItem{
		Garment: models.Garment{Name: name},
		Image:   services.ImageInput{Data: []byte(name), MIMEType: "image/png"},
	}
}

func avatar() services.ImageInput {
	return services.ImageInput{Data: []byte("avatar"), MIMEType: "image/png"}
}

func TestGenerateTryOnRendersEveryCombination(t *testing.T) {
	llm := &test.GenAIProviderMock{}
	orch := services.NewGenerationOrchestrator(llm, &test.FakeCredentialGate{})

	published := map[int][]byte{}
	orch.Publish = func(index int, image []byte) {
		published[index] = image
	}

	outcome := orch.Generate(context.Background(), &services.GenerationRequest{
		Mode:   models.GenerationModeTryOn,
		Avatar: avatar(),
		Selection: services.Selection{
			Tops:    []services.TryOnItem{tryOnItem("tee"), tryOnItem("shirt")},
			Bottoms: []services.TryOnItem{tryOnItem("jeans")},
		},
	})

	require.True(t, outcome.Succeeded(), "outcome error: %v", outcome.Err)
	require.Len(t, outcome.Images, 2)
	assert.Equal(t, 2, llm.Calls)
	assert.Equal(t, outcome.Images[0], published[0])
	assert.Equal(t, outcome.Images[1], published[1])
}

func TestGenerateTryOnFailFastKeepsPartialResults(t *testing.T) {
	llm := &test.GenAIProviderMock{FailAt: 3, FailErr: fmt.Errorf("quota exceeded")}
	orch := services.NewGenerationOrchestrator(llm, &test.FakeCredentialGate{})

	outcome := orch.Generate(context.Background(), &services.GenerationRequest{
		Mode:   models.GenerationModeTryOn,
		Avatar: avatar(),
		Selection: services.Selection{
			Tops:    []services.TryOnItem{tryOnItem("t1"), tryOnItem("t2")},
			Bottoms: []services.TryOnItem{tryOnItem("b1"), tryOnItem("b2")},
		},
	})

	require.False(t, outcome.Succeeded())
	// two of four combinations rendered before the failure, nothing after it
	assert.Len(t, outcome.Images, 2)
	assert.Equal(t, 3, llm.Calls)

	var generr *services.GenerationError
	require.True(t, errors.As(outcome.Err, &generr))
	assert.Equal(t, services.ErrQuota, generr.Kind)
}

func TestGenerateTryOnEmptySelectionNoServiceCall(t *testing.T) {
	llm := &test.GenAIProviderMock{}
	orch := services.NewGenerationOrchestrator(llm, &test.FakeCredentialGate{})

	outcome := orch.Generate(context.Background(), &services.GenerationRequest{
		Mode:   models.GenerationModeTryOn,
		Avatar: avatar(),
	})

	require.False(t, outcome.Succeeded())
	assert.Equal(t, 0, llm.Calls)

	var generr *services.GenerationError
	require.True(t, errors.As(outcome.Err, &generr))
	assert.Equal(t, services.ErrValidation, generr.Kind)
}

func TestGenerateTryOnMissingAvatarNoServiceCall(t *testing.T) {
	llm := &test.GenAIProviderMock{}
	orch := services.NewGenerationOrchestrator(llm, &test.FakeCredentialGate{})

	outcome := orch.Generate(context.Background(), &services.GenerationRequest{
		Mode: models.GenerationModeTryOn,
		Selection: services.Selection{
			Tops: []services.TryOnItem{tryOnItem("tee")},
		},
	})

	require.False(t, outcome.Succeeded())
	assert.Equal(t, 0, llm.Calls)
}

func TestGenerateTryOnItemWithoutImageNoServiceCall(t *testing.T) {
	llm := &test.GenAIProviderMock{}
	orch := services.NewGenerationOrchestrator(llm, &test.FakeCredentialGate{})

	broken := services.TryOnItem{Garment: models.Garment{Name: "pending upload"}}
	outcome := orch.Generate(context.Background(), &services.GenerationRequest{
		Mode:   models.GenerationModeTryOn,
		Avatar: avatar(),
		Selection: services.Selection{
			Tops: []services.TryOnItem{tryOnItem("tee"), broken},
		},
	})

	require.False(t, outcome.Succeeded())
	assert.Equal(t, 0, llm.Calls)
}

func TestGenerateEditSingleCall(t *testing.T) {
	llm := &test.GenAIProviderMock{}
	orch := services.NewGenerationOrchestrator(llm, &test.FakeCredentialGate{})

	outcome := orch.Generate(context.Background(), &services.GenerationRequest{
		Mode:        models.GenerationModeEdit,
		Avatar:      avatar(),
		Instruction: "make the background a beach",
	})

	require.True(t, outcome.Succeeded(), "outcome error: %v", outcome.Err)
	assert.Len(t, outcome.Images, 1)
	assert.Equal(t, 1, llm.Calls)
}

func TestGenerateEditRequiresInstruction(t *testing.T) {
	llm := &test.GenAIProviderMock{}
	orch := services.NewGenerationOrchestrator(llm, &test.FakeCredentialGate{})

	outcome := orch.Generate(context.Background(), &services.GenerationRequest{
		Mode:        models.GenerationModeEdit,
		Avatar:      avatar(),
		Instruction: "   ",
	})

	require.False(t, outcome.Succeeded())
	assert.Equal(t, 0, llm.Calls)
}

func TestGenerateVideoWithoutCredentialAsksOnce(t *testing.T) {
	llm := &test.GenAIProviderMock{VideoBytes: []byte("clip")}
	gate := &test.FakeCredentialGate{Available: false}
	orch := services.NewGenerationOrchestrator(llm, gate)

	req := &services.GenerationRequest{
		Mode:        models.GenerationModeVideo,
		Avatar:      avatar(),
		Instruction: "slow walk towards the camera",
		AspectRatio: "9:16",
	}

	outcome := orch.Generate(context.Background(), req)

	require.False(t, outcome.Succeeded())
	assert.Equal(t, 1, gate.Requested)
	assert.Empty(t, outcome.Video)

	var generr *services.GenerationError
	require.True(t, errors.As(outcome.Err, &generr))
	assert.Equal(t, services.ErrCredential, generr.Kind)

	// the selection flow is assumed to have completed: the retry goes
	// straight to the service even though the gate still reports no key
	outcome = orch.Generate(context.Background(), req)
	require.True(t, outcome.Succeeded(), "outcome error: %v", outcome.Err)
	assert.Equal(t, []byte("clip"), outcome.Video)
	assert.Equal(t, 1, gate.Requested)
}

func TestGenerateVideoCredentialErrorReopensGate(t *testing.T) {
	llm := &test.GenAIProviderMock{StartErr: fmt.Errorf("Requested entity was not found.")}
	gate := &test.FakeCredentialGate{Available: false}
	orch := services.NewGenerationOrchestrator(llm, gate)

	req := &services.GenerationRequest{
		Mode:        models.GenerationModeVideo,
		Avatar:      avatar(),
		Instruction: "spin around",
	}

	// first attempt: gate closed, user is asked to pick a key
	outcome := orch.Generate(context.Background(), req)
	require.False(t, outcome.Succeeded())
	require.Equal(t, 1, gate.Requested)

	// second attempt reaches the service, whose key turns out bad
	outcome = orch.Generate(context.Background(), req)
	require.False(t, outcome.Succeeded())
	var generr *services.GenerationError
	require.True(t, errors.As(outcome.Err, &generr))
	assert.Equal(t, services.ErrCredential, generr.Kind)

	// the assumption was dropped, so the gate is consulted again
	outcome = orch.Generate(context.Background(), req)
	require.False(t, outcome.Succeeded())
	assert.Equal(t, 2, gate.Requested)
}

func TestGenerateVideoWithCredential(t *testing.T) {
	llm := &test.GenAIProviderMock{VideoBytes: []byte("clip")}
	gate := &test.FakeCredentialGate{Available: true}
	orch := services.NewGenerationOrchestrator(llm, gate)
	orch.PollInterval = time.Millisecond
	orch.PollTimeout = time.Second

	outcome := orch.Generate(context.Background(), &services.GenerationRequest{
		Mode:        models.GenerationModeVideo,
		Avatar:      avatar(),
		Instruction: "wave at the camera",
	})

	require.True(t, outcome.Succeeded(), "outcome error: %v", outcome.Err)
	assert.Equal(t, []byte("clip"), outcome.Video)
	assert.Equal(t, 0, gate.Requested)
}

func TestGenerateUnsupportedMode(t *testing.T) {
	llm := &test.GenAIProviderMock{}
	orch := services.NewGenerationOrchestrator(llm, &test.FakeCredentialGate{})

	outcome := orch.Generate(context.Background(), &services.GenerationRequest{Mode: "remix"})

	require.False(t, outcome.Succeeded())
	assert.Equal(t, 0, llm.Calls)
}

func TestGenerateRecordsDuration(t *testing.T) {
	llm := &test.GenAIProviderMock{FailAt: 1}
	orch := services.NewGenerationOrchestrator(llm, &test.FakeCredentialGate{})

	outcome := orch.Generate(context.Background(), &services.GenerationRequest{
		Mode:   models.GenerationModeTryOn,
		Avatar: avatar(),
		Selection: services.Selection{
			Tops: []services.TryOnItem{tryOnItem("tee")},
		},
	})

	require.False(t, outcome.Succeeded())
	assert.GreaterOrEqual(t, outcome.Duration, 0.0)
}
