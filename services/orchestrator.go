package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"fitroomapi/models"
)

// CredentialGate answers whether a user-supplied service credential is
// available for privileged calls and can trigger the external selection flow
// when it is not.
type CredentialGate interface {
	HasCredential() bool
	RequestCredential()
}

// GenerationRequest is one "Generate" invocation. Avatar is the person
// reference for try-on and video, or the source image for edits.
type GenerationRequest struct {
	Mode        string
	Selection   Selection
	Avatar      ImageInput
	Instruction string
	AspectRatio string
	Resolution  string
}

// GenerationOutcome owns the result buffers of a finished job. Err is nil
// only on full success; partial try-on results survive in Images alongside a
// non-nil Err.
type GenerationOutcome struct {
	Images   [][]byte
	Video    []byte
	Duration float64
	Err      error
}

func (o *GenerationOutcome) Succeeded() bool {
	return o.Err == nil
}

// GenerationOrchestrator runs the three creative workflows against the
// generative service, one call in flight at a time.
type GenerationOrchestrator struct {
	LLM          GenAIProvider
	Gate         CredentialGate
	ImageModel   LLMModelName
	PollInterval time.Duration
	PollTimeout  time.Duration

	// Publish, when set, receives every try-on image the moment its render
	// succeeds, keyed by combination index.
	Publish func(index int, image []byte)

	credentialAssumed bool
}

func NewGenerationOrchestrator(llm GenAIProvider, gate CredentialGate) *GenerationOrchestrator {
	return &GenerationOrchestrator{
		LLM:          llm,
		Gate:         gate,
		ImageModel:   Flash25Image,
		PollInterval: DefaultVideoPollInterval,
		PollTimeout:  DefaultVideoPollTimeout,
	}
}

// Generate dispatches on the request mode and always records wall-clock
// duration, failed or not.
func (g *GenerationOrchestrator) Generate(ctx context.Context, req *GenerationRequest) *GenerationOutcome {
	started := time.Now()
	outcome := &GenerationOutcome{}

	switch req.Mode {
	case models.GenerationModeTryOn:
		g.generateTryOn(ctx, req, outcome)
	case models.GenerationModeEdit:
		g.generateEdit(ctx, req, outcome)
	case models.GenerationModeVideo:
		g.generateVideo(ctx, req, outcome)
	default:
		outcome.Err = NewValidationError(fmt.Sprintf("unsupported generation mode: %q", req.Mode))
	}

	outcome.Duration = time.Since(started).Seconds()
	return outcome
}

func (g *GenerationOrchestrator) generateTryOn(ctx context.Context, req *GenerationRequest, outcome *GenerationOutcome) {
	combinations := GenerateCombinations(req.Selection)
	if len(combinations) == 0 {
		outcome.Err = NewValidationError("select at least one item to try on")
		return
	}
	if req.Avatar.Empty() {
		outcome.Err = NewValidationError("avatar photo is missing")
		return
	}
	for _, combination := range combinations {
		for _, item := range combination {
			if item.Image.Empty() {
				outcome.Err = NewValidationError(fmt.Sprintf("item %q has no image yet", item.Garment.Name))
				return
			}
		}
	}

	for index, combination := range combinations {
		refs := make([]ImageInput, 0, len(combination)+1)
		refs = append(refs, req.Avatar)
		for _, item := range combination {
			refs = append(refs, item.Image)
		}

		response, err := g.LLM.GenerateStyledImage(ctx, refs, BuildTryOnInstruction(combination), g.ImageModel)
		if err != nil {
			fmt.Printf("[TryOn] combination %v/%v failed: %v\n", index+1, len(combinations), err)
			outcome.Err = NormalizeGenerationError(err)
			return
		}

		image := response.Images[0]
		outcome.Images = append(outcome.Images, image)
		if g.Publish != nil {
			g.Publish(index, image)
		}
	}
}

func (g *GenerationOrchestrator) generateEdit(ctx context.Context, req *GenerationRequest, outcome *GenerationOutcome) {
	if strings.TrimSpace(req.Instruction) == "" {
		outcome.Err = NewValidationError("describe the edit you want")
		return
	}
	if req.Avatar.Empty() {
		outcome.Err = NewValidationError("no image selected to edit")
		return
	}

	response, err := g.LLM.GenerateStyledImage(ctx, []ImageInput{req.Avatar}, req.Instruction, g.ImageModel)
	if err != nil {
		outcome.Err = NormalizeGenerationError(err)
		return
	}
	outcome.Images = append(outcome.Images, response.Images[0])
	if g.Publish != nil {
		g.Publish(0, response.Images[0])
	}
}

func (g *GenerationOrchestrator) generateVideo(ctx context.Context, req *GenerationRequest, outcome *GenerationOutcome) {
	if strings.TrimSpace(req.Instruction) == "" {
		outcome.Err = NewValidationError("describe the video you want")
		return
	}
	if req.Avatar.Empty() {
		outcome.Err = NewValidationError("no image selected for the video")
		return
	}

	if !g.credentialAssumed && !g.Gate.HasCredential() {
		// Let the user pick a key, assume they will, and make them press
		// generate again once the selection flow finishes.
		g.Gate.RequestCredential()
		g.credentialAssumed = true
		outcome.Err = &GenerationError{
			Kind:    ErrCredential,
			Message: "select an API key, then press generate again",
		}
		return
	}

	op, err := g.LLM.StartVideoGeneration(ctx, req.Avatar, req.Instruction, req.AspectRatio, req.Resolution)
	if err != nil {
		outcome.Err = g.normalizeVideoError(err)
		return
	}

	video, err := AwaitVideoOperation(ctx, g.LLM, op, g.PollInterval, g.PollTimeout)
	if err != nil {
		outcome.Err = g.normalizeVideoError(err)
		return
	}
	outcome.Video = video
}

func (g *GenerationOrchestrator) normalizeVideoError(err error) error {
	normalized := NormalizeGenerationError(err)
	if normalized.Kind == ErrCredential {
		// The assumed key turned out missing or invalid, so re-open the
		// gate for the next attempt.
		g.credentialAssumed = false
	}
	return normalized
}

// BuildTryOnInstruction describes one combination to the model, item by
// item in render order.
func BuildTryOnInstruction(combination Combination) string {
	var sb strings.Builder
	sb.WriteString("Dress the person from the first photo in the following items, keeping identity, pose and body proportions unchanged:")
	for i, item := range combination {
		sb.WriteString(fmt.Sprintf(" (%v) %s from the %s category", i+2, item.Garment.Name, item.Category))
		if item.Garment.Description != nil && *item.Garment.Description != "" {
			sb.WriteString(": " + *item.Garment.Description)
		}
		sb.WriteString(".")
	}
	sb.WriteString(" The photo order above matches the reference image order.")
	return sb.String()
}
