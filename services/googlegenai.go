package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"fitroomapi/models"

	"google.golang.org/genai"
)

// LLMModelName picks the Gemini model for a call.
type LLMModelName int32

const (
	Flash25Image LLMModelName = iota
	Flash25
	FlashLite25
	Veo3
)

func (t LLMModelName) String() string {
	switch t {
	case Flash25Image:
		return "gemini-2.5-flash-image-preview"
	case Flash25:
		return "gemini-2.5-flash"
	case FlashLite25:
		return "gemini-2.5-flash-lite-preview-06-17"
	case Veo3:
		return "veo-3.0-generate-001"
	default:
		return "gemini-2.5-flash"
	}
}

type LLMResponse struct {
	Response           string   `json:"response"`
	Images             [][]byte `json:"images,omitempty"`
	InputTokenCount    int32    `json:"input_token_count"`
	OutputTokenCount   int32    `json:"output_token_count"`
	ThoughtsTokenCount int32    `json:"thoughts_token_count"`
	TotalTokenCount    int32    `json:"total_token_count"`
}

// VideoOperation is the opaque handle of an asynchronous video job plus its
// latest poll status.
type VideoOperation struct {
	Name        string
	Done        bool
	DownloadURI string
	VideoBytes  []byte

	raw *genai.GenerateVideosOperation
}

// GenAIProvider is everything the orchestration core needs from the
// generative service. Kept as an interface so tasks and tests can swap in
// fakes without a network.
type GenAIProvider interface {
	GenerateStyledImage(ctx context.Context, refs []ImageInput, instruction string, modelName LLMModelName) (*LLMResponse, error)
	ClassifyGarment(ctx context.Context, image ImageInput, modelName LLMModelName) (models.GarmentCategory, error)
	StartVideoGeneration(ctx context.Context, image ImageInput, prompt string, aspectRatio string, resolution string) (*VideoOperation, error)
	PollVideoOperation(ctx context.Context, op *VideoOperation) (*VideoOperation, error)
	FetchVideo(ctx context.Context, downloadURI string) ([]byte, error)
}

// GoogleGenAIService talks to the Gemini API. The key is injected at
// construction so tests and workers never reach into process env state.
type GoogleGenAIService struct {
	APIKey string
}

func NewGoogleGenAIService(apiKey string) *GoogleGenAIService {
	return &GoogleGenAIService{APIKey: apiKey}
}

func (s *GoogleGenAIService) newClient(ctx context.Context) (*genai.Client, error) {
	return genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  s.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
}

func floatPointer(f float32) *float32 {
	return &f
}

// GetAllInlineImages collects every inline image payload from the response
// candidates, surfacing safety blocks as errors.
func GetAllInlineImages(result *genai.GenerateContentResponse) ([][]byte, error) {
	if result == nil {
		return nil, fmt.Errorf("empty response")
	}

	var allImageData [][]byte
	for _, cand := range result.Candidates {
		for _, rating := range cand.SafetyRatings {
			if rating.Blocked {
				return nil, fmt.Errorf("request was blocked by safety setting: %s", rating.Category)
			}
		}
		if cand.Content == nil || len(cand.Content.Parts) == 0 {
			continue
		}
		for _, part := range cand.Content.Parts {
			inlineData := part.InlineData
			if inlineData == nil {
				continue
			}
			if strings.HasPrefix(inlineData.MIMEType, "image/") && len(inlineData.Data) > 0 {
				allImageData = append(allImageData, inlineData.Data)
			}
		}
	}
	return allImageData, nil
}

func inlineParts(refs []ImageInput, instruction string) []*genai.Part {
	var parts []*genai.Part
	for _, ref := range refs {
		parts = append(parts, &genai.Part{
			InlineData: &genai.Blob{
				Data:     ref.Data,
				MIMEType: ref.MIMEType,
			},
		})
	}
	parts = append(parts, &genai.Part{Text: instruction})
	return parts
}

func (s *GoogleGenAIService) GenerateStyledImage(ctx context.Context, refs []ImageInput, instruction string, modelName LLMModelName) (*LLMResponse, error) {
	client, err := s.newClient(ctx)
	if err != nil {
		return nil, err
	}

	result, err := client.Models.GenerateContent(ctx, modelName.String(), []*genai.Content{{Parts: inlineParts(refs, instruction)}}, &genai.GenerateContentConfig{
		CandidateCount:  1,
		MaxOutputTokens: 50000,
		Temperature:     floatPointer(1),
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{
				{Text: `Keep the person's identity, facial identity and body proportions exactly the same. Output only the edited image on the same flat white background, 9:16 portrait. Clean all background elements, watermarks and other people or objects.`},
			},
		},
	})
	if err != nil {
		fmt.Println("Error in GenerateContent:", err)
		return nil, err
	}

	if result.PromptFeedback != nil {
		fmt.Println(result.PromptFeedback.BlockReason, result.PromptFeedback.BlockReasonMessage)
		return nil, fmt.Errorf("request was blocked: %s", result.PromptFeedback.BlockReasonMessage)
	}

	response := &LLMResponse{Response: result.Text()}
	if result.UsageMetadata != nil {
		response.InputTokenCount = result.UsageMetadata.PromptTokenCount
		response.OutputTokenCount = result.UsageMetadata.CandidatesTokenCount
		response.ThoughtsTokenCount = result.UsageMetadata.ThoughtsTokenCount
		response.TotalTokenCount = result.UsageMetadata.TotalTokenCount
	}
	response.Images, err = GetAllInlineImages(result)
	if err != nil {
		return nil, err
	}
	fmt.Println("Number of images extracted:", len(response.Images))
	if len(response.Images) == 0 {
		return nil, fmt.Errorf("model did not return an image")
	}
	return response, nil
}

type classifyOut struct {
	Category string `json:"category"`
}

// ClassifyGarment asks the model which catalogue category an uploaded
// garment photo belongs to. The response is schema-constrained to the six
// category values; a missing category is a failure.
func (s *GoogleGenAIService) ClassifyGarment(ctx context.Context, image ImageInput, modelName LLMModelName) (models.GarmentCategory, error) {
	client, err := s.newClient(ctx)
	if err != nil {
		return "", err
	}

	categoryValues := make([]string, 0, len(models.AllGarmentCategories))
	for _, c := range models.AllGarmentCategories {
		categoryValues = append(categoryValues, string(c))
	}

	instruction := `Classify the clothing item on the photo into exactly one category. "outfits" means a complete look such as a dress, suit or jumpsuit that replaces both top and bottom.`
	result, err := client.Models.GenerateContent(ctx, modelName.String(), []*genai.Content{{Parts: inlineParts([]ImageInput{image}, instruction)}}, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		CandidateCount:   1,
		MaxOutputTokens:  200,
		Temperature:      floatPointer(0),
		ResponseSchema: &genai.Schema{
			Type: "object",
			Properties: map[string]*genai.Schema{
				"category": {Type: "string", Enum: categoryValues},
			},
			Required: []string{"category"},
		},
	})
	if err != nil {
		fmt.Println("Error in classify GenerateContent:", err)
		return "", err
	}
	if result.PromptFeedback != nil {
		return "", fmt.Errorf("request was blocked: %s", result.PromptFeedback.BlockReasonMessage)
	}

	var parsed classifyOut
	if err := json.Unmarshal([]byte(result.Text()), &parsed); err != nil {
		return "", fmt.Errorf("error parsing classification response %q: %v", result.Text(), err)
	}
	if !models.IsGarmentCategory(parsed.Category) {
		return "", fmt.Errorf("classifier returned no valid category: %q", parsed.Category)
	}
	return models.GarmentCategory(parsed.Category), nil
}

func (s *GoogleGenAIService) StartVideoGeneration(ctx context.Context, image ImageInput, prompt string, aspectRatio string, resolution string) (*VideoOperation, error) {
	client, err := s.newClient(ctx)
	if err != nil {
		return nil, err
	}

	op, err := client.Models.GenerateVideos(ctx, Veo3.String(), prompt, &genai.Image{
		ImageBytes: image.Data,
		MIMEType:   image.MIMEType,
	}, &genai.GenerateVideosConfig{
		AspectRatio: aspectRatio,
		Resolution:  resolution,
	})
	if err != nil {
		fmt.Println("Error in GenerateVideos:", err)
		return nil, err
	}
	return wrapVideoOperation(op), nil
}

func (s *GoogleGenAIService) PollVideoOperation(ctx context.Context, op *VideoOperation) (*VideoOperation, error) {
	client, err := s.newClient(ctx)
	if err != nil {
		return nil, err
	}
	raw := op.raw
	if raw == nil {
		raw = &genai.GenerateVideosOperation{Name: op.Name}
	}
	refreshed, err := client.Operations.GetVideosOperation(ctx, raw, nil)
	if err != nil {
		return nil, err
	}
	return wrapVideoOperation(refreshed), nil
}

// FetchVideo downloads the finished clip. The result URI only serves content
// when the API key is appended as a query credential.
func (s *GoogleGenAIService) FetchVideo(ctx context.Context, downloadURI string) ([]byte, error) {
	separator := "?"
	if strings.Contains(downloadURI, "?") {
		separator = "&"
	}
	return ReadFileFromUrl(downloadURI + separator + "key=" + s.APIKey)
}

func wrapVideoOperation(op *genai.GenerateVideosOperation) *VideoOperation {
	wrapped := &VideoOperation{
		Name: op.Name,
		Done: op.Done,
		raw:  op,
	}
	if op.Response != nil && len(op.Response.GeneratedVideos) > 0 {
		video := op.Response.GeneratedVideos[0].Video
		if video != nil {
			wrapped.DownloadURI = video.URI
			wrapped.VideoBytes = video.VideoBytes
		}
	}
	return wrapped
}
