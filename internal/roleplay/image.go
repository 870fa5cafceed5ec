package roleplay

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/metastable-lab/roleplay/internal/agent"
	"github.com/metastable-lab/roleplay/internal/domain"
	"github.com/metastable-lab/roleplay/internal/llm"
	"github.com/metastable-lab/roleplay/internal/objectstore"
	"github.com/metastable-lab/roleplay/internal/toolschema"
)

// GenerateAvatarTool is the avatar agent's single output: the refined image
// prompt and the vendor-hosted image URL.
type GenerateAvatarTool struct {
	Prompt   string `json:"prompt"`
	ImageURL string `json:"image_url"`
}

func (t *GenerateAvatarTool) ToolName() string { return "generate_avatar" }
func (t *GenerateAvatarTool) ToolDescription() string {
	return "Return the refined avatar prompt and the generated image URL."
}

func (t *GenerateAvatarTool) JSONSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"prompt":    map[string]any{"type": "string", "description": "The refined image-generation prompt."},
			"image_url": map[string]any{"type": "string", "description": "The URL of the generated image."},
		},
		"required":             []string{"prompt", "image_url"},
		"additionalProperties": false,
	}
}

func (t *GenerateAvatarTool) Validate() error {
	if err := toolschema.RequireString("prompt", t.Prompt); err != nil {
		return err
	}
	return toolschema.RequireString("image_url", t.ImageURL)
}

// AvatarInput carries the character the avatar is generated for.
type AvatarInput struct {
	Character domain.Character
}

// AvatarAgent is the image specialization of the agent contract: it
// flattens modality and reasoning hints into the request body,
// and its output handler rehosts the returned image to the object store
// before anything persists the URL.
type AvatarAgent = agent.Agent[AvatarInput, *GenerateAvatarTool]

// NewAvatarAgent wires the avatar agent. store and presigner come from boot;
// client may be nil.
func NewAvatarAgent(store objectstore.ObjectStore, presigner objectstore.Presigner, client *http.Client) *AvatarAgent {
	return &AvatarAgent{
		Definition: domain.SystemConfig{
			Name:         "character_avatar_v0",
			Version:      1,
			SystemPrompt: avatarSystemPrompt,
			Model:        "google/gemini-2.5-flash-image",
			Temperature:  0.8,
			MaxTokens:    4096,
		},
		NewTool: func() *GenerateAvatarTool { return &GenerateAvatarTool{} },
		Image: &llm.ImageOptions{
			Modalities:      []string{"text", "image"},
			ReasoningEffort: "low",
		},
		BuildInput: func(in *AvatarInput) ([]domain.Prompt, error) {
			c := in.Character
			user := fmt.Sprintf("角色名：%s\n性别：%s\n性格：%s\n外观相关特征：%s", c.Name, c.Gender, c.Personality, c.Description)
			return []domain.Prompt{
				{Role: domain.RoleSystem, ContentType: domain.ContentText, Content: avatarSystemPrompt},
				{Role: domain.RoleUserMsg, ContentType: domain.ContentText, Content: user},
			}, nil
		},
		HandleOutput: func(ctx context.Context, in *AvatarInput, resp *agent.RunResponse[*GenerateAvatarTool]) (any, error) {
			key := fmt.Sprintf("avatars/%s/%s.png", in.Character.ID, uuid.NewString())
			hosted, err := objectstore.Rehost(ctx, store, presigner, client, resp.Tool.ImageURL, key)
			if err != nil {
				return nil, err
			}
			return hosted, nil
		},
	}
}

const avatarSystemPrompt = `你是一位角色立绘设计师。根据给出的角色设定，先将其提炼为一段高质量的图像生成提示词，然后生成一张符合角色气质的头像图片，并调用 generate_avatar 工具返回提示词与图片地址。画面要求：单人半身像、干净背景、符合角色性别与性格气质，不包含任何文字。`
