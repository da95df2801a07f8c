package provider

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"
)

const (
	bedrockDefaultModel  = "anthropic.claude-3-5-haiku-20241022-v1:0"
	bedrockDefaultRegion = "us-east-1"
)

func init() {
	RegisterFactory("bedrock", func(config map[string]any) (Provider, error) {
		region := configString(config, "region", "AWS_REGION", bedrockDefaultRegion)

		ctx, cancel := context.WithTimeout(context.Background(), providerCallTimeout)
		defer cancel()

		cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		return NewBedrockProvider(bedrockruntime.NewFromConfig(cfg)), nil
	})
}

// ConverseAPI is the subset of the Bedrock runtime client used by BedrockProvider.
type ConverseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockProvider implements Provider on the Amazon Bedrock Converse API,
// which gives one request shape across the hosted model families.
type BedrockProvider struct {
	client ConverseAPI
	retry  retryPolicy
}

// NewBedrockProvider wraps a Bedrock runtime client.
func NewBedrockProvider(client ConverseAPI) *BedrockProvider {
	return &BedrockProvider{client: client, retry: defaultRetryPolicy()}
}

// Name returns the provider name
func (p *BedrockProvider) Name() string {
	return "bedrock"
}

// CreateCompletion implements Provider
func (p *BedrockProvider) CreateCompletion(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = bedrockDefaultModel
	}

	input := &bedrockruntime.ConverseInput{
		ModelId: aws.String(model),
		InferenceConfig: &types.InferenceConfiguration{
			Temperature: aws.Float32(float32(req.Temperature)),
		},
	}
	if req.MaxTokens > 0 && req.MaxTokens <= math.MaxInt32 {
		input.InferenceConfig.MaxTokens = aws.Int32(int32(req.MaxTokens))
	}

	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			input.System = append(input.System, &types.SystemContentBlockMemberText{Value: m.Content})
		case "assistant":
			input.Messages = append(input.Messages, bedrockMessage(types.ConversationRoleAssistant, m.Content))
		default:
			input.Messages = append(input.Messages, bedrockMessage(types.ConversationRoleUser, m.Content))
		}
	}

	var out *bedrockruntime.ConverseOutput
	err := p.retry.do(ctx, func(ctx context.Context) error {
		var callErr error
		out, callErr = p.client.Converse(ctx, input)
		return p.wrapError(callErr)
	})
	if err != nil {
		return nil, err
	}

	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return nil, NewProviderError(p.Name(), ErrorCodeEmptyResponse, "no message in response", nil)
	}

	var content strings.Builder
	for _, block := range msg.Value.Content {
		if text, ok := block.(*types.ContentBlockMemberText); ok {
			content.WriteString(text.Value)
		}
	}

	resp := &CompletionResponse{
		Content:      content.String(),
		FinishReason: string(out.StopReason),
	}
	if out.Usage != nil {
		resp.Usage = Usage{
			PromptTokens:     int(aws.ToInt32(out.Usage.InputTokens)),
			CompletionTokens: int(aws.ToInt32(out.Usage.OutputTokens)),
			TotalTokens:      int(aws.ToInt32(out.Usage.TotalTokens)),
		}
	}
	return resp, nil
}

func bedrockMessage(role types.ConversationRole, text string) types.Message {
	return types.Message{
		Role:    role,
		Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: text}},
	}
}

// wrapError converts AWS API errors to ProviderError
func (p *BedrockProvider) wrapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewProviderError(p.Name(), ErrorCodeTimeout, err.Error(), err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := ErrorCodeUnknown
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "ServiceQuotaExceededException":
			code = ErrorCodeRateLimit
		case "AccessDeniedException", "UnrecognizedClientException":
			code = ErrorCodeAuthentication
		case "ResourceNotFoundException":
			code = ErrorCodeModelNotFound
		case "ValidationException":
			code = ErrorCodeInvalidRequest
		case "ModelTimeoutException":
			code = ErrorCodeTimeout
		case "InternalServerException", "ServiceUnavailableException", "ModelNotReadyException":
			code = ErrorCodeServerError
		}
		return NewProviderError(p.Name(), code, apiErr.ErrorMessage(), err)
	}

	return NewProviderError(p.Name(), ErrorCodeUnknown, err.Error(), err)
}
