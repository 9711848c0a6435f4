package providers

// builtinSpecs is the provider table available out of the box. Names are
// matched case-insensitively.
var builtinSpecs = []Spec{
	// OpenAI-compatible, driven through the SDK.
	{Name: "OpenAI", Family: FamilyOpenAI, BaseURL: "https://api.openai.com/v1", Auth: AuthBearer, CredentialEnv: "OPENAI_API_KEY", Streaming: true},
	{Name: "OpenRouter", Family: FamilyOpenAI, BaseURL: "https://openrouter.ai/api/v1", Auth: AuthBearer, CredentialEnv: "OPENROUTER_API_KEY", Streaming: true},
	{Name: "XAI", Family: FamilyOpenAI, BaseURL: "https://api.x.ai/v1", Auth: AuthBearer, CredentialEnv: "XAI_API_KEY", Streaming: true},
	{Name: "Groq", Family: FamilyOpenAI, BaseURL: "https://api.groq.com/openai/v1", Auth: AuthBearer, CredentialEnv: "GROQ_API_KEY", Streaming: true},

	// Header-keyed single call.
	{
		Name: "Anthropic", Family: FamilyBatch, BaseURL: "https://api.anthropic.com/v1",
		Auth: AuthHeader, AuthHeader: "x-api-key", CredentialEnv: "ANTHROPIC_API_KEY",
		DefaultModels: []string{"claude-3-5-sonnet-latest", "claude-3-5-haiku-latest", "claude-3-opus-latest"},
	},
	{
		Name: "Google", Family: FamilyBatch, BaseURL: "https://generativelanguage.googleapis.com/v1beta",
		Auth: AuthQuery, CredentialEnv: "GOOGLE_GENERATIVE_AI_API_KEY",
		DefaultModels: []string{"gemini-1.5-pro", "gemini-1.5-flash"},
	},
	{
		Name: "HuggingFace", Family: FamilyBatch, BaseURL: "https://api-inference.huggingface.co/models",
		Auth: AuthBearer, CredentialEnv: "HF_TOKEN",
		DefaultModels: []string{"mistralai/Mistral-7B-Instruct-v0.3", "HuggingFaceH4/zephyr-7b-beta"},
	},

	// SSE-line JSON.
	{Name: "Perplexity", Family: FamilySSE, BaseURL: "https://api.perplexity.ai", Auth: AuthBearer, CredentialEnv: "PERPLEXITY_API_KEY", Streaming: true},
	{Name: "Together", Family: FamilySSE, BaseURL: "https://api.together.ai/v1", Auth: AuthBearer, CredentialEnv: "TOGETHER_API_KEY", Streaming: true},
	{Name: "Mistral", Family: FamilySSE, BaseURL: "https://api.mistral.ai/v1", Auth: AuthBearer, CredentialEnv: "MISTRAL_API_KEY", Streaming: true},
	{Name: "DeepSeek", Family: FamilySSE, BaseURL: "https://api.deepseek.com/v1", Auth: AuthBearer, CredentialEnv: "DEEPSEEK_API_KEY", Streaming: true},
	{Name: "Pi", Family: FamilySSE, BaseURL: "https://api.pi.ai/v1", Auth: AuthBearer, CredentialEnv: "PI_API_KEY", Streaming: true},
}

// CredentialEnvs returns provider name -> credential environment variable
// for every built-in provider.
func CredentialEnvs() map[string]string {
	out := make(map[string]string, len(builtinSpecs))
	for _, s := range builtinSpecs {
		out[s.Name] = s.CredentialEnv
	}
	return out
}
