// Package openai implements the ai interfaces over OpenAI-compatible APIs.
//
// It works with any server speaking the OpenAI chat and embeddings protocol,
// including local ones such as Ollama or vLLM. Hosts are normalized to end in /v1.
//
// Intent scoring and reranking are both prompt-driven JSON judgements. Answers are
// decoded leniently (fences stripped, surrounding chatter and trailing commas dropped)
// and retried up to Config.MaxAttempts times when they still fail to parse.
//
// Usage:
//
//	provider, err := openai.NewProvider(ai.NewConfig(
//	    ai.WithHost("http://localhost:11434"),
//	    ai.WithClassifierModel("qwen2.5:7b"),
//	))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
package openai
