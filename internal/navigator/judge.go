package navigator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/Keyring-Network/keyring-gavryn/seeker/internal/llm"
	"github.com/Keyring-Network/keyring-gavryn/seeker/internal/pdftext"
)

const (
	DefaultPDFMaxTokens  = 100000
	DefaultPDFCharWindow = 10000

	mismatchReply = "MISMATCH"

	snippetSystemPrompt = "You are an AI assistant and you are good at extracting relevant information from PDF " +
		"documents. Below is a PDF document."
	partsSystemPrompt = "You are an AI assistant and you are good at explaining what PDF documents are about. " +
		"Below is a PDF document (some parts of it were omitted for brevity)."
	userRequestIntro = "And here is what the user asked for."

	snippetInstruction = "Please extract a snippet or snippets from the PDF document that you think are relevant to " +
		"the user's request. Use the following format:\n" +
		"\n" +
		"PDF TITLE: the title of the pdf\n" +
		"DESCRIPTION: briefly explain what this pdf is about\n" +
		"RELEVANT SNIPPET(S): a snippet or snippets relevant to the user's request (make sure to capture a couple " +
		"of surrounding sentences too)\n" +
		"\n" +
		"If the PDF document does not contain any relevant information then respond with only one word - MISMATCH\n" +
		"\n" +
		"ATTENTION! DO NOT ANSWER WITH \"MISMATCH\" IF YOU WERE ABLE TO FIND EVEN A TINY BIT OF RELEVANT " +
		"INFORMATION. \"MISMATCH\" is ONLY for cases when there was NOT EVEN A SINGLE PIECE of relevant " +
		"information (ABSOLUTE ZERO)!\n" +
		"\n" +
		"Begin!"

	partsInstruction = "Use the following format to describe the PDF:\n" +
		"\n" +
		"PDF TITLE: the title of the pdf\n" +
		"DESCRIPTION: briefly explain what this pdf is about\n" +
		"\n" +
		"If the PDF document does not seem to be the one that could be used to answer the user's question then " +
		"end your answer with the word MISMATCH\n" +
		"NOTE: You shouldn't judge whether the PDF document contains any relevant information or not solely by the " +
		"presence/absence of the direct answer to the user's question in the content you see in the prompt above, " +
		"because you are not given the full PDF document, you are given only parts of it. You should judge based " +
		"on whether the PDF document in general seems to be the relevant one to the user's question or not.\n" +
		"\n" +
		"Begin!"
)

type TokenCounter interface {
	Count(text string) int
}

type JudgeConfig struct {
	Model      string
	MaxTokens  int
	CharWindow int
}

// Judge asks the model to pull the snippets of a PDF that matter for the user's request.
// Identical concurrent (document, request) pairs share one model call.
type Judge struct {
	provider llm.Provider
	tokens   TokenCounter
	cfg      JudgeConfig
	flight   singleflight.Group
}

func NewJudge(provider llm.Provider, tokens TokenCounter, cfg JudgeConfig) *Judge {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultPDFMaxTokens
	}
	if cfg.CharWindow <= 0 {
		cfg.CharWindow = DefaultPDFCharWindow
	}
	if tokens == nil {
		tokens = pdftext.NewTokenCounter("")
	}
	return &Judge{provider: provider, tokens: tokens, cfg: cfg}
}

// Snippets returns the relevant excerpt of pdfText, or an *Error of kind ContentMismatch.
func (j *Judge) Snippets(ctx context.Context, pdfText string, userRequest string) (string, error) {
	key := Digest(pdfText) + ":" + Digest(userRequest)
	shared := context.WithoutCancel(ctx)
	ch := j.flight.DoChan(key, func() (any, error) {
		return j.snippets(shared, pdfText, userRequest)
	})
	select {
	case <-ctx.Done():
		return "", newError(KindContentNotFound, "could not read the PDF document: %v", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (j *Judge) snippets(ctx context.Context, pdfText string, userRequest string) (string, error) {
	pdfMessage := "=============== PDF START ===============\n" + pdfText + "\n================ PDF END ================"
	if j.tokens.Count(pdfMessage) > j.cfg.MaxTokens {
		return j.describeParts(ctx, pdfText, userRequest)
	}

	answer, err := j.provider.Generate(ctx, llm.Request{
		Model: j.cfg.Model,
		Messages: []llm.Message{
			llm.System(snippetSystemPrompt),
			llm.User(pdfMessage),
			llm.System(userRequestIntro),
			llm.User(userRequest),
			llm.System(snippetInstruction),
		},
	})
	if err != nil {
		return "", newError(KindContentNotFound, "could not read the PDF document: %v", err)
	}
	answer = strings.TrimSpace(answer)
	if strings.ToUpper(answer) == mismatchReply {
		return "", newError(KindContentMismatch, "This PDF document does not contain any relevant information.")
	}
	return answer, nil
}

func (j *Judge) describeParts(ctx context.Context, pdfText string, userRequest string) (string, error) {
	beginning, middle, end := partition(pdfText, j.cfg.CharWindow)
	answer, err := j.provider.Generate(ctx, llm.Request{
		Model: j.cfg.Model,
		Messages: []llm.Message{
			llm.System(partsSystemPrompt),
			llm.User(beginning + "...\n\n..." + middle + "...\n\n..." + end),
			llm.System(userRequestIntro),
			llm.User(userRequest),
			llm.System(partsInstruction),
		},
	})
	if err != nil {
		return "", newError(KindContentNotFound, "could not read the PDF document: %v", err)
	}
	answer = strings.TrimSpace(answer)
	if strings.HasSuffix(answer, "\n"+mismatchReply) {
		return "", newError(KindContentMismatch, "This PDF document does not seem to be relevant.")
	}
	return answer, nil
}

// partition returns the first, middle and last window runes of text.
func partition(text string, window int) (string, string, string) {
	runes := []rune(text)
	if window <= 0 || len(runes) <= window {
		return text, text, text
	}
	half := len(runes) / 2
	midStart := half - window/2
	midEnd := half + window/2
	if midStart < 0 {
		midStart = 0
	}
	if midEnd > len(runes) {
		midEnd = len(runes)
	}
	return string(runes[:window]), string(runes[midStart:midEnd]), string(runes[len(runes)-window:])
}

func Digest(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
