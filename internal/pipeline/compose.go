package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/quietnews/internal/news"
)

const (
	MaxComposeClusters = 8
	ComposeMaxTokens   = 1024
	composeTemp        = 0.2
)

const composeSystem = "כתוב פסקת דיג'סט אחת בעברית, 5-10 משפטים, טון נעים ורגוע. ללא דרמה. אם אירוע ביטחוני קיים, שלב סטטוס ואזור בצורה ניטרלית."

var errEmptyDigest = errors.New("empty digest text")

// Composer turns vital clusters into one digest paragraph.
type Composer interface {
	Name() string
	Compose(ctx context.Context, vital []news.EventCluster) (string, error)
}

// GenerativeComposer asks the LLM provider for a calm paragraph.
type GenerativeComposer struct {
	provider Provider
	timeout  time.Duration
	hooks    Hooks
}

// NewGenerativeComposer creates the LLM-backed composer.
func NewGenerativeComposer(p Provider, timeout time.Duration, hooks Hooks) *GenerativeComposer {
	return &GenerativeComposer{provider: p, timeout: timeout, hooks: hooks}
}

func (g *GenerativeComposer) Name() string { return "generative" }

// Compose summarizes at most MaxComposeClusters clusters.
func (g *GenerativeComposer) Compose(ctx context.Context, vital []news.EventCluster) (string, error) {
	if len(vital) == 0 {
		return news.Placeholder, nil
	}

	payload, err := json.Marshal(vital[:min(len(vital), MaxComposeClusters)])
	if err != nil {
		return "", fmt.Errorf("marshal clusters: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	resp, err := g.provider.Send(ctx, &LLMRequest{
		MaxTokens:   ComposeMaxTokens,
		Temperature: composeTemp,
		System:      composeSystem,
		Messages:    userPrompt("סכם רק את האירועים הבאים לפסקה אחת: " + string(payload)),
	})
	if err != nil {
		return "", fmt.Errorf("compose: %w", err)
	}
	if g.hooks.OnLLMCall != nil {
		g.hooks.OnLLMCall("compose", resp.Usage.InputTokens, resp.Usage.OutputTokens, time.Since(start).Seconds())
	}

	text := collapseSpace(resp.Text())
	if text == "" {
		return "", errEmptyDigest
	}
	return text, nil
}

// TemplateComposer joins summary sentences deterministically.
type TemplateComposer struct{}

func (TemplateComposer) Name() string { return "template" }

// Compose appends " (סטטוס: S, אזור: A)" when both labels are present.
func (TemplateComposer) Compose(_ context.Context, vital []news.EventCluster) (string, error) {
	if len(vital) == 0 {
		return news.Placeholder, nil
	}
	parts := make([]string, 0, len(vital))
	for _, c := range vital {
		s := c.SummarySentence
		if c.SecurityStatus != nil && c.Area != nil {
			s += fmt.Sprintf(" (סטטוס: %s, אזור: %s)", *c.SecurityStatus, *c.Area)
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, " "), nil
}

// FallbackComposer tries Primary once and uses Fallback on error or empty
// output. Primary may be nil.
type FallbackComposer struct {
	Primary  Composer
	Fallback Composer
	Logger   log.Logger
	Hooks    Hooks
}

func (f *FallbackComposer) Name() string { return "fallback" }

func (f *FallbackComposer) Compose(ctx context.Context, vital []news.EventCluster) (string, error) {
	if len(vital) == 0 {
		return news.Placeholder, nil
	}
	if f.Primary != nil {
		text, err := f.Primary.Compose(ctx, vital)
		if err == nil && text != "" {
			f.strategy(f.Primary.Name())
			return text, nil
		}
		if err == nil {
			err = errEmptyDigest
		}
		f.Logger.Warn(ctx, "composer failed, using fallback",
			"strategy", f.Primary.Name(),
			"fallback", f.Fallback.Name(),
			"reason", err.Error(),
		)
	}
	f.strategy(f.Fallback.Name())
	return f.Fallback.Compose(ctx, vital)
}

func (f *FallbackComposer) strategy(name string) {
	if f.Hooks.OnStrategy != nil {
		f.Hooks.OnStrategy("compose", name)
	}
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
