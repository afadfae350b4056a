// Package classify labels a deal with a riding discipline, an item type,
// and a short buyer-facing summary using a hosted generative model. All
// failures degrade to a neutral classification; the pipeline never blocks
// on this service.
package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/ldelaire/dealsniper/internal/logger"
	"github.com/ldelaire/dealsniper/internal/models"
)

// allowedCategories is the closed set of riding disciplines the rest of the
// system routes on. Anything else normalizes to "Autre".
var allowedCategories = []string{
	"Route",
	"Gravel",
	"XC",
	"Trail / All-Mountain",
	"Enduro",
	"DH / Bike Park",
	"E-MTB",
	"Accessoires génériques",
	"Autre",
}

// Client talks to a generateContent-style JSON endpoint.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	maxRetries int
}

// NewClient creates a classification client.
func NewClient(baseURL, apiKey, model string, timeout time.Duration, maxRetries int) *Client {
	if maxRetries <= 0 {
		maxRetries = 2
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		maxRetries: maxRetries,
	}
}

// request/response shapes for the generateContent wire format.
type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// classifyResult is the JSON object the model is instructed to emit.
type classifyResult struct {
	Usage  string `json:"usage"`
	Type   string `json:"type"`
	Resume string `json:"resume"`
}

var jsonObjectRe = regexp.MustCompile(`\{[\s\S]*\}`)

// Classify labels one deal. On any error it returns a neutral
// classification and the error; callers log and keep going.
func (c *Client) Classify(ctx context.Context, title, description string) (models.Classification, error) {
	fallback := models.Classification{Usage: "Autre"}

	prompt := buildPrompt(title, description)
	text, err := c.generate(ctx, prompt)
	if err != nil {
		return fallback, err
	}

	m := jsonObjectRe.FindString(text)
	if m == "" {
		return fallback, fmt.Errorf("no JSON object in model output")
	}

	var result classifyResult
	if err := json.Unmarshal([]byte(m), &result); err != nil {
		return fallback, fmt.Errorf("failed to parse model output: %w", err)
	}
	if result.Usage == "" {
		return fallback, fmt.Errorf("model output missing usage field")
	}

	return models.Classification{
		Usage:   NormalizeCategory(result.Usage),
		Type:    strings.TrimSpace(result.Type),
		Summary: strings.TrimSpace(result.Resume),
	}, nil
}

// generate performs the HTTP call with bounded retries on transport errors
// and retryable statuses.
func (c *Client) generate(ctx context.Context, prompt string) (string, error) {
	payload, err := json.Marshal(generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return "", fmt.Errorf("failed to build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			logger.Debug("classify: attempt %d failed: %v", attempt+1, err)
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("retryable status %d", resp.StatusCode)
			logger.Debug("classify: attempt %d got status %d", attempt+1, resp.StatusCode)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncateBody(body))
		}
		if readErr != nil {
			lastErr = fmt.Errorf("failed to read body: %w", readErr)
			continue
		}

		var parsed generateResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return "", fmt.Errorf("failed to unmarshal response: %w", err)
		}
		if len(parsed.Candidates) == 0 {
			return "", fmt.Errorf("response has no candidates")
		}

		var sb strings.Builder
		for _, p := range parsed.Candidates[0].Content.Parts {
			sb.WriteString(p.Text)
		}
		return sb.String(), nil
	}

	return "", fmt.Errorf("max retries exceeded: %w", lastErr)
}

func buildPrompt(title, description string) string {
	var sb strings.Builder
	sb.WriteString("Tu es un expert en matériel de vélo. Analyse ce produit et réponds ")
	sb.WriteString("UNIQUEMENT avec un objet JSON de la forme ")
	sb.WriteString(`{"usage": "...", "type": "...", "resume": "..."}` + ".\n")
	sb.WriteString("- usage: la discipline cible, exactement une valeur parmi: ")
	sb.WriteString(strings.Join(allowedCategories, ", "))
	sb.WriteString(".\n- type: le type d'article (fourche, pneu, casque, ...).\n")
	sb.WriteString("- resume: un résumé d'une phrase pour un acheteur.\n\n")
	sb.WriteString("Titre: " + title + "\n")
	if description != "" {
		sb.WriteString("Description: " + description + "\n")
	}
	return sb.String()
}

// NormalizeCategory maps free-form model output onto the closed category
// set, with substring fallbacks for near-misses.
func NormalizeCategory(raw string) string {
	cleaned := strings.TrimSpace(raw)
	for _, c := range allowedCategories {
		if strings.EqualFold(cleaned, c) {
			return c
		}
	}

	lower := strings.ToLower(cleaned)
	switch {
	case strings.Contains(lower, "route") || strings.Contains(lower, "road"):
		return "Route"
	case strings.Contains(lower, "gravel"):
		return "Gravel"
	case strings.Contains(lower, "e-mtb") || strings.Contains(lower, "emtb") || strings.Contains(lower, "lectrique"):
		return "E-MTB"
	case strings.Contains(lower, "enduro"):
		return "Enduro"
	case strings.Contains(lower, "dh") || strings.Contains(lower, "descente") || strings.Contains(lower, "downhill") || strings.Contains(lower, "park"):
		return "DH / Bike Park"
	case strings.Contains(lower, "trail") || strings.Contains(lower, "all-mountain") || strings.Contains(lower, "all mountain"):
		return "Trail / All-Mountain"
	case strings.Contains(lower, "xc") || strings.Contains(lower, "cross-country") || strings.Contains(lower, "cross country"):
		return "XC"
	case strings.Contains(lower, "accessoire"):
		return "Accessoires génériques"
	}
	return "Autre"
}

func truncateBody(body []byte) string {
	const max = 200
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
