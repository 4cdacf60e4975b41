package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/dailyconnect/pipeline/internal/models"
	"github.com/google/uuid"
)

// GeneratedItem is an unverified candidate item as returned by the LLM,
// before the verifier has had a chance to resolve it against a catalog.
type GeneratedItem struct {
	Title string
	Year  *int
}

// GeneratedGroup is one candidate group parsed out of a single LLM call.
// AllItemsVerified is always false at construction time; the pipeline
// generator flips the equivalent verified state after running items
// through a Verifier.
type GeneratedGroup struct {
	ID               string
	Items            []GeneratedItem
	Connection       string
	ConnectionType   string
	Explanation      string
	AllItemsVerified bool
}

// YearRange bounds the items the LLM should draw from, when meaningful
// for the genre (films, music); nil for genres without a year axis.
type YearRange struct {
	From int
	To   int
}

// GenerateFilters narrows a single Generate call: the genre, the target
// difficulty color, the connections to avoid repeating, and an optional
// year range.
type GenerateFilters struct {
	Genre              models.Genre
	TargetDifficulty   models.Color
	ExcludeConnections []string
	YearRange          *YearRange
}

// GenerateRequest is everything one LLMGroupGenerator.Generate call needs.
type GenerateRequest struct {
	Filters         GenerateFilters
	ConnectionTypes []models.ConnectionType
	Count           int
	GoodExamples    []models.FeedbackRecord
	BadExamples     []models.FeedbackRecord
}

// Generator builds a domain-aware prompt, calls the provider, and parses
// the response into candidate groups. It owns no verification or
// persistence concerns; those belong to the pipeline generator.
type Generator struct {
	Client      Client
	Credentials CredentialProvider
}

func NewGenerator(client Client, creds CredentialProvider) *Generator {
	return &Generator{Client: client, Credentials: creds}
}

// Generate issues exactly one provider call and returns up to req.Count
// candidate groups (all parsed groups when req.Count is not positive).
// When Credentials is set, it must yield a key for the genre on every
// call or the call fails; the key itself is not passed to Client, which
// authenticates with the credential it was constructed with.
func (g *Generator) Generate(ctx context.Context, req GenerateRequest) ([]GeneratedGroup, error) {
	if g.Credentials != nil {
		if _, err := g.Credentials.APIKey(string(req.Filters.Genre)); err != nil {
			return nil, fmt.Errorf("llm: resolve credential: %w", err)
		}
	}

	prompt := buildPrompt(req)

	raw, err := g.Client.Complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("llm: complete: %w", err)
	}

	groups, err := parseGroups(raw)
	if err != nil {
		return nil, fmt.Errorf("llm: parse response: %w", err)
	}
	if req.Count > 0 && len(groups) > req.Count {
		groups = groups[:req.Count]
	}
	return groups, nil
}

func domainRoleClause(genre models.Genre) string {
	switch genre {
	case models.GenreFilms:
		return "a film expert creating groups of 4 items for a puzzle game"
	case models.GenreMusic:
		return "a music expert creating groups of 4 items for a puzzle game"
	case models.GenreBooks:
		return "a literature expert creating groups of 4 items for a puzzle game"
	case models.GenreSports:
		return "a sports expert creating groups of 4 items for a puzzle game"
	default:
		return "a trivia expert creating groups of 4 items for a puzzle game"
	}
}

// buildPrompt is a pure function from a GenerateRequest to a prompt
// string, satisfying the seven-point skeleton: role, hard requirements,
// active connection types, filters, good exemplars, bad exemplars, and
// the strict output contract.
func buildPrompt(req GenerateRequest) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are %s.\n\n", domainRoleClause(req.Filters.Genre))

	b.WriteString("Requirements:\n")
	b.WriteString("- Each group has exactly 4 items\n")
	b.WriteString("- Items must be real and well-known within the domain\n")
	b.WriteString("- Connections should be novel and satisfying, not trivial or overused\n")
	b.WriteString("- Include a year for each item when a year is meaningful\n")
	fmt.Fprintf(&b, "- Produce up to %d candidate groups\n\n", req.Count)

	if len(req.ConnectionTypes) > 0 {
		b.WriteString("Active connection types:\n")
		for _, ct := range req.ConnectionTypes {
			fmt.Fprintf(&b, "- %s (%s): %s\n", ct.Name, ct.Category, ct.Description)
			for _, ex := range ct.Examples {
				fmt.Fprintf(&b, "    e.g. %s\n", ex)
			}
		}
		b.WriteString("\n")
	}

	if req.Filters.YearRange != nil {
		fmt.Fprintf(&b, "Year range: %d-%d\n", req.Filters.YearRange.From, req.Filters.YearRange.To)
	}
	if req.Filters.TargetDifficulty != "" {
		fmt.Fprintf(&b, "Target difficulty: %s\n", models.TargetDifficultyToken(req.Filters.TargetDifficulty))
	}
	if len(req.Filters.ExcludeConnections) > 0 {
		fmt.Fprintf(&b, "Do not reuse these connections: %s\n", strings.Join(req.Filters.ExcludeConnections, "; "))
	}
	b.WriteString("\n")

	if len(req.GoodExamples) > 0 {
		b.WriteString("Good examples to imitate (connection -> items):\n")
		for _, ex := range req.GoodExamples {
			fmt.Fprintf(&b, "- %s -> %s\n", ex.Connection, feedbackItemsToString(ex.Items))
		}
		b.WriteString("\n")
	}

	if len(req.BadExamples) > 0 {
		b.WriteString("Bad examples to avoid (connection -> items, reason):\n")
		for _, ex := range req.BadExamples {
			reason := "rejected"
			if ex.RejectionReason != nil {
				reason = *ex.RejectionReason
			}
			fmt.Fprintf(&b, "- %s -> %s (%s)\n", ex.Connection, feedbackItemsToString(ex.Items), reason)
		}
		b.WriteString("\n")
	}

	b.WriteString(`Respond with strict JSON only, one top-level key "groups":
{
  "groups": [
    {
      "items": [{"title": "...", "year": 0}, {"title": "...", "year": 0}, {"title": "...", "year": 0}, {"title": "...", "year": 0}],
      "connection": "...",
      "connectionType": "...",
      "explanation": "..."
    }
  ]
}
Return ONLY the JSON object. Do not include any explanatory text before or after it.`)

	return b.String()
}

func feedbackItemsToString(items []models.FeedbackItem) string {
	parts := make([]string, len(items))
	for i, it := range items {
		if it.Year != nil {
			parts[i] = fmt.Sprintf("%s (%d)", it.Title, *it.Year)
		} else {
			parts[i] = it.Title
		}
	}
	return strings.Join(parts, ", ")
}

type groupsWire struct {
	Groups []groupWire `json:"groups"`
}

type groupWire struct {
	Items          []itemWire `json:"items"`
	Connection     string     `json:"connection"`
	ConnectionType string     `json:"connectionType"`
	Explanation    string     `json:"explanation"`
}

type itemWire struct {
	Title string `json:"title"`
	Year  *int   `json:"year"`
}

// parseGroups extracts the outermost balanced-brace JSON span, decodes
// it, and maps it to GeneratedGroup values. A missing '{' or malformed
// JSON fails the whole call; there is no per-group salvage here.
func parseGroups(response string) ([]GeneratedGroup, error) {
	span, err := extractBalancedObject(response)
	if err != nil {
		return nil, err
	}

	var wire groupsWire
	if err := unmarshalStrict(span, &wire); err != nil {
		return nil, fmt.Errorf("malformed response: %w", err)
	}

	out := make([]GeneratedGroup, 0, len(wire.Groups))
	for _, gw := range wire.Groups {
		items := make([]GeneratedItem, len(gw.Items))
		for i, iw := range gw.Items {
			items[i] = GeneratedItem{Title: iw.Title, Year: iw.Year}
		}
		out = append(out, GeneratedGroup{
			ID:             uuid.NewString(),
			Items:          items,
			Connection:     gw.Connection,
			ConnectionType: gw.ConnectionType,
			Explanation:    gw.Explanation,
		})
	}
	return out, nil
}
