package prompt

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Platform identifies a target development environment. The set is closed:
// every value the HTTP layer accepts has an entry in the template table.
type Platform string

const (
	PlatformReplit   Platform = "replit"
	PlatformCursor   Platform = "cursor"
	PlatformLovable  Platform = "lovable"
	PlatformBolt     Platform = "bolt"
	PlatformV0       Platform = "v0"
	PlatformWindsurf Platform = "windsurf"
)

// Template holds the per-platform prompt content.
type Template struct {
	DisplayName  string   `yaml:"display_name"`
	TechStack    []string `yaml:"tech_stack"`
	SystemPrompt string   `yaml:"system_prompt"`
}

// Builder turns a platform selection into the system instructions forwarded
// upstream. Build never fails for a supported platform.
type Builder struct {
	templates map[Platform]Template
}

// NewBuilder returns a builder over the built-in template table.
func NewBuilder() *Builder {
	return &Builder{templates: builtinTemplates()}
}

// LoadOverrides merges platform templates from a YAML file on top of the
// built-in table. Unknown platform keys are rejected so typos surface at
// startup rather than at request time.
func (b *Builder) LoadOverrides(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read template overrides: %w", err)
	}
	var raw map[string]Template
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse template overrides: %w", err)
	}
	for key, tpl := range raw {
		p := Platform(strings.ToLower(strings.TrimSpace(key)))
		base, ok := b.templates[p]
		if !ok {
			return fmt.Errorf("template override for unknown platform %q", key)
		}
		if strings.TrimSpace(tpl.DisplayName) != "" {
			base.DisplayName = tpl.DisplayName
		}
		if len(tpl.TechStack) > 0 {
			base.TechStack = tpl.TechStack
		}
		if strings.TrimSpace(tpl.SystemPrompt) != "" {
			base.SystemPrompt = tpl.SystemPrompt
		}
		b.templates[p] = base
	}
	return b.Validate()
}

// Validate checks the table is complete. Called at startup.
func (b *Builder) Validate() error {
	for _, p := range SupportedPlatforms() {
		tpl, ok := b.templates[p]
		if !ok {
			return fmt.Errorf("missing template for platform %q", p)
		}
		if strings.TrimSpace(tpl.SystemPrompt) == "" {
			return fmt.Errorf("empty system prompt for platform %q", p)
		}
	}
	return nil
}

// Supported reports whether the raw platform string names a known platform.
func (b *Builder) Supported(raw string) bool {
	_, ok := b.templates[Platform(strings.ToLower(strings.TrimSpace(raw)))]
	return ok
}

// Build returns the system instructions for a supported platform.
func (b *Builder) Build(p Platform) string {
	tpl, ok := b.templates[p]
	if !ok {
		// Callers validate first; fall back to a neutral prompt rather than
		// failing mid-stream.
		return genericPreamble
	}
	var sb strings.Builder
	sb.WriteString(genericPreamble)
	sb.WriteString("\n\n")
	sb.WriteString(tpl.SystemPrompt)
	if len(tpl.TechStack) > 0 {
		sb.WriteString("\n\nPreferred stack for ")
		sb.WriteString(tpl.DisplayName)
		sb.WriteString(": ")
		sb.WriteString(strings.Join(tpl.TechStack, ", "))
		sb.WriteString(".")
	}
	return sb.String()
}

// Template returns the table entry for a platform.
func (b *Builder) Template(p Platform) (Template, bool) {
	tpl, ok := b.templates[p]
	return tpl, ok
}

// SupportedPlatforms lists the closed platform set in stable order.
func SupportedPlatforms() []Platform {
	return []Platform{
		PlatformReplit,
		PlatformCursor,
		PlatformLovable,
		PlatformBolt,
		PlatformV0,
		PlatformWindsurf,
	}
}

// Names returns the supported platform identifiers as sorted strings.
func Names() []string {
	ps := SupportedPlatforms()
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = string(p)
	}
	sort.Strings(out)
	return out
}

const genericPreamble = `You are an expert software architect. Given a short description of an application, produce a complete implementation blueprint in markdown: an overview, the feature list, the data model, the API surface, the page/screen structure, and a step-by-step build plan. Be specific and practical; prefer concrete names over placeholders.`

func builtinTemplates() map[Platform]Template {
	return map[Platform]Template{
		PlatformReplit: {
			DisplayName:  "Replit",
			TechStack:    []string{"React", "Express", "PostgreSQL", "Drizzle ORM"},
			SystemPrompt: "Target the Replit environment: a single full-stack workspace with one exposed HTTP port. Structure the blueprint so the whole app runs from one repository with a single run command, and call out any secrets that belong in the Replit secrets panel.",
		},
		PlatformCursor: {
			DisplayName:  "Cursor",
			TechStack:    []string{"Next.js", "TypeScript", "Prisma", "PostgreSQL"},
			SystemPrompt: "Target the Cursor editor workflow: the blueprint will be executed file by file by an AI pair programmer. Organize the build plan as ordered, self-contained edits with explicit file paths, and keep each step small enough to apply and verify independently.",
		},
		PlatformLovable: {
			DisplayName:  "Lovable",
			TechStack:    []string{"React", "Tailwind CSS", "Supabase"},
			SystemPrompt: "Target Lovable's generated-app flow: emphasize the visual component hierarchy and page-level layout first, then data wiring through Supabase. Describe components in terms of their props and states so they map cleanly to generated React code.",
		},
		PlatformBolt: {
			DisplayName:  "Bolt",
			TechStack:    []string{"Vite", "React", "Node.js"},
			SystemPrompt: "Target Bolt's in-browser WebContainer runtime: everything must run in Node.js without native dependencies. Flag any feature that needs a real backend service and suggest a browser-compatible substitute.",
		},
		PlatformV0: {
			DisplayName:  "v0",
			TechStack:    []string{"Next.js App Router", "shadcn/ui", "Tailwind CSS"},
			SystemPrompt: "Target Vercel v0: lead with the UI composition using shadcn/ui primitives and Tailwind utility classes. Specify each screen as a composition of named components before describing any server-side behaviour.",
		},
		PlatformWindsurf: {
			DisplayName:  "Windsurf",
			TechStack:    []string{"TypeScript", "React", "Fastify", "SQLite"},
			SystemPrompt: "Target the Windsurf agentic editor: the blueprint drives an autonomous multi-file coding flow. Include acceptance criteria per feature so the agent can verify its own work, and order the plan so the app compiles after every step.",
		},
	}
}
