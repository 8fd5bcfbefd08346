package notifications

import (
	"embed"
	"fmt"
	"html"
	"regexp"
	"strings"
	"sync"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

const statsSeparator = " · "

// RenderedEmail is a fully rendered message ready for delivery.
type RenderedEmail struct {
	Subject string `json:"subject"`
	HTML    string `json:"html"`
	Text    string `json:"text"`
}

// localeStrings holds per-language template wording.
type localeStrings struct {
	genericTitle    string
	genericMessage  string
	genericCTALabel string

	enrollSubjectPrefix string
	enrollFallbackTitle string
	enrollCoursesFmt    string
	enrollModulesFmt    string
	enrollCTALabel      string
}

var locales = map[Language]localeStrings{
	LanguagePTBR: {
		genericTitle:    "Notificação",
		genericMessage:  "Você tem uma nova notificação na plataforma.",
		genericCTALabel: "Acessar a plataforma",

		enrollSubjectPrefix: "Você está dentro! ",
		enrollFallbackTitle: "sua nova trilha",
		enrollCoursesFmt:    "%d cursos selecionados",
		enrollModulesFmt:    "%d módulos",
		enrollCTALabel:      "Começar a aprender",
	},
	LanguageENUS: {
		genericTitle:    "Notification",
		genericMessage:  "You have a new notification on the platform.",
		genericCTALabel: "Open the platform",

		enrollSubjectPrefix: "You're in! ",
		enrollFallbackTitle: "your new learning path",
		enrollCoursesFmt:    "%d curated courses",
		enrollModulesFmt:    "%d modules",
		enrollCTALabel:      "Start learning",
	},
}

// Renderer renders notification emails from embedded templates.
// Template files are loaded lazily and cached for the renderer's lifetime.
type Renderer struct {
	siteBaseURL string

	mu    sync.Mutex
	cache map[string]string
}

// NewRenderer creates a new renderer. siteBaseURL is used to build
// call-to-action links.
func NewRenderer(siteBaseURL string) *Renderer {
	return &Renderer{
		siteBaseURL: strings.TrimRight(siteBaseURL, "/"),
		cache:       make(map[string]string),
	}
}

// Render renders the request in the given language.
// Subject, HTML and text are always populated; the text channel is composed
// independently rather than derived from the HTML.
func (r *Renderer) Render(req TemplateRequest, lang Language) (RenderedEmail, error) {
	loc, ok := locales[lang]
	if !ok {
		lang = DefaultLanguage
		loc = locales[lang]
	}

	switch req.Template {
	case TemplateGeneric:
		return r.renderGeneric(req.Generic, loc), nil
	case TemplatePathEnrollment:
		return r.renderPathEnrollment(req.PathEnrollment, lang, loc)
	default:
		return RenderedEmail{}, fmt.Errorf("%w: %q", ErrUnsupportedTemplate, req.Template)
	}
}

func (r *Renderer) renderGeneric(p *GenericPayload, loc localeStrings) RenderedEmail {
	if p == nil {
		p = &GenericPayload{}
	}

	title := p.Title
	if title == "" {
		title = loc.genericTitle
	}
	message := p.Message
	if message == "" {
		message = loc.genericMessage
	}
	ctaLabel := p.CTALabel
	if ctaLabel == "" {
		ctaLabel = loc.genericCTALabel
	}

	// The call-to-action block is omitted entirely when no URL is given.
	var ctaHTML string
	if p.CTAURL != "" {
		ctaHTML = fmt.Sprintf(
			`<p style="margin:24px 0 0"><a href="%s" style="display:inline-block;padding:12px 24px;background:#4f46e5;color:#ffffff;text-decoration:none;border-radius:6px">%s</a></p>`,
			html.EscapeString(p.CTAURL), html.EscapeString(ctaLabel),
		)
	}

	htmlBody := fmt.Sprintf(
		`<div style="font-family:Arial,Helvetica,sans-serif;max-width:560px;margin:0 auto;padding:24px"><h2 style="color:#111827">%s</h2><p style="color:#374151;line-height:1.6">%s</p>%s</div>`,
		html.EscapeString(title), html.EscapeString(message), ctaHTML,
	)

	var text strings.Builder
	text.WriteString(title)
	text.WriteString("\n\n")
	text.WriteString(message)
	if p.CTAURL != "" {
		text.WriteString("\n\n")
		text.WriteString(ctaLabel)
		text.WriteString(": ")
		text.WriteString(p.CTAURL)
	}

	return RenderedEmail{Subject: title, HTML: htmlBody, Text: text.String()}
}

func (r *Renderer) renderPathEnrollment(p *PathEnrollmentPayload, lang Language, loc localeStrings) (RenderedEmail, error) {
	if p == nil {
		p = &PathEnrollmentPayload{}
	}

	title := p.PathTitle
	if title == "" {
		title = loc.enrollFallbackTitle
	}
	subject := loc.enrollSubjectPrefix + title

	var stats []string
	if p.CoursesCount != nil {
		stats = append(stats, fmt.Sprintf(loc.enrollCoursesFmt, *p.CoursesCount))
	}
	if p.ModulesCount != nil {
		stats = append(stats, fmt.Sprintf(loc.enrollModulesFmt, *p.ModulesCount))
	}
	statsLine := strings.Join(stats, statsSeparator)

	ctaURL := r.siteBaseURL
	if p.PathSlug != "" {
		ctaURL = fmt.Sprintf("%s/paths/%s", r.siteBaseURL, p.PathSlug)
	}

	tmpl, err := r.loadTemplate(fmt.Sprintf("templates/path_enrollment_%s.tmpl", lang))
	if err != nil {
		return RenderedEmail{}, err
	}

	var descriptionBlock string
	if p.PathDescription != "" {
		descriptionBlock = fmt.Sprintf(`<p style="color:#374151;line-height:1.6">%s</p>`, html.EscapeString(p.PathDescription))
	}
	var statsBlock string
	if statsLine != "" {
		statsBlock = fmt.Sprintf(`<p style="color:#6b7280">%s</p>`, html.EscapeString(statsLine))
	}

	htmlBody := substitutePlaceholders(tmpl, map[string]string{
		"pathTitle":        html.EscapeString(title),
		"descriptionBlock": descriptionBlock,
		"statsBlock":       statsBlock,
		"ctaUrl":           html.EscapeString(ctaURL),
		"ctaLabel":         html.EscapeString(loc.enrollCTALabel),
	})

	var text strings.Builder
	text.WriteString(subject)
	if p.PathDescription != "" {
		text.WriteString("\n\n")
		text.WriteString(p.PathDescription)
	}
	if statsLine != "" {
		text.WriteString("\n\n")
		text.WriteString(statsLine)
	}
	text.WriteString("\n\n")
	text.WriteString(loc.enrollCTALabel)
	text.WriteString(": ")
	text.WriteString(ctaURL)

	return RenderedEmail{Subject: subject, HTML: htmlBody, Text: text.String()}, nil
}

// loadTemplate returns the embedded template content, caching it after the
// first read.
func (r *Renderer) loadTemplate(name string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if content, ok := r.cache[name]; ok {
		return content, nil
	}

	raw, err := templatesFS.ReadFile(name)
	if err != nil {
		return "", fmt.Errorf("read template %s: %w", name, err)
	}

	content := string(raw)
	r.cache[name] = content
	return content, nil
}

var placeholderRe = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_]+)\s*\}\}`)

// substitutePlaceholders replaces {{key}} markers with the matching value.
// Unresolved placeholders become empty string.
func substitutePlaceholders(tmpl string, values map[string]string) string {
	return placeholderRe.ReplaceAllStringFunc(tmpl, func(m string) string {
		key := placeholderRe.FindStringSubmatch(m)[1]
		return values[key]
	})
}
