package persona

import (
	"strings"
	"text/template"

	apperrors "github.com/GriffinCanCode/parley/internal/errors"
)

// ConnectConfig is the learner's choice set, captured once per session.
type ConnectConfig struct {
	Topic          string `json:"topic"`
	Description    string `json:"description,omitempty"`
	LanguageCode   string `json:"languageCode"`
	LanguageName   string `json:"languageName,omitempty"`
	LanguageRegion string `json:"languageRegion,omitempty"`
	Context        string `json:"context,omitempty"`
	Proficiency    string `json:"proficiency"`
	Voice          string `json:"voice"`
}

// Resolve fills blanks with catalog defaults and canonicalizes every choice.
// Unknown languages, levels or voices are rejected.
func (c *Catalog) Resolve(cfg ConnectConfig) (ConnectConfig, error) {
	lang := c.Languages[0]
	if cfg.LanguageCode != "" {
		l, ok := c.Language(cfg.LanguageCode)
		if !ok {
			return cfg, apperrors.Newf(apperrors.CodeConfigInvalid, "unknown language %q", cfg.LanguageCode)
		}
		lang = l
	}
	cfg.LanguageCode, cfg.LanguageName, cfg.LanguageRegion = lang.Code, lang.Name, lang.Region

	level := c.Levels[0]
	if cfg.Proficiency != "" {
		l, ok := c.Level(cfg.Proficiency)
		if !ok {
			return cfg, apperrors.Newf(apperrors.CodeConfigInvalid, "unknown proficiency %q", cfg.Proficiency)
		}
		level = l
	}
	cfg.Proficiency = level.ID

	voice := c.Voices[0]
	if cfg.Voice != "" {
		v, ok := c.Voice(cfg.Voice)
		if !ok {
			return cfg, apperrors.Newf(apperrors.CodeConfigInvalid, "unknown voice %q", cfg.Voice)
		}
		voice = v
	}
	cfg.Voice = voice.Name

	// Topics are free text; the catalog only offers suggestions.
	cfg.Topic = strings.TrimSpace(cfg.Topic)
	if cfg.Topic == "" {
		cfg.Topic = c.Topics[0]
	}
	cfg.Description = strings.TrimSpace(cfg.Description)
	cfg.Context = strings.TrimSpace(cfg.Context)
	return cfg, nil
}

var instructionTmpl = template.Must(template.New("instruction").Parse(
	`You are a friendly conversation partner helping a learner practice {{.Lang.Name}} as spoken in {{.Lang.Region}} ({{.Lang.Code}}).
Speak only {{.Lang.Name}}, with natural pronunciation and expressions from {{.Lang.Region}}.
The learner describes their level as "{{.Level.Label}}": {{.Level.Description}}. {{.Pace}}
Today's topic is "{{.Cfg.Topic}}".{{if .Cfg.Description}} {{.Cfg.Description}}{{end}}
{{- if .Cfg.Context}}
Background from the learner: {{.Cfg.Context}}
{{- end}}
Keep your turns short and end most of them with a question so the learner keeps talking.
When the learner makes a mistake, repeat the sentence correctly in a natural way and carry on.`))

var pace = map[string]string{
	"basic":        "Use short sentences, common words and a slow pace.",
	"intermediate": "Use everyday vocabulary at a natural pace and introduce an occasional new phrase.",
	"advanced":     "Speak at native pace and use idioms and nuanced vocabulary freely.",
}

// Instruction derives the system instruction for a resolved config.
func (c *Catalog) Instruction(cfg ConnectConfig) (string, error) {
	lang, ok := c.Language(cfg.LanguageCode)
	if !ok {
		return "", apperrors.Newf(apperrors.CodeConfigInvalid, "unknown language %q", cfg.LanguageCode)
	}
	level, ok := c.Level(cfg.Proficiency)
	if !ok {
		return "", apperrors.Newf(apperrors.CodeConfigInvalid, "unknown proficiency %q", cfg.Proficiency)
	}

	var b strings.Builder
	err := instructionTmpl.Execute(&b, struct {
		Cfg   ConnectConfig
		Lang  Language
		Level Level
		Pace  string
	}{cfg, lang, level, pace[level.ID]})
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeInternal, "render instruction")
	}
	return strings.TrimSpace(b.String()), nil
}
