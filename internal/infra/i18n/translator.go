package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const baseLang = "en"

//go:embed locales
var LocalesFS embed.FS

// Translator resolves message keys for one language. Keys missing from that
// language fall back to English, then to the key itself.
type Translator struct {
	lang     string
	messages map[string]string
	base     map[string]string
}

// NewTranslator loads locales/<lang>.yaml from fsys. Region suffixes are
// dropped, so "ru-RU" and "RU" both load ru.yaml.
func NewTranslator(fsys fs.FS, lang string) (*Translator, error) {
	lang = normalizeLang(lang)
	base, err := readLocale(fsys, baseLang)
	if err != nil {
		return nil, err
	}
	if lang == baseLang {
		return &Translator{lang: lang, messages: base}, nil
	}
	msgs, err := readLocale(fsys, lang)
	if err != nil {
		return nil, err
	}
	return &Translator{lang: lang, messages: msgs, base: base}, nil
}

func normalizeLang(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if i := strings.IndexAny(lang, "-_"); i > 0 {
		lang = lang[:i]
	}
	if lang == "" {
		return baseLang
	}
	return lang
}

func readLocale(fsys fs.FS, lang string) (map[string]string, error) {
	name := "locales/" + lang + ".yaml"
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("read locale %s: %w", name, err)
	}
	msgs, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("locale %s: %w", name, err)
	}
	return msgs, nil
}

// parse accepts a flat map of string keys to string messages.
func parse(data []byte) (map[string]string, error) {
	var msgs map[string]string
	if err := yaml.Unmarshal(data, &msgs); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	if msgs == nil {
		msgs = map[string]string{}
	}
	return msgs, nil
}

func newTranslatorFromBytes(data []byte) (*Translator, error) {
	msgs, err := parse(data)
	if err != nil {
		return nil, err
	}
	return &Translator{lang: baseLang, messages: msgs}, nil
}

func (t *Translator) Lang() string { return t.lang }

// T formats the message for key with args.
func (t *Translator) T(key string, args ...interface{}) string {
	format, ok := t.messages[key]
	if !ok {
		format, ok = t.base[key]
	}
	if !ok {
		return key
	}
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}

// Untranslated lists the English keys this language serves from the
// fallback, sorted.
func (t *Translator) Untranslated() []string {
	var out []string
	for k := range t.base {
		if _, ok := t.messages[k]; !ok {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
