package i18n

import (
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"github.com/iamwavecut/emojibot/resources"
)

const translationsFile = "i18n/translations.yml"

var state = struct {
	once         sync.Once
	translations map[string]map[string]string
}{}

// load reads the key -> LOCALE -> text dictionary from the embedded resources.
func load() {
	state.once.Do(func() {
		state.translations = make(map[string]map[string]string)
		content, err := resources.FS.ReadFile(translationsFile)
		if err != nil {
			log.WithError(err).Errorln("cant load i18n")
			return
		}
		if err := yaml.Unmarshal(content, &state.translations); err != nil {
			log.WithError(err).Errorln("cant unmarshal i18n")
		}
	})
}

// Get returns key translated into lang; English and unknown keys pass through.
func Get(key, lang string) string {
	if lang == "" || strings.EqualFold(lang, "en") {
		return key
	}
	load()
	if res, ok := state.translations[key][strings.ToUpper(lang)]; ok && res != "" {
		return res
	}
	log.Tracef(`no translation for key "%s"`, key)
	return key
}
