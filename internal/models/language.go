package models

import "golang.org/x/text/language"

// Language describes an entry in the shared client/server language table.
type Language struct {
	Code             string `json:"code"`
	Name             string `json:"name"`
	NativeName       string `json:"native_name"`
	RTL              bool   `json:"rtl"`
	HasUITranslation bool   `json:"has_ui_translation"`
}

// Languages is the closed set of languages the pipeline recognizes.
// The table is shared with the client; codes are BCP 47 primary subtags.
var Languages = []Language{
	{Code: "en", Name: "English", NativeName: "English", HasUITranslation: true},
	{Code: "es", Name: "Spanish", NativeName: "Español", HasUITranslation: true},
	{Code: "fr", Name: "French", NativeName: "Français", HasUITranslation: true},
	{Code: "de", Name: "German", NativeName: "Deutsch", HasUITranslation: true},
	{Code: "it", Name: "Italian", NativeName: "Italiano"},
	{Code: "pt", Name: "Portuguese", NativeName: "Português"},
	{Code: "ru", Name: "Russian", NativeName: "Русский", HasUITranslation: true},
	{Code: "uk", Name: "Ukrainian", NativeName: "Українська"},
	{Code: "pl", Name: "Polish", NativeName: "Polski"},
	{Code: "nl", Name: "Dutch", NativeName: "Nederlands"},
	{Code: "sv", Name: "Swedish", NativeName: "Svenska"},
	{Code: "tr", Name: "Turkish", NativeName: "Türkçe"},
	{Code: "zh", Name: "Chinese", NativeName: "中文", HasUITranslation: true},
	{Code: "ja", Name: "Japanese", NativeName: "日本語"},
	{Code: "ko", Name: "Korean", NativeName: "한국어"},
	{Code: "hi", Name: "Hindi", NativeName: "हिन्दी"},
	{Code: "vi", Name: "Vietnamese", NativeName: "Tiếng Việt"},
	{Code: "id", Name: "Indonesian", NativeName: "Bahasa Indonesia"},
	{Code: "he", Name: "Hebrew", NativeName: "עברית", RTL: true, HasUITranslation: true},
	{Code: "ar", Name: "Arabic", NativeName: "العربية", RTL: true, HasUITranslation: true},
	{Code: "fa", Name: "Farsi", NativeName: "فارسی", RTL: true},
	{Code: "ur", Name: "Urdu", NativeName: "اردو", RTL: true},
}

// languageIndex maps code -> table entry for O(1) lookups.
var languageIndex = func() map[string]Language {
	idx := make(map[string]Language, len(Languages))
	for _, l := range Languages {
		idx[l.Code] = l
	}
	return idx
}()

// IsKnownLanguage returns true if the code is in the closed language set.
func IsKnownLanguage(code string) bool {
	_, ok := languageIndex[code]
	return ok
}

// IsRTL returns true if the language is written right to left.
func IsRTL(code string) bool {
	return languageIndex[code].RTL
}

// LookupLanguage returns the table entry for a code.
func LookupLanguage(code string) (Language, bool) {
	l, ok := languageIndex[code]
	return l, ok
}

// NormalizeLanguage canonicalizes a language tag to its primary subtag and
// returns it if recognized. Tags like "en-US" normalize to "en".
func NormalizeLanguage(code string) (string, bool) {
	if IsKnownLanguage(code) {
		return code, true
	}
	tag, err := language.Parse(code)
	if err != nil {
		return "", false
	}
	base, _ := tag.Base()
	if IsKnownLanguage(base.String()) {
		return base.String(), true
	}
	return "", false
}
