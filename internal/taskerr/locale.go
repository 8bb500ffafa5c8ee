package taskerr

import "strings"

// userMessages maps locale -> code -> user-facing message.
// Technical messages stay in the Message field and are never localized.
var userMessages = map[string]map[Code]string{
	"en": {
		CodeBadRequest:           "The request was invalid.",
		CodeUnsupportedMedia:     "This media file is not supported.",
		CodeProbeFailed:          "The media file could not be analyzed.",
		CodePayloadTooLarge:      "The uploaded file is too large.",
		CodeRateLimited:          "Too many requests. Please try again later.",
		CodeDownloadFailed:       "The video could not be downloaded.",
		CodeAudioExtractionError: "Audio could not be extracted from the video.",
		CodeTranscriptionError:   "Speech recognition failed.",
		CodeTranslationError:     "Translation failed.",
		CodeSubtitleEmitError:    "The subtitle file could not be written.",
		CodeRenderError:          "Subtitles could not be burned into the video. The subtitle files are still available.",
		CodeFormatError:          "The video could not be converted to a playable format.",
		CodeTimeoutExceeded:      "Processing took too long and was stopped.",
		CodeInfrastructure:       "An internal error occurred. Please try again later.",
	},
	"es": {
		CodeBadRequest:           "La solicitud no es válida.",
		CodeUnsupportedMedia:     "Este archivo multimedia no es compatible.",
		CodeProbeFailed:          "No se pudo analizar el archivo multimedia.",
		CodePayloadTooLarge:      "El archivo subido es demasiado grande.",
		CodeRateLimited:          "Demasiadas solicitudes. Inténtalo de nuevo más tarde.",
		CodeDownloadFailed:       "No se pudo descargar el vídeo.",
		CodeAudioExtractionError: "No se pudo extraer el audio del vídeo.",
		CodeTranscriptionError:   "El reconocimiento de voz ha fallado.",
		CodeTranslationError:     "La traducción ha fallado.",
		CodeSubtitleEmitError:    "No se pudo escribir el archivo de subtítulos.",
		CodeRenderError:          "No se pudieron incrustar los subtítulos en el vídeo. Los archivos de subtítulos siguen disponibles.",
		CodeFormatError:          "No se pudo convertir el vídeo a un formato reproducible.",
		CodeTimeoutExceeded:      "El procesamiento tardó demasiado y se detuvo.",
		CodeInfrastructure:       "Se produjo un error interno. Inténtalo de nuevo más tarde.",
	},
	"de": {
		CodeBadRequest:           "Die Anfrage war ungültig.",
		CodeUnsupportedMedia:     "Diese Mediendatei wird nicht unterstützt.",
		CodeProbeFailed:          "Die Mediendatei konnte nicht analysiert werden.",
		CodePayloadTooLarge:      "Die hochgeladene Datei ist zu groß.",
		CodeRateLimited:          "Zu viele Anfragen. Bitte später erneut versuchen.",
		CodeDownloadFailed:       "Das Video konnte nicht heruntergeladen werden.",
		CodeAudioExtractionError: "Die Tonspur konnte nicht extrahiert werden.",
		CodeTranscriptionError:   "Die Spracherkennung ist fehlgeschlagen.",
		CodeTranslationError:     "Die Übersetzung ist fehlgeschlagen.",
		CodeSubtitleEmitError:    "Die Untertiteldatei konnte nicht geschrieben werden.",
		CodeRenderError:          "Die Untertitel konnten nicht ins Video eingebrannt werden. Die Untertiteldateien sind weiterhin verfügbar.",
		CodeFormatError:          "Das Video konnte nicht in ein abspielbares Format konvertiert werden.",
		CodeTimeoutExceeded:      "Die Verarbeitung dauerte zu lange und wurde abgebrochen.",
		CodeInfrastructure:       "Ein interner Fehler ist aufgetreten. Bitte später erneut versuchen.",
	},
	"ru": {
		CodeBadRequest:           "Недопустимый запрос.",
		CodeUnsupportedMedia:     "Этот медиафайл не поддерживается.",
		CodeProbeFailed:          "Не удалось проанализировать медиафайл.",
		CodePayloadTooLarge:      "Загруженный файл слишком большой.",
		CodeRateLimited:          "Слишком много запросов. Повторите попытку позже.",
		CodeDownloadFailed:       "Не удалось скачать видео.",
		CodeAudioExtractionError: "Не удалось извлечь аудио из видео.",
		CodeTranscriptionError:   "Распознавание речи не удалось.",
		CodeTranslationError:     "Перевод не удался.",
		CodeSubtitleEmitError:    "Не удалось записать файл субтитров.",
		CodeRenderError:          "Не удалось встроить субтитры в видео. Файлы субтитров по-прежнему доступны.",
		CodeFormatError:          "Не удалось преобразовать видео в воспроизводимый формат.",
		CodeTimeoutExceeded:      "Обработка заняла слишком много времени и была остановлена.",
		CodeInfrastructure:       "Произошла внутренняя ошибка. Повторите попытку позже.",
	},
	"he": {
		CodeBadRequest:           "הבקשה אינה תקינה.",
		CodeUnsupportedMedia:     "קובץ מדיה זה אינו נתמך.",
		CodeProbeFailed:          "לא ניתן לנתח את קובץ המדיה.",
		CodePayloadTooLarge:      "הקובץ שהועלה גדול מדי.",
		CodeRateLimited:          "יותר מדי בקשות. נסו שוב מאוחר יותר.",
		CodeDownloadFailed:       "לא ניתן להוריד את הסרטון.",
		CodeAudioExtractionError: "לא ניתן לחלץ שמע מהסרטון.",
		CodeTranscriptionError:   "זיהוי הדיבור נכשל.",
		CodeTranslationError:     "התרגום נכשל.",
		CodeSubtitleEmitError:    "לא ניתן לכתוב את קובץ הכתוביות.",
		CodeRenderError:          "לא ניתן לצרוב את הכתוביות בסרטון. קובצי הכתוביות עדיין זמינים.",
		CodeFormatError:          "לא ניתן להמיר את הסרטון לפורמט שניתן לנגן.",
		CodeTimeoutExceeded:      "העיבוד ארך זמן רב מדי והופסק.",
		CodeInfrastructure:       "אירעה שגיאה פנימית. נסו שוב מאוחר יותר.",
	},
	"ar": {
		CodeBadRequest:           "الطلب غير صالح.",
		CodeUnsupportedMedia:     "ملف الوسائط هذا غير مدعوم.",
		CodeProbeFailed:          "تعذر تحليل ملف الوسائط.",
		CodePayloadTooLarge:      "الملف الذي تم رفعه كبير جدًا.",
		CodeRateLimited:          "طلبات كثيرة جدًا. حاول مرة أخرى لاحقًا.",
		CodeDownloadFailed:       "تعذر تنزيل الفيديو.",
		CodeAudioExtractionError: "تعذر استخراج الصوت من الفيديو.",
		CodeTranscriptionError:   "فشل التعرف على الكلام.",
		CodeTranslationError:     "فشلت الترجمة.",
		CodeSubtitleEmitError:    "تعذر كتابة ملف الترجمة.",
		CodeRenderError:          "تعذر دمج الترجمة في الفيديو. ملفات الترجمة لا تزال متاحة.",
		CodeFormatError:          "تعذر تحويل الفيديو إلى صيغة قابلة للتشغيل.",
		CodeTimeoutExceeded:      "استغرقت المعالجة وقتًا طويلاً وتم إيقافها.",
		CodeInfrastructure:       "حدث خطأ داخلي. حاول مرة أخرى لاحقًا.",
	},
}

// DefaultLocale is used when no Accept-Language preference matches.
const DefaultLocale = "en"

// UserMessage returns the localized user-facing message for a code.
// Falls back to the default locale for unknown locales or missing entries.
func UserMessage(code Code, locale string) string {
	if msgs, ok := userMessages[normalizeLocale(locale)]; ok {
		if msg, ok := msgs[code]; ok {
			return msg
		}
	}
	return userMessages[DefaultLocale][code]
}

// SupportedLocales returns the locales with user-message tables.
func SupportedLocales() []string {
	locales := make([]string, 0, len(userMessages))
	for l := range userMessages {
		locales = append(locales, l)
	}
	return locales
}

// NegotiateLocale picks the first supported locale from an Accept-Language
// header value, or the default locale.
func NegotiateLocale(acceptLanguage string) string {
	for _, part := range strings.Split(acceptLanguage, ",") {
		lang := strings.TrimSpace(strings.SplitN(part, ";", 2)[0])
		if lang == "" {
			continue
		}
		if _, ok := userMessages[normalizeLocale(lang)]; ok {
			return normalizeLocale(lang)
		}
	}
	return DefaultLocale
}

// normalizeLocale reduces a tag like "en-US" to its primary subtag.
func normalizeLocale(locale string) string {
	locale = strings.ToLower(strings.TrimSpace(locale))
	if i := strings.IndexAny(locale, "-_"); i > 0 {
		locale = locale[:i]
	}
	return locale
}
