package engine

// Built-in engine strings, keyed by message then language. Documents carry
// their own content; these cover the engine's own guidance and failure
// messages so a citizen never sees a raw error code.
var builtinText = map[string]map[string]string{
	"choose_option": {
		"en": "Please choose one of the options below.",
		"hi": "कृपया नीचे दिए गए विकल्पों में से एक चुनें।",
		"mr": "कृपया खालील पर्यायांपैकी एक निवडा.",
	},
	"not_understood": {
		"en": "Sorry, I didn't understand that. Type \"hi\" to get started.",
		"hi": "क्षमा करें, मैं समझ नहीं पाया। शुरू करने के लिए \"hi\" लिखें।",
		"mr": "क्षमस्व, मला ते समजले नाही. सुरू करण्यासाठी \"hi\" टाइप करा.",
	},
	"session_expired": {
		"en": "Your session has expired. Type \"hi\" to start again.",
		"hi": "आपका सत्र समाप्त हो गया है। फिर से शुरू करने के लिए \"hi\" लिखें।",
		"mr": "तुमचे सत्र संपले आहे. पुन्हा सुरू करण्यासाठी \"hi\" टाइप करा.",
	},
	"error_fallback": {
		"en": "We encountered an error. Please try again later.",
		"hi": "कुछ गड़बड़ हो गई। कृपया बाद में पुनः प्रयास करें।",
		"mr": "काहीतरी चूक झाली. कृपया नंतर पुन्हा प्रयत्न करा.",
	},
	"too_many_retries": {
		"en": "We couldn't process your response. Please start over by typing \"hi\".",
		"hi": "हम आपका उत्तर समझ नहीं पाए। कृपया \"hi\" लिखकर फिर से शुरू करें।",
		"mr": "आम्ही तुमचे उत्तर समजू शकलो नाही. कृपया \"hi\" टाइप करून पुन्हा सुरुवात करा.",
	},
}

// builtin returns an engine string in the requested language, falling back
// to English.
func builtin(key, language string) string {
	msgs, ok := builtinText[key]
	if !ok {
		return ""
	}
	if t, ok := msgs[language]; ok {
		return t
	}
	return msgs["en"]
}
