package analysis

import "vocabot/internal/domain"

// Prompt templates per analysis depth. The catalog is a fixed mapping;
// depths are never configured or loaded from data. Summaries are produced
// in French (the bot's audience), prompts in English for precision.

const summaryFormat = `Format your response EXACTLY like this (keep the structure):

RESUME :
(One sentence synthesis of the entire message)

POINTS CLES :
- Point 1
- Point 2
- Point 3

ACTIONS :
- Action item 1
(Skip this section if no action items)`

var templates = map[domain.AnalysisDepth]string{
	domain.DepthTranscript: `Transcribe this voice note verbatim, in its original language.
Output only the transcription, no commentary.`,

	domain.DepthBrief: `Analyze this voice note.
Create a short, high-quality summary in FRENCH: two or three sentences capturing the essence of the message, followed by action items if any.`,

	domain.DepthFull: `Analyze this voice note.
First transcribe it, then create a high-quality summary in FRENCH.
` + summaryFormat,

	domain.DepthDetails: `Analyze this voice note in depth.
Create a detailed breakdown in FRENCH.
If the audio is longer than one minute, provide a minute-by-minute timeline.
Extract every key takeaway and every action item.

Format your response EXACTLY like this (keep the structure):

RESUME :
(One sentence synthesis of the entire message)

CHRONOLOGIE :
[0:00 - 1:00] : ...
[1:00 - 2:00] : ...
(Skip this section if audio is less than 1 minute)

POINTS CLES :
- Point 1
- Point 2
- Point 3

ACTIONS :
- Action item 1
- Action item 2
(Skip this section if no action items)`,

	domain.DepthActions: `Listen to this voice note and extract ONLY the action items, in FRENCH.
One line per action, imperative form. If there are none, answer exactly: "Aucune action."`,

	domain.DepthTranslate: `Transcribe this voice note and translate the transcription into FRENCH.
Output only the translation.`,

	domain.DepthDescribe: `Describe this image in FRENCH: what it shows, any visible text, and anything notable. Three sentences maximum.`,

	domain.DepthContact: `This image shows a business card or contact details.
Extract the contact fields and answer with one field per line, exactly in this form (omit lines you cannot fill):

Name: ...
Company: ...
Phone: ...
Email: ...
Address: ...
Website: ...`,
}

// Template returns the prompt for a depth and whether the depth is known.
func Template(depth domain.AnalysisDepth) (string, bool) {
	t, ok := templates[depth]
	return t, ok
}
