package usecase

// Fixed replies sent to users.
const (
	AskStartChat = "Hello! It's been more than 24 hours since our last conversation. Let's /start a new one."

	ChatLimitMessage = "We have reached the text limit of this conversation 🫢.\nLet's start a new one! Select /start"

	AudioFailureMessage = "Sorry, I cannot listen to your audio right now"

	SpeechFailureMessage = "Sorry, I cannot read that out loud right now"

	NothingToListen = "There is nothing to listen to yet. Send me a message first!"

	TechnicalIssueMessage = "🤖💥 There's a technical issue with Bruno at the moment. He'll be back soon 🦾"

	NoFeedbackYet = "Congrats {{NAME}}! Up until now all your messages look good 👏🥳"

	FeedbackTemplate = "Based on the messages you sent me during our last conversation 💬, here are a few suggestions to sound more natural👇."

	ChatInstructions = `👋 I'm Bruno and I'm here to help you practice your English. We can talk about any topic! Some <b>tips</b> 👇

🎙 Send me voice notes to practice your speaking.

💭 Ask me how to say something in English. <b>Example:</b> "How can I say <i>recordar</i> in English?".

🤔 Ask me if you don't understand something I said. <b>Example:</b> "What does <i>superlative</i> mean?".

🔁 Select <b>/start</b> from the menu to start a new conversation.`

	clarificationTemplate = `Sorry, I think I don't understand you. Did you say "%s"?`

	correctionPrompt = `Give me a corrected version of the following text:"%s"`

	alternativePrefix = "Alternative: "
)

// Defaults used when no lesson is stored.
const (
	DefaultSystemPrompt = "You are Bruno, an English teacher"
	DefaultStarter      = "What would you like to practice today?"
)
