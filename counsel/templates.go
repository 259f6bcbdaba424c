package counsel

// FallbackText is returned when generation fails after its retry.
const FallbackText = "申し訳ありません。今少し調子が悪いようです。" +
	"時間を置いてもう一度お試しいただくか、信頼できる方に直接相談することをお勧めします。" +
	"あなたは一人ではありません。"

// SafetyText opens the reply for a crisis turn when the provider is skipped.
// The hotline block is appended after it.
const SafetyText = "お話ししてくださってありがとうございます。" +
	"今とてもつらい状況にいらっしゃるのですね。" +
	"あなたの安全が何よりも大切です。" +
	"一人で抱え込まず、下記の窓口に今すぐ連絡してみてください。"

// Warning messages returned in Response.Warnings.
const (
	WarnGenerationFailed = "generation failed; a fallback reply was returned and nothing was saved"
	WarnStateNotSaved    = "relationship state was not saved"
	WarnEpisodeNotSaved  = "episode was not recorded"
	WarnSessionNotSaved  = "session was not saved"
)
