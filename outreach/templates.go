package outreach

import (
	"fmt"
	"hash/fnv"

	"github.com/aschepis/backscratcher/counsel/relationship"
)

var absenceTemplates = map[relationship.Phase][]string{
	relationship.PhaseStranger: {
		"お話しできる時がありましたら、いつでもどうぞ。",
		"何かあれば、気軽にご連絡ください。",
	},
	relationship.PhaseAcquaintance: {
		"最近いかがですか？",
		"お元気ですか？何かあればいつでもどうぞ。",
		"しばらく経ちましたね。調子はいかがでしょう？",
	},
	relationship.PhaseFamiliar: {
		"最近どう？元気にしてる？",
		"久しぶり！何か変わったことあった？",
		"ちょっと気になって。調子はどう？",
	},
	relationship.PhaseTrusted: {
		"久しぶりだね。元気？",
		"最近どうしてるかなって思って。",
		"連絡なかったから、ちょっと気になってた。",
	},
}

var declineTemplates = map[relationship.Phase][]string{
	relationship.PhaseStranger: {
		"最近いろいろあるようでしたら、お話しください。",
		"何かお力になれることがあれば、いつでもどうぞ。",
	},
	relationship.PhaseAcquaintance: {
		"最近いろいろあるようですね。話したいことがあればいつでもどうぞ。",
		"大変な時期が続いているようですが、少しでも力になれたら嬉しいです。",
	},
	relationship.PhaseFamiliar: {
		"最近大変そうだったから、気になってた。話したかったら聞くよ。",
		"無理しないでね。いつでも話聞くから。",
	},
	relationship.PhaseTrusted: {
		"最近つらそうだったから心配してた。話したくなったらいつでも。",
		"大丈夫？無理しないで、いつでも話そう。",
	},
}

// followUpTemplates are keyed by the advice topic stored on the episode.
var followUpTemplates = map[relationship.Phase]map[string]string{
	relationship.PhaseStranger: {
		"career":          "お仕事の件、その後いかがでしょうか？",
		"relationship":    "対人関係のこと、その後いかがですか？",
		"family":          "ご家族のこと、その後いかがでしょうか？",
		"health":          "体調はいかがですか？",
		"general_support": "前回のこと、その後いかがですか？",
	},
	relationship.PhaseAcquaintance: {
		"career":          "お仕事の件、その後どうですか？",
		"relationship":    "恋愛のこと、その後進展はありましたか？",
		"family":          "ご家族のこと、その後いかがですか？",
		"health":          "体調はいかがですか？良くなっていると嬉しいのですが。",
		"general_support": "前回お話しした件、その後どうですか？",
	},
	relationship.PhaseFamiliar: {
		"career":          "仕事の件、どうなった？",
		"relationship":    "あの人との関係、その後どう？",
		"family":          "家族のこと、落ち着いた？",
		"health":          "体調良くなった？心配してたんだ。",
		"general_support": "前に話してたこと、その後どう？",
	},
	relationship.PhaseTrusted: {
		"career":          "仕事の件、どうなったか気になってた。",
		"relationship":    "あの人とのこと、どうなった？",
		"family":          "家族のこと、大丈夫だった？",
		"health":          "体調、良くなった？ずっと気になってた。",
		"general_support": "この前のこと、その後どう？",
	},
}

const generalTopic = "general_support"

var dayMilestoneTemplates = map[relationship.Phase]map[int]string{
	relationship.PhaseStranger: {
		30:  "お話しし始めて1ヶ月ですね。いつでもお気軽にどうぞ。",
		100: "100回お話ししましたね。ありがとうございます。",
		365: "1年が経ちましたね。これからもよろしくお願いします。",
	},
	relationship.PhaseAcquaintance: {
		30:  "お話しし始めて1ヶ月ですね。いつもありがとうございます。",
		100: "100回目の会話ですね！いつも話してくれてありがとう。",
		365: "1年間のお付き合いですね。これからもよろしくお願いします。",
	},
	relationship.PhaseFamiliar: {
		30:  "1ヶ月だね！いつも話してくれてありがとう。",
		100: "100回目！すごいね、いつもありがとう。",
		365: "1年間ありがとう！これからもよろしくね。",
	},
	relationship.PhaseTrusted: {
		30:  "1ヶ月か〜。いつも話してくれて嬉しいよ。",
		100: "100回目だね！いつもありがとう、これからもよろしく。",
		365: "もう1年になるんだね。いつもありがとう。",
	},
}

func casual(phase relationship.Phase) bool {
	return phase.Rank() >= relationship.PhaseFamiliar.Rank()
}

func crisisTemplates(phase relationship.Phase) []string {
	if casual(phase) {
		return []string{
			"前回のこと心配してた。今は大丈夫？",
			"その後どう？少しでも落ち着いたかな。",
		}
	}
	return []string{
		"前回のこと、気になっていました。その後いかがですか？",
		"少しでも落ち着かれましたか？何かあればいつでもどうぞ。",
	}
}

func followUpText(phase relationship.Phase, topic string) string {
	byTopic := followUpTemplates[phase]
	if text, ok := byTopic[topic]; ok {
		return text
	}
	return byTopic[generalTopic]
}

func countMilestoneText(phase relationship.Phase, count int) string {
	if casual(phase) {
		return fmt.Sprintf("%d回目だね！いつもありがとう。", count)
	}
	return fmt.Sprintf("%d回目の会話ですね！ありがとうございます。", count)
}

// pick chooses a template deterministically per user so repeated sweeps do
// not alternate wording.
func pick(templates []string, userID string) string {
	if len(templates) == 0 {
		return ""
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return templates[h.Sum32()%uint32(len(templates))]
}
