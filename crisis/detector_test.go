package crisis

import (
	"math"
	"strings"
	"testing"
)

func newTestDetector(t *testing.T) *Detector {
	t.Helper()
	d, err := NewDefaultDetector()
	if err != nil {
		t.Fatalf("NewDefaultDetector: %v", err)
	}
	return d
}

func TestDetect_Markers(t *testing.T) {
	d := newTestDetector(t)

	tests := []struct {
		name     string
		text     string
		crisis   bool
		category string
	}{
		{"explicit intent", "もう死にたい", true, "explicit_intent"},
		{"self harm", "自分を傷つけてしまう", true, "self_harm"},
		{"method", "飛び降りることを考えてしまう", true, "method"},
		{"farewell", "今までありがとう", true, "farewell"},
		{"hopelessness", "生きるのが辛い", true, "hopelessness"},
		{"half-width katakana", "ﾘｽﾄｶｯﾄした", true, "self_harm"},
		{"spaced out", "死 に た い", true, "explicit_intent"},
		{"ordinary sadness", "今日は悲しい", false, ""},
		{"empty", "", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := d.Detect(tt.text, History{})
			if a.IsCrisis != tt.crisis {
				t.Fatalf("IsCrisis = %v, want %v", a.IsCrisis, tt.crisis)
			}
			if !tt.crisis {
				if a.Severity != 0 {
					t.Errorf("Severity = %v, want 0", a.Severity)
				}
				return
			}
			found := false
			for _, c := range a.Categories {
				if c == tt.category {
					found = true
				}
			}
			if !found {
				t.Errorf("categories %v missing %s", a.Categories, tt.category)
			}
			if a.Severity <= 0 || a.Severity > 1 {
				t.Errorf("Severity = %v out of range", a.Severity)
			}
		})
	}
}

func TestDetect_SeverityCombinesCategories(t *testing.T) {
	d := newTestDetector(t)

	single := d.Detect("生きるのが辛い", History{})
	combined := d.Detect("生きるのが辛い。遺書を書いた", History{})

	if math.Abs(single.Severity-0.4) > 1e-9 {
		t.Errorf("single severity = %v, want 0.4", single.Severity)
	}
	// 1 - (0.6 * 0.4)
	if math.Abs(combined.Severity-0.76) > 1e-9 {
		t.Errorf("combined severity = %v, want 0.76", combined.Severity)
	}
}

func TestDetect_EscalationFromHistory(t *testing.T) {
	d := newTestDetector(t)

	calm := d.Detect("生きるのが辛い", History{Negative: 1, Total: 5})
	heavy := d.Detect("生きるのが辛い", History{Negative: 4, Total: 5})

	if calm.Escalated {
		t.Errorf("1/5 negative must not escalate")
	}
	if !heavy.Escalated {
		t.Fatalf("4/5 negative must escalate")
	}
	if heavy.Severity <= calm.Severity {
		t.Errorf("escalated severity %v should exceed %v", heavy.Severity, calm.Severity)
	}

	capped := d.Detect("死にたい", History{Negative: 5, Total: 5})
	if capped.Severity != 1 {
		t.Errorf("severity must cap at 1, got %v", capped.Severity)
	}

	none := d.Detect("普通の一日", History{Negative: 5, Total: 5})
	if none.IsCrisis || none.Severity != 0 {
		t.Errorf("history alone must not flag a crisis: %+v", none)
	}
}

func TestParseLexicon_Errors(t *testing.T) {
	tests := map[string]string{
		"no version":    "categories:\n  - name: a\n    severity: 1\n    markers: [x]\n",
		"no categories": "version: \"1\"\n",
		"bad severity":  "version: \"1\"\ncategories:\n  - name: a\n    severity: 2\n    markers: [x]\n",
		"no markers":    "version: \"1\"\ncategories:\n  - name: a\n    severity: 1\n",
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := NewDetector([]byte(data)); err == nil {
				t.Errorf("expected error")
			}
		})
	}
}

func TestDirectory_EnsurePresent(t *testing.T) {
	dir, err := NewDefaultDirectory()
	if err != nil {
		t.Fatalf("NewDefaultDirectory: %v", err)
	}

	reply, appended := dir.EnsurePresent("お話を聞かせてくれてありがとう。", "ja-JP")
	if !appended {
		t.Fatalf("expected hotlines to be appended")
	}
	for _, contact := range []string{"0570-783-556", "0120-279-338", "0570-064-556"} {
		if !strings.Contains(reply, contact) {
			t.Errorf("reply missing %s", contact)
		}
	}

	again, appended := dir.EnsurePresent(reply, "ja-JP")
	if appended || again != reply {
		t.Errorf("hotlines appended twice")
	}

	fallback := dir.Lookup("xx-XX")
	if len(fallback.Entries) != 3 {
		t.Errorf("unknown locale should fall back to default, got %d entries", len(fallback.Entries))
	}
}

func TestDirectory_Merge(t *testing.T) {
	dir, err := NewDefaultDirectory()
	if err != nil {
		t.Fatalf("NewDefaultDirectory: %v", err)
	}

	merged, err := dir.Merge(map[string]LocaleHotlines{
		"en-US": {Heading: "Support", Entries: []Hotline{{Name: "988 Lifeline", Contact: "988"}}},
	})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if got := merged.Render("en-US"); !strings.Contains(got, "988 Lifeline: 988") {
		t.Errorf("Render(en-US) = %q", got)
	}
	if !strings.Contains(merged.Render("ja-JP"), "0570-783-556") {
		t.Errorf("default locale lost after merge")
	}

	if _, err := dir.Merge(map[string]LocaleHotlines{"en-US": {}}); err == nil {
		t.Errorf("expected error for empty locale")
	}
}
