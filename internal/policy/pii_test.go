package policy

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDetectProhibitedInfoFindsEachType(t *testing.T) {
	text := "田中太郎さんが yamada@example.co.jp と 03-1234-5678 に連絡し、サンプル株式会社へ報告した。"

	got := DetectProhibitedInfo(text)
	want := []Replacement{
		{Original: "yamada@example.co.jp", Suggested: "[メールアドレス]", Type: TypeEmail},
		{Original: "03-1234-5678", Suggested: "[電話番号]", Type: TypePhone},
		{Original: "田中太郎さん", Suggested: "[個人名]", Type: TypeName},
		{Original: "サンプル株式会社", Suggested: "[会社名]", Type: TypeCompany},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected matches (-want +got):\n%s", diff)
	}
}

func TestDetectProhibitedInfoSkipsBusinessTerms(t *testing.T) {
	got := DetectProhibitedInfo("山田課長様と中村開発担当さんに確認した。")
	for _, match := range got {
		if match.Type == TypeName {
			t.Fatalf("expected business titles to be skipped, got %+v", match)
		}
	}
}

func TestDetectProhibitedInfoPhoneWithoutHyphens(t *testing.T) {
	got := DetectProhibitedInfo("携帯 09012345678 まで")
	if len(got) != 1 || got[0].Type != TypePhone || got[0].Original != "09012345678" {
		t.Fatalf("expected one phone match, got %+v", got)
	}
}

func TestDetectProhibitedInfoEnglishCompanySuffix(t *testing.T) {
	got := DetectProhibitedInfo("Escalated to Acme Corp. yesterday")
	if len(got) != 1 || got[0].Original != "Acme Corp." {
		t.Fatalf("expected company match, got %+v", got)
	}
}

func TestDetectProhibitedInfoCleanText(t *testing.T) {
	got := DetectProhibitedInfo("手順書の更新漏れでデプロイに失敗した。")
	if len(got) != 0 {
		t.Fatalf("expected no matches, got %+v", got)
	}
	if got == nil {
		t.Fatalf("expected empty slice, not nil")
	}
}

func TestMaskString(t *testing.T) {
	masked := MaskString("連絡先は sato@example.com / 090-1234-5678 です")
	if masked != "連絡先は [メールアドレス] / [電話番号] です" {
		t.Fatalf("unexpected masked value %q", masked)
	}
}

func TestMaskJSONMasksNestedStrings(t *testing.T) {
	payload := json.RawMessage(`{"body":"user@example.com","tags":["03-1111-2222"],"count":2}`)
	raw := string(MaskJSON(payload))

	if strings.Contains(raw, "user@example.com") || strings.Contains(raw, "03-1111-2222") {
		t.Fatalf("expected values to be masked, got %s", raw)
	}
	if !strings.Contains(raw, `"count":2`) {
		t.Fatalf("expected non-string values to survive, got %s", raw)
	}
}
