package policy

import (
	"encoding/json"
	"regexp"
	"strings"
)

const (
	TypeEmail   = "email"
	TypePhone   = "phone"
	TypeName    = "name"
	TypeCompany = "company"
)

// Replacement is one detected fragment and the placeholder suggested for it.
type Replacement struct {
	Original  string `json:"original"`
	Suggested string `json:"suggested"`
	Type      string `json:"type"`
}

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern = regexp.MustCompile(`(?:\d{2,4}-\d{2,4}-\d{4}|\d{10,11})`)
	namePattern  = regexp.MustCompile(
		`[田中佐藤鈴木高橋渡辺伊藤山本中村小林加藤吉田山田松本井上木村林斎藤清水山口池田阿部橋本山下森川石川前田藤井岡田長谷川村上近藤石田後藤坂本遠藤青木藤原太田安田岡本奥田][一-龯]{1,3}(?:さん|くん|ちゃん|氏|様)`,
	)
	companyPattern = regexp.MustCompile(
		`(?:株式会社|有限会社|合同会社|合資会社|合名会社)\s*[ァ-ヶー一-龯A-Za-z0-9]+|[ァ-ヶー一-龯A-Za-z0-9]+\s*(?:株式会社|有限会社|合同会社|合資会社|合名会社|Inc\.|Corp\.|Ltd\.)`,
	)
	honorificSuffix = regexp.MustCompile(`(?:さん|くん|ちゃん|氏|様)$`)
)

var placeholders = map[string]string{
	TypeEmail:   "[メールアドレス]",
	TypePhone:   "[電話番号]",
	TypeName:    "[個人名]",
	TypeCompany: "[会社名]",
}

// businessTerms look like names to namePattern but are job titles or
// departments.
var businessTerms = []string{
	"管理", "運用", "開発", "設計", "企画", "営業", "経理", "総務", "人事", "法務",
	"システム", "サービス", "プロジェクト", "チーム", "グループ", "部門",
	"課長", "部長", "主任", "係長", "マネージャー", "リーダー", "担当", "責任者",
}

// DetectProhibitedInfo lists personal or company identifiers found in text,
// grouped by type in the order email, phone, name, company.
func DetectProhibitedInfo(text string) []Replacement {
	matches := make([]Replacement, 0)
	appendAll := func(kind string, found []string) {
		for _, value := range found {
			matches = append(matches, Replacement{Original: value, Suggested: placeholders[kind], Type: kind})
		}
	}

	appendAll(TypeEmail, emailPattern.FindAllString(text, -1))
	appendAll(TypePhone, phonePattern.FindAllString(text, -1))

	names := make([]string, 0)
	for _, candidate := range namePattern.FindAllString(text, -1) {
		if !isBusinessTerm(honorificSuffix.ReplaceAllString(candidate, "")) {
			names = append(names, candidate)
		}
	}
	appendAll(TypeName, names)
	appendAll(TypeCompany, companyPattern.FindAllString(text, -1))
	return matches
}

func isBusinessTerm(value string) bool {
	for _, term := range businessTerms {
		if strings.Contains(value, term) {
			return true
		}
	}
	return false
}

// ApplyReplacements substitutes every detected fragment with its placeholder.
// Longer originals are replaced first so overlapping fragments stay intact.
func ApplyReplacements(text string, replacements []Replacement) string {
	ordered := append([]Replacement(nil), replacements...)
	for i := 1; i < len(ordered); i++ {
		for j := i; j > 0 && len(ordered[j].Original) > len(ordered[j-1].Original); j-- {
			ordered[j], ordered[j-1] = ordered[j-1], ordered[j]
		}
	}
	for _, replacement := range ordered {
		if replacement.Original == "" {
			continue
		}
		text = strings.ReplaceAll(text, replacement.Original, replacement.Suggested)
	}
	return text
}

func MaskString(value string) string {
	return ApplyReplacements(value, DetectProhibitedInfo(value))
}

// MaskJSON masks every string value of a JSON document. Invalid JSON is
// masked as plain text.
func MaskJSON(payload json.RawMessage) json.RawMessage {
	if strings.TrimSpace(string(payload)) == "" {
		return append(json.RawMessage(nil), payload...)
	}

	var decoded any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return json.RawMessage(MaskString(string(payload)))
	}
	encoded, err := json.Marshal(maskValue(decoded))
	if err != nil {
		return append(json.RawMessage(nil), payload...)
	}
	return encoded
}

func maskValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		cloned := make(map[string]any, len(typed))
		for key, child := range typed {
			cloned[key] = maskValue(child)
		}
		return cloned
	case []any:
		cloned := make([]any, 0, len(typed))
		for _, child := range typed {
			cloned = append(cloned, maskValue(child))
		}
		return cloned
	case string:
		return MaskString(typed)
	default:
		return value
	}
}
