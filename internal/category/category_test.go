package category

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTaxonomyLoads(t *testing.T) {
	taxonomy := Default()

	assert.Len(t, taxonomy.All(), 59)
	assert.Equal(t, "要求仕様関連", taxonomy.Groups()[0])
	assert.Equal(t, "レガシー", taxonomy.Groups()[len(taxonomy.Groups())-1])

	entry, ok := taxonomy.Lookup("WHY_HUM_003")
	require.True(t, ok)
	assert.Equal(t, "作業負荷過多", entry.DisplayName)
	assert.Equal(t, "人的要因関連", entry.Group)
}

func TestFallbacksForUnknownCode(t *testing.T) {
	taxonomy := Default()

	assert.False(t, taxonomy.Valid("WHY_XXX_999"))
	assert.Equal(t, "WHY_XXX_999", taxonomy.DisplayName("WHY_XXX_999"))
	assert.Equal(t, FallbackGroup, taxonomy.Group("WHY_XXX_999"))
}

func TestPromptListGroupsCategories(t *testing.T) {
	list := Default().PromptList()

	assert.True(t, strings.HasPrefix(list, "**要求仕様関連:**\n  WHY_REQ_001: 期待値合意不足 - "))
	assert.Contains(t, list, "\n\n**設計関連:**\n  WHY_DES_001: ")
	assert.Contains(t, list, "LEGACY_005: その他 - その他のインシデント")
}

func TestParseRejectsDuplicates(t *testing.T) {
	_, err := Parse([]byte(`
categories:
  - code: A
    group: g
  - code: A
    group: g
`))
	assert.ErrorContains(t, err, "duplicate")

	_, err = Parse([]byte(`categories: []`))
	assert.Error(t, err)
}
