package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderPicksSessionLanguage(t *testing.T) {
	content := map[string]string{
		"en": "Hello",
		"hi": "नमस्ते",
	}
	assert.Equal(t, "नमस्ते", Render(content, "hi", "en", nil))
	assert.Equal(t, "Hello", Render(content, "en", "en", nil))
}

func TestRenderFallsBackToDefaultLanguage(t *testing.T) {
	content := map[string]string{"en": "Hello"}
	assert.Equal(t, "Hello", Render(content, "mr", "en", nil))
}

func TestRenderFallsBackToFirstSortedKey(t *testing.T) {
	content := map[string]string{
		"mr": "नमस्कार",
		"hi": "नमस्ते",
	}
	// Neither session nor default language present: first key in sorted order.
	assert.Equal(t, "नमस्ते", Render(content, "en", "fr", nil))
}

func TestRenderEmptyContent(t *testing.T) {
	assert.Equal(t, "", Render(nil, "en", "en", nil))
	assert.Equal(t, "", Render(map[string]string{}, "en", "en", nil))
}

func TestInterpolateSubstitutesVariables(t *testing.T) {
	vars := map[string]any{
		"name": "Asha",
		"grievance": map[string]any{
			"ref": "GRV-1042",
		},
	}
	out := Interpolate("Hi {name}, your reference is {grievance.ref}.", vars)
	assert.Equal(t, "Hi Asha, your reference is GRV-1042.", out)
}

func TestInterpolateMissingPathRendersEmpty(t *testing.T) {
	out := Interpolate("Hello {missing} there", map[string]any{})
	assert.Equal(t, "Hello  there", out)

	out = Interpolate("Hello {missing}", nil)
	assert.Equal(t, "Hello ", out)
}

func TestInterpolateNumberFormatting(t *testing.T) {
	vars := map[string]any{
		"count": float64(4),
		"score": 4.5,
	}
	assert.Equal(t, "4 items", Interpolate("{count} items", vars))
	assert.Equal(t, "score 4.5", Interpolate("score {score}", vars))
}

func TestInterpolateLeavesMalformedPlaceholdersAlone(t *testing.T) {
	vars := map[string]any{"name": "Asha"}
	assert.Equal(t, "{ name }", Interpolate("{ name }", vars))
	assert.Equal(t, "{}", Interpolate("{}", vars))
}

func TestRenderDoesNotMutateVariables(t *testing.T) {
	vars := map[string]any{"name": "Asha"}
	Render(map[string]string{"en": "{name} and {other}"}, "en", "en", vars)
	assert.Equal(t, map[string]any{"name": "Asha"}, vars)
}
