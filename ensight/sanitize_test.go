package ensight

import (
	"testing"

	"github.com/go-playground/assert/v2"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestEncodeName(t *testing.T) {
	// most names pass through unchanged
	assert.Equal(t, "part", EncodeName("part"))
	assert.Equal(t, "select_begin", EncodeName("select_begin"))
	assert.Equal(t, "visible", EncodeName("visible"))

	// hash becomes the word number
	assert.Equal(t, "linewidthnumber", EncodeName("linewidth#"))
	assert.Equal(t, "anumberb", EncodeName("a#b"))
	assert.Equal(t, "number", EncodeName("#"))

	// leading digit gets a prefix
	assert.Equal(t, "_2dplot", EncodeName("2dplot"))
	assert.Equal(t, "_3number", EncodeName("3#"))

	// go keywords get a prefix
	assert.Equal(t, "_type", EncodeName("type"))
	assert.Equal(t, "_interface", EncodeName("interface"))
	assert.Equal(t, "_range", EncodeName("range"))

	// a keyword inside a longer name is untouched
	assert.Equal(t, "linetype", EncodeName("linetype"))
	assert.Equal(t, "format", EncodeName("format"))
}

func TestDecodeName(t *testing.T) {
	assert.Equal(t, "part", DecodeName("part"))
	assert.Equal(t, "linewidth#", DecodeName("linewidthnumber"))
	assert.Equal(t, "#", DecodeName("number"))
	assert.Equal(t, "2dplot", DecodeName("_2dplot"))
	assert.Equal(t, "3#", DecodeName("_3number"))
	assert.Equal(t, "type", DecodeName("_type"))

	// an underscore that is not an escape prefix stays
	assert.Equal(t, "a_b", DecodeName("a_b"))
}

func TestNameVocabulary(t *testing.T) {
	assert.Equal(t, true, IsNativeName("part"))
	assert.Equal(t, true, IsNativeName("linewidth#"))
	assert.Equal(t, true, IsNativeName("2dplot"))
	assert.Equal(t, true, IsNativeName("type"))
	// native names never start with underscore or contain the word number
	assert.Equal(t, false, IsNativeName("_part"))
	assert.Equal(t, false, IsNativeName("linenumber"))
	assert.Equal(t, false, IsNativeName(""))
	assert.Equal(t, false, IsNativeName("Part"))

	assert.Equal(t, true, IsBindingName("part"))
	assert.Equal(t, true, IsBindingName("_2dplot"))
	assert.Equal(t, true, IsBindingName("linewidthnumber"))
	// binding names never carry a hash, a leading digit, or a keyword
	assert.Equal(t, false, IsBindingName("linewidth#"))
	assert.Equal(t, false, IsBindingName("2dplot"))
	assert.Equal(t, false, IsBindingName("type"))
	assert.Equal(t, false, IsBindingName(""))
}

const nativeNameChars = "abcdefghijklmnopqrstuvwxyz0123456789_#"

func genNativeName() gopter.Gen {
	return gen.SliceOf(gen.IntRange(0, len(nativeNameChars)-1)).Map(func(indexes []int) string {
		name := make([]byte, len(indexes))
		for i, index := range indexes {
			name[i] = nativeNameChars[index]
		}
		return string(name)
	}).SuchThat(func(name string) bool {
		return IsNativeName(name)
	})
}

func TestNameRenamingProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("encode then decode is the identity", prop.ForAll(
		func(name string) bool {
			return DecodeName(EncodeName(name)) == name
		},
		genNativeName(),
	))

	properties.Property("encoded names are binding names", prop.ForAll(
		func(name string) bool {
			return IsBindingName(EncodeName(name))
		},
		genNativeName(),
	))

	properties.Property("pass-through names decode to themselves", prop.ForAll(
		func(name string) bool {
			if EncodeName(name) != name {
				return true
			}
			return DecodeName(name) == name
		},
		genNativeName(),
	))

	properties.TestingRun(t)
}
