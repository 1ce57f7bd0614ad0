package keyword

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenizeText(t *testing.T) {
	assert := assert.New(t)

	fixtures := []struct {
		text string
		out  []string
	}{
		{text: "", out: []string{}},
		{text: "Hello, โลก!", out: []string{"hello", "โลก"}},
		{text: "Gdańsk", out: []string{"gdansk"}},
		{text: "BUY   now!!! cheap", out: []string{"buy", "now", "cheap"}},
	}

	for _, fix := range fixtures {
		assert.Equal(fix.out, TokenizeText(fix.text))
	}
}

func TestFingerprint(t *testing.T) {
	assert := assert.New(t)

	assert.Equal(Fingerprint("Check out my café!"), Fingerprint("check OUT my   cafe"))
	assert.NotEqual(Fingerprint("check out my cafe"), Fingerprint("check out my shop"))
}

func TestSimilarity(t *testing.T) {
	assert := assert.New(t)

	assert.Equal(100.0, Similarity("", ""))
	assert.Equal(100.0, Similarity("a b c", "C, B, A"))
	assert.Equal(50.0, Similarity("a b c", "a b d"))
	assert.Equal(0.0, Similarity("a", "b"))
}

func TestNormalizeURL(t *testing.T) {
	assert := assert.New(t)

	fixtures := []struct {
		a string
		b string
	}{
		{a: "https://www.example.com/page?utm_source=x&b=2&a=1", b: "https://example.com/page?a=1&b=2"},
		{a: "https://example.com/path/#section", b: "https://example.com/path"},
		{a: "HTTPS://Example.COM//one//two", b: "https://example.com/one/two"},
	}
	for _, fix := range fixtures {
		assert.Equal(NormalizeURL(fix.b), NormalizeURL(fix.a), fix.a)
	}
	assert.Equal("", NormalizeURL("  "))

	assert.Equal("example.com", Domain("https://www.Example.com/x"))
	assert.Equal("", Domain("::not a url"))
}
