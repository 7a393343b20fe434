package formfill

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KalaHanok/webclassification/internal/fingerprint"
)

const pageWithForms = `<html>
<body>
	<form action="/login" method="POST">
		<input type="text" name="username">
	</form>
	<form action="/contact" method="POST">
		<textarea name="message"></textarea>
	</form>
	<p>No form here</p>
</body>
</html>`

func testFingerprint(t *testing.T) fingerprint.Fingerprint {
	t.Helper()
	raw, err := json.Marshal(map[string]string{"userAgent": "test", "platform": "linux/amd64"})
	require.NoError(t, err)
	return fingerprint.Fingerprint{Raw: raw, Hash: "deadbeef"}
}

func TestInjectAddsFieldsToEveryForm(t *testing.T) {
	out, err := InjectHTML(pageWithForms, testFingerprint(t), fingerprint.Screen{Width: 1920, Height: 1080})
	require.NoError(t, err)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(out))
	require.NoError(t, err)

	hashFields := doc.Find(`form input[name="device_hash"]`)
	dataFields := doc.Find(`form input[name="device_data"]`)
	assert.Equal(t, 2, hashFields.Length(), "every form gets a device_hash field")
	assert.Equal(t, 2, dataFields.Length(), "every form gets a device_data field")

	hashFields.Each(func(_ int, s *goquery.Selection) {
		assert.Equal(t, "deadbeef", s.AttrOr("value", ""))
		assert.Equal(t, "hidden", s.AttrOr("type", ""))
	})

	var decoded map[string]string
	require.NoError(t, json.Unmarshal([]byte(dataFields.First().AttrOr("value", "")), &decoded))
	assert.Equal(t, "test", decoded["userAgent"])
}

func TestInjectAddsScreenFields(t *testing.T) {
	out, err := InjectHTML(pageWithForms, testFingerprint(t), fingerprint.Screen{Width: 1920, Height: 1080})
	require.NoError(t, err)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(out))
	require.NoError(t, err)

	assert.Equal(t, "1920", doc.Find(`body > input[name="screen_width"]`).AttrOr("value", ""))
	assert.Equal(t, "1080", doc.Find(`body > input[name="screen_height"]`).AttrOr("value", ""))
}

func TestInjectPageWithoutForms(t *testing.T) {
	out, err := InjectHTML(`<html><body><p>plain</p></body></html>`, testFingerprint(t), fingerprint.Screen{Width: 800, Height: 600})
	require.NoError(t, err)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(out))
	require.NoError(t, err)

	assert.Equal(t, 0, doc.Find(`input[name="device_hash"]`).Length())
	assert.Equal(t, 1, doc.Find(`input[name="screen_width"]`).Length())
}

func TestInjectEscapesSignalData(t *testing.T) {
	raw, err := json.Marshal(map[string]string{"userAgent": `"quoted" <tag>`})
	require.NoError(t, err)
	fp := fingerprint.Fingerprint{Raw: raw, Hash: "cafe"}

	out, err := InjectHTML(pageWithForms, fp, fingerprint.Screen{Width: 1, Height: 1})
	require.NoError(t, err)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(out))
	require.NoError(t, err)

	value := doc.Find(`input[name="device_data"]`).First().AttrOr("value", "")
	var decoded map[string]string
	require.NoError(t, json.Unmarshal([]byte(value), &decoded))
	assert.Equal(t, `"quoted" <tag>`, decoded["userAgent"])
}
