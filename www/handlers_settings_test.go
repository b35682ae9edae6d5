package www

import (
	"bytes"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

func TestSniffContentTypeRewinds(t *testing.T) {
	r := bytes.NewReader(pngHeader)
	ct, err := sniffContentType(r)
	require.NoError(t, err)
	assert.Equal(t, "image/png", ct)
	rest, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, pngHeader, rest)

	ct, err = sniffContentType(strings.NewReader("<html><script>alert(1)</script></html>"))
	require.NoError(t, err)
	assert.Equal(t, "text/html; charset=utf-8", ct)
}

// postAvatar uploads content with a declared part Content-Type.
func postAvatar(t *testing.T, c *http.Client, u, declared string, content []byte) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", `form-data; name="avatar"; filename="me.png"`)
	hdr.Set("Content-Type", declared)
	part, err := mw.CreatePart(hdr)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := c.Post(u, mw.FormDataContentType(), &body)
	require.NoError(t, err)
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return resp
}

func TestAvatarUploadUsesSniffedType(t *testing.T) {
	srv, _ := newTestServer(t)
	c := signedIn(t, srv)

	resp := postAvatar(t, c, srv.URL+"/settings/avatar", "image/png", []byte("<html><body>not an image</body></html>"))
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	assert.Contains(t, loc.Query().Get("error"), "Avatar must be a PNG")

	// a real PNG passes the type check and reaches the disabled object store
	resp = postAvatar(t, c, srv.URL+"/settings/avatar", "text/plain", pngHeader)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	loc, err = url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "Avatar uploads are not configured", loc.Query().Get("error"))
}
