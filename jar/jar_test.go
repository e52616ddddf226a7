package jar

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/artificer/artifact"
	"github.com/c360studio/artificer/metrics"
)

// teetimeFiles mirrors the layout of the sample web service jar.
var teetimeFiles = []string{
	"META-INF/MANIFEST.MF",
	"META-INF/maven/com.redhat.ewittman/sample-web-service/pom.properties",
	"META-INF/maven/com.redhat.ewittman/sample-web-service/pom.xml",
	"com/redhat/ewittman/teetime/_2012/_09/wsdl/teetime_wsdl/TeeTimePortType.class",
	"com/redhat/ewittman/teetime/_2012/_09/wsdl/teetime_wsdl/TeeTimeService.class",
	"com/redhat/ewittman/teetime/_2012/_09/wsdl/teetime_wsdl/ObjectFactory.class",
	"com/redhat/ewittman/teetime/_2012/_09/wsdl/teetime_wsdl/package-info.class",
	"com/redhat/ewittman/teetime/_2012/_09/teetime/ObjectFactory.class",
	"com/redhat/ewittman/teetime/_2012/_09/teetime/TeeTimeRequest.class",
	"com/redhat/ewittman/teetime/_2012/_09/teetime/TeeTimeResponse.class",
	"com/redhat/ewittman/teetime/_2012/_09/teetime/package-info.class",
	"com/redhat/ewittman/teetime/TeeTimeImpl.class",
	"com/redhat/ewittman/teetime/TeeTimeApplication.class",
	"log4j.properties",
	"schema/teetime.xsd",
	"wsdl/teetime.wsdl",
}

func content(name string) []byte {
	switch filepath.Ext(name) {
	case ".xsd":
		return []byte(`<?xml version="1.0"?><xsd:schema xmlns:xsd="http://www.w3.org/2001/XMLSchema"/>`)
	case ".wsdl":
		return []byte(`<?xml version="1.0"?><wsdl:definitions xmlns:wsdl="http://schemas.xmlsoap.org/wsdl/"/>`)
	case ".xml":
		return []byte(`<?xml version="1.0"?><project/>`)
	case ".class":
		return []byte{0xCA, 0xFE, 0xBA, 0xBE, 0x00, 0x00, 0x00, 0x34}
	default:
		return []byte("key=" + name + "\n")
	}
}

func writeJar(t *testing.T, name string, files []string) string {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, f := range files {
		w, err := zw.Create(f)
		require.NoError(t, err)
		_, err = w.Write(content(f))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())

	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, buf.Bytes(), 0o644))
	return p
}

func convert(t *testing.T, file string, opts ...Option) map[string]*artifact.Artifact {
	t.Helper()
	c, err := NewConverter(file, append([]Option{WithBaseDir(t.TempDir())}, opts...)...)
	require.NoError(t, err)
	defer c.CloseQuietly()

	out, err := c.Convert(context.Background())
	require.NoError(t, err)
	defer out.CloseQuietly()

	entries, err := out.Entries()
	require.NoError(t, err)

	got := make(map[string]*artifact.Artifact, len(entries))
	for _, e := range entries {
		meta, err := e.Metadata()
		require.NoError(t, err)
		got[e.Path] = meta

		r, err := out.Content(e)
		require.NoError(t, err)
		data, err := io.ReadAll(r)
		require.NoError(t, r.Close())
		require.NoError(t, err)
		assert.Equal(t, content(e.Path), data, e.Path)
	}
	return got
}

func TestConvertDefaultFilter(t *testing.T) {
	jar := writeJar(t, "teetime.jar", teetimeFiles)

	got := convert(t, jar)

	require.Len(t, got, 2)
	xsd := got["schema/teetime.xsd"]
	require.NotNil(t, xsd)
	assert.Equal(t, artifact.XSDDocument, xsd.Type.Base)
	assert.Equal(t, "teetime.xsd", xsd.Name)
	assert.NotEmpty(t, xsd.UUID)
	assert.Equal(t, artifact.MimeXML, xsd.ContentType)

	wsdl := got["wsdl/teetime.wsdl"]
	require.NotNil(t, wsdl)
	assert.Equal(t, artifact.WSDLDocument, wsdl.Type.Base)
	assert.NotEmpty(t, wsdl.UUID)
	assert.NotEqual(t, xsd.UUID, wsdl.UUID)
}

func TestConvertAcceptAll(t *testing.T) {
	jar := writeJar(t, "teetime.jar", teetimeFiles)

	got := convert(t, jar, WithFilter(AcceptAll))

	require.Len(t, got, 16)
	for _, f := range teetimeFiles {
		assert.Contains(t, got, f)
	}
	assert.Equal(t, artifact.Document, got["log4j.properties"].Type.Base)
	assert.Equal(t, artifact.XMLDocument, got["META-INF/maven/com.redhat.ewittman/sample-web-service/pom.xml"].Type.Base)
}

func TestConvertFromReader(t *testing.T) {
	jar := writeJar(t, "teetime.jar", teetimeFiles)
	data, err := os.ReadFile(jar)
	require.NoError(t, err)

	base := t.TempDir()
	c, err := NewConverterFromReader(bytes.NewReader(data), WithBaseDir(base))
	require.NoError(t, err)

	candidates, err := c.Candidates()
	require.NoError(t, err)
	assert.Len(t, candidates, 16)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	left, err := os.ReadDir(base)
	require.NoError(t, err)
	assert.Empty(t, left)

	_, err = c.Candidates()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestConverterBadInputCleansUp(t *testing.T) {
	base := t.TempDir()
	_, err := NewConverterFromReader(bytes.NewReader([]byte("not a zip")), WithBaseDir(base))
	require.Error(t, err)

	left, err := os.ReadDir(base)
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestFilterErrorPropagates(t *testing.T) {
	jar := writeJar(t, "teetime.jar", teetimeFiles)
	boom := errors.New("boom")

	c, err := NewConverter(jar, WithBaseDir(t.TempDir()), WithFilter(FilterFunc(func(*Context, CandidateArtifact) (bool, error) {
		return false, boom
	})))
	require.NoError(t, err)
	defer c.CloseQuietly()

	_, err = c.Convert(context.Background())
	assert.Same(t, boom, err)
}

func TestFactoryErrorPropagates(t *testing.T) {
	jar := writeJar(t, "teetime.jar", teetimeFiles)
	boom := errors.New("boom")

	c, err := NewConverter(jar, WithBaseDir(t.TempDir()), WithMetaDataFactory(MetaDataFactoryFunc(
		func(*Context, *DiscoveredArtifact) (*artifact.Artifact, error) {
			return nil, boom
		})))
	require.NoError(t, err)
	defer c.CloseQuietly()

	_, err = c.Convert(context.Background())
	assert.Same(t, boom, err)
}

func TestContextSharedWithinConversion(t *testing.T) {
	jar := writeJar(t, "teetime.jar", teetimeFiles)

	var contexts []*Context
	filter := FilterFunc(func(ctx *Context, c CandidateArtifact) (bool, error) {
		if !ctx.Has("seen") {
			ctx.Set("seen", 0)
			contexts = append(contexts, ctx)
		}
		n, _ := ctx.Get("seen")
		ctx.Set("seen", n.(int)+1)
		return c.Extension() == "wsdl", nil
	})
	factory := MetaDataFactoryFunc(func(ctx *Context, d *DiscoveredArtifact) (*artifact.Artifact, error) {
		n, _ := ctx.Get("seen")
		assert.Equal(t, 16, n)
		assert.NotEmpty(t, ctx.WorkDir())
		assert.Len(t, ctx.Candidates(), 16)
		assert.True(t, ctx.HasEntry("schema/teetime.xsd"))
		return DefaultMetaDataFactory{}.CreateMetaData(ctx, d)
	})

	c, err := NewConverter(jar, WithBaseDir(t.TempDir()), WithFilter(filter), WithMetaDataFactory(factory))
	require.NoError(t, err)
	defer c.CloseQuietly()

	for range 2 {
		out, err := c.Convert(context.Background())
		require.NoError(t, err)
		out.CloseQuietly()
	}
	require.Len(t, contexts, 2)
	assert.NotSame(t, contexts[0], contexts[1])
}

func TestFactorySeesCompleteFilterState(t *testing.T) {
	jar := writeJar(t, "teetime.jar", teetimeFiles)

	filter := FilterFunc(func(ctx *Context, c CandidateArtifact) (bool, error) {
		n, _ := ctx.Get("accepted")
		count, _ := n.(int)
		ctx.Set("accepted", count+1)
		return true, nil
	})
	var seen []int
	factory := MetaDataFactoryFunc(func(ctx *Context, d *DiscoveredArtifact) (*artifact.Artifact, error) {
		n, _ := ctx.Get("accepted")
		seen = append(seen, n.(int))
		return DefaultMetaDataFactory{}.CreateMetaData(ctx, d)
	})

	got := convert(t, jar, WithFilter(filter), WithMetaDataFactory(factory))
	require.Len(t, got, len(teetimeFiles))
	require.Len(t, seen, len(teetimeFiles))
	for _, n := range seen {
		assert.Equal(t, len(teetimeFiles), n)
	}
}

func TestConvertCancelled(t *testing.T) {
	jar := writeJar(t, "teetime.jar", teetimeFiles)
	c, err := NewConverter(jar, WithBaseDir(t.TempDir()))
	require.NoError(t, err)
	defer c.CloseQuietly()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Convert(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDefaultFilter(t *testing.T) {
	f, err := NewDefaultFilter(nil, nil)
	require.NoError(t, err)

	tests := []struct {
		path string
		want bool
	}{
		{"schema/teetime.xsd", true},
		{"wsdl/teetime.wsdl", true},
		{"policy/p.wspolicy", true},
		{"config/beans.XML", true},
		{"pom.xml", false},
		{"META-INF/maven/g/a/pom.xml", false},
		{"com/acme/Foo.class", false},
		{"log4j.properties", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			ok, err := f.Accepts(nil, CandidateArtifact{Path: tt.path})
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}

	_, err = NewDefaultFilter(nil, []string{"[a-"})
	assert.Error(t, err)
}

func TestDetectArchiveType(t *testing.T) {
	tests := []struct {
		name  string
		file  string
		files []string
		want  string
	}{
		{"switchyard", "app.jar", []string{"META-INF/switchyard.xml", "a.xsd"}, TypeSwitchYardApplication},
		{"kie", "rules.jar", []string{"META-INF/kmodule.xml"}, TypeKieJarArchive},
		{"vdb", "model.vdb", []string{"META-INF/vdb.xml"}, TypeTeiidVdb},
		{"war by marker", "app.zip", []string{"WEB-INF/web.xml"}, TypeJavaWebApplication},
		{"war by marker case", "app.zip", []string{"web-inf/WEB.xml"}, TypeJavaWebApplication},
		{"war by extension", "app.war", []string{"index.html"}, TypeJavaWebApplication},
		{"ear", "app.ear", []string{"lib/a.jar"}, TypeJavaEnterpriseApplication},
		{"jar", "lib.jar", []string{"a/B.class"}, TypeJavaArchive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DetectArchiveType(writeJar(t, tt.file, tt.files))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := DetectArchiveType(writeJar(t, "data.zip", []string{"a.txt"}))
	assert.ErrorIs(t, err, ErrUnknownArchiveType)
}

func TestExpanderConvert(t *testing.T) {
	war := writeJar(t, "app.war", []string{
		"WEB-INF/web.xml",
		"WEB-INF/classes/com/acme/Echo.class",
		"WEB-INF/wsdl/echo.wsdl",
		"index.html",
	})
	archiveType, err := DetectArchiveType(war)
	require.NoError(t, err)
	e, ok := ExpanderFor(archiveType)
	require.True(t, ok)

	got := convert(t, war, WithExpander(e), WithMetrics(metrics.New(nil)))

	require.Len(t, got, 2)
	web := got["WEB-INF/web.xml"]
	require.NotNil(t, web)
	assert.Equal(t, artifact.ExtendedDocument, web.Type.Base)
	assert.Equal(t, "WebXmlDocument", web.Type.ExtendedType)
	assert.Equal(t, artifact.MimeXML, web.ContentType)
	assert.Equal(t, artifact.WSDLDocument, got["WEB-INF/wsdl/echo.wsdl"].Type.Base)
}

func TestCandidateArtifact(t *testing.T) {
	c := CandidateArtifact{Path: "a/b/Teetime.WSDL"}
	assert.Equal(t, "Teetime.WSDL", c.Name())
	assert.Equal(t, "wsdl", c.Extension())
	assert.Equal(t, "", CandidateArtifact{Path: "README"}.Extension())
}

func TestDefaultMetaDataFactorySniffs(t *testing.T) {
	jar := writeJar(t, "teetime.jar", teetimeFiles)
	got := convert(t, jar, WithFilter(AcceptAll))

	class := got["com/redhat/ewittman/teetime/TeeTimeImpl.class"]
	require.NotNil(t, class)
	assert.Equal(t, artifact.Document, class.Type.Base)
	assert.Equal(t, int64(8), class.ContentSize)
	assert.NotEmpty(t, class.ContentType)
}
