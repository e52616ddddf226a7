package jar

import (
	"fmt"
	"io"

	"github.com/gabriel-vasile/mimetype"

	"github.com/c360studio/artificer/artifact"
)

// MetaDataFactory creates the metadata for an accepted artifact.
type MetaDataFactory interface {
	CreateMetaData(ctx *Context, d *DiscoveredArtifact) (*artifact.Artifact, error)
}

// MetaDataFactoryFunc adapts a function to the MetaDataFactory interface.
type MetaDataFactoryFunc func(ctx *Context, d *DiscoveredArtifact) (*artifact.Artifact, error)

func (f MetaDataFactoryFunc) CreateMetaData(ctx *Context, d *DiscoveredArtifact) (*artifact.Artifact, error) {
	return f(ctx, d)
}

// sniffLen is how much content is read to detect a content type.
const sniffLen = 3072

// DefaultMetaDataFactory types artifacts by file extension, names them
// after the file and gives each a fresh UUID.
type DefaultMetaDataFactory struct{}

// CreateMetaData implements MetaDataFactory.
func (DefaultMetaDataFactory) CreateMetaData(_ *Context, d *DiscoveredArtifact) (*artifact.Artifact, error) {
	a := artifact.New(artifact.TypeForExtension(d.Extension()))
	a.Name = d.Name()
	a.ContentSize = d.Size

	contentType, err := detectContentType(d, a.Type)
	if err != nil {
		return nil, err
	}
	a.ContentType = contentType
	return a, nil
}

// detectContentType sniffs binary documents. XML types always get the XML
// media type so that text/xml and application/xml sniffing results agree.
func detectContentType(d *DiscoveredArtifact, t artifact.ArtifactType) (string, error) {
	if t.MimeType() == artifact.MimeXML {
		return artifact.MimeXML, nil
	}
	r, err := d.Open()
	if err != nil {
		return "", fmt.Errorf("open %s: %w", d.Path, err)
	}
	defer r.Close()

	buf := make([]byte, sniffLen)
	n, err := io.ReadFull(r, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", fmt.Errorf("read %s: %w", d.Path, err)
	}
	return mimetype.Detect(buf[:n]).String(), nil
}
