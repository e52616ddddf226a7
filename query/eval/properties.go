package eval

import (
	"strconv"
	"time"

	"github.com/c360studio/artificer/artifact"
	"github.com/c360studio/artificer/query"
)

// coreProperty returns one of the built-in artifact attributes by name.
// Empty attributes are reported as absent.
func coreProperty(a *artifact.Artifact, name string) (string, bool, bool) {
	var v string
	switch name {
	case "uuid":
		v = a.UUID
	case "name":
		v = a.Name
	case "description":
		v = a.Description
	case "version":
		v = a.Version
	case "createdBy":
		v = a.CreatedBy
	case "lastModifiedBy":
		v = a.LastModifiedBy
	case "createdTimestamp":
		v = formatTimestamp(a.CreatedTimestamp)
	case "lastModifiedTimestamp":
		v = formatTimestamp(a.LastModifiedTimestamp)
	case "contentType":
		v = a.ContentType
	case "contentSize":
		if a.ContentSize > 0 {
			v = strconv.FormatInt(a.ContentSize, 10)
		}
	case "contentEncoding":
		v = a.ContentEncoding
	case "artifactType":
		v = a.Type.Type()
	case "artifactModel":
		v = a.Type.Model()
	case "extendedType":
		v = a.Type.ExtendedType
	case "derived":
		v = strconv.FormatBool(a.Type.IsDerived())
	default:
		return "", false, false
	}
	return v, v != "", true
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// propertyValue resolves @name against an artifact. Built-in attributes
// win over custom properties of the same name. A prefixed name outside the
// s-ramp namespace is looked up as a custom property under its full
// prefixed name first.
func propertyValue(a *artifact.Artifact, qn *query.QName) (string, bool) {
	if qn.Prefix != "" && qn.Namespace != query.SrampNamespace {
		if v, ok := a.Property(qn.String()); ok {
			return v, true
		}
	}
	if v, ok, core := coreProperty(a, qn.Local); core {
		return v, ok
	}
	return a.Property(qn.Local)
}
