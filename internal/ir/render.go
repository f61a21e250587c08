package ir

import (
	"encoding/base64"
	"fmt"
)

func stampDoc(s Stamp) Doc {
	return Doc{
		"status": Str(s.Status.String()),
		"time":   Int(s.Time),
		"author": Int(s.Author),
		"module": Int(s.Module),
		"path":   Int(s.Path),
	}
}

// ObjectDoc renders any record as a canonical document for human-readable
// output. Versions appear in stored order.
func ObjectDoc(obj Object) (Doc, error) {
	switch o := obj.(type) {
	case *Chronology:
		uuids := make(List, 0, 1+len(o.AliasUUIDs))
		for _, u := range o.UUIDs() {
			uuids = append(uuids, Str(u.String()))
		}
		versions := make(List, 0, len(o.Versions))
		for _, v := range o.Versions {
			versions = append(versions, VersionDoc(v))
		}
		d := Doc{
			"kind":     Str(o.Kind.String()),
			"nid":      Int(o.Nid),
			"uuids":    uuids,
			"versions": versions,
		}
		if o.Kind == KindSemantic {
			d["assemblage"] = Int(o.Assemblage)
			d["referenced_component"] = Int(o.ReferencedComponent)
			d["semantic_type"] = Str(o.SemanticType.String())
		}
		return d, nil
	case *StampAlias:
		return Doc{"kind": Str(KindStampAlias.String()), "stamp": stampDoc(o.Stamp), "alias": stampDoc(o.Alias)}, nil
	case *StampComment:
		return Doc{"kind": Str(KindStampComment.String()), "stamp": stampDoc(o.Stamp), "comment": Str(o.Comment)}, nil
	case *Unparsed:
		return Doc{
			"kind":    Str("unparsed"),
			"tag":     Int(o.Tag),
			"payload": Str(base64.StdEncoding.EncodeToString(o.Payload)),
		}, nil
	}
	return nil, fmt.Errorf("ObjectDoc: unsupported object %T", obj)
}
