package ir

import "github.com/google/uuid"

// Namespace is the UUIDv5 namespace for all chronicle metadata concepts.
var Namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/roach88/chronicle"))

// MetadataConcept is a well-known concept every store bootstraps.
type MetadataConcept struct {
	Name string
	UUID uuid.UUID
}

func metadata(name string) MetadataConcept {
	return MetadataConcept{Name: name, UUID: uuid.NewSHA1(Namespace, []byte(name))}
}

// Well-known metadata concepts. UUIDs are stable across processes.
var (
	MetaRoot                   = metadata("root")
	MetaIsA                    = metadata("is-a")
	MetaMasterPath             = metadata("path/master")
	MetaDevelopmentPath        = metadata("path/development")
	MetaCoreModule             = metadata("module/core")
	MetaUserAuthor             = metadata("author/user")
	MetaRelationshipAssemblage = metadata("assemblage/relationship")
	MetaDescriptionAssemblage  = metadata("assemblage/description")
	MetaModuleParentAssemblage = metadata("assemblage/module-parent")
)

// Metadata lists every well-known concept in bootstrap order.
var Metadata = []MetadataConcept{
	MetaRoot,
	MetaIsA,
	MetaMasterPath,
	MetaDevelopmentPath,
	MetaCoreModule,
	MetaUserAuthor,
	MetaRelationshipAssemblage,
	MetaDescriptionAssemblage,
	MetaModuleParentAssemblage,
}
