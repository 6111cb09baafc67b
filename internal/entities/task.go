package entities

// SourceKind is the kind of document a source object holds, derived from its key suffix.
type SourceKind int

const (
	KindUnknown SourceKind = iota
	KindRasterImage
	KindPDF
)

func (k SourceKind) String() string {
	switch k {
	case KindRasterImage:
		return "raster"
	case KindPDF:
		return "pdf"
	default:
		return "unknown"
	}
}

// Task is one eligible object scheduled for conversion.
// Tasks are built by the classifier and never persisted.
type Task struct {
	SourceKey      string     `json:"source_key"`
	Kind           SourceKind `json:"kind"`
	Ext            string     `json:"ext"`             // lower-cased matched suffix: ".png" | ".jpg" | ".jpeg" | ".pdf"
	DestinationKey string     `json:"destination_key"` // "webp/" + source without extension + ".webp"
}
