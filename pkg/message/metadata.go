package message

// Metadata carries the recognized originSubject/traceId fields plus any
// additional string-keyed properties a producer attaches
type Metadata struct {
	OriginSubject string
	TraceID       string
	Additional    map[string]any
}

// toMap starts from the additional props and overlays the recognized
// fields when present. metadataFromMap is its inverse
func (md *Metadata) toMap() map[string]any {
	result := make(map[string]any, len(md.Additional)+2)
	for k, v := range md.Additional {
		result[k] = v
	}
	if md.OriginSubject != "" {
		result["originSubject"] = md.OriginSubject
	}
	if md.TraceID != "" {
		result["traceId"] = md.TraceID
	}
	return result
}

// metadataFromMap pops the recognized keys; whatever remains becomes
// the additional props
func metadataFromMap(raw map[string]any) *Metadata {
	md := &Metadata{}
	if origin, ok := raw["originSubject"].(string); ok {
		md.OriginSubject = origin
		delete(raw, "originSubject")
	}
	if trace, ok := raw["traceId"].(string); ok {
		md.TraceID = trace
		delete(raw, "traceId")
	}
	if len(raw) > 0 {
		md.Additional = raw
	}
	return md
}
