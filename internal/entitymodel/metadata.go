package entitymodel

import "capresearch/docs/schema"

// Version returns the research model version, or "" when the embedded model is unreadable.
func Version() string {
	version, err := schema.ModelVersion()
	if err != nil {
		return ""
	}
	return version
}
