// Package domain defines the resource object model shared by the data store:
// handles for every stored resource type, property values, model run states
// and the error kinds surfaced to callers.
package domain

import "time"

// ResourceType enumerates the stored resource kinds.
type ResourceType string

const (
	TypeExperiment     ResourceType = "EXPERIMENT"
	TypeFunctionalData ResourceType = "FUNCDATA"
	TypeImage          ResourceType = "IMAGE"
	TypeImageGroup     ResourceType = "IMAGEGROUP"
	TypeSubject        ResourceType = "SUBJECT"
	TypeModelRun       ResourceType = "MODELRUN"
)

// Collection returns the metadata collection (and file-store prefix) holding
// resources of type t.
func (t ResourceType) Collection() string {
	switch t {
	case TypeExperiment:
		return "experiments"
	case TypeFunctionalData:
		return "funcdata"
	case TypeImage:
		return "images"
	case TypeImageGroup:
		return "imagegroups"
	case TypeSubject:
		return "subjects"
	case TypeModelRun:
		return "modelruns"
	default:
		return ""
	}
}

// ResourceTypes lists every resource type in dependency order.
func ResourceTypes() []ResourceType {
	return []ResourceType{TypeSubject, TypeImage, TypeImageGroup, TypeExperiment, TypeFunctionalData, TypeModelRun}
}

// Reserved property names.
const (
	PropertyName     = "name"
	PropertyFilename = "filename"
	PropertyState    = "state"
	PropertyModel    = "model"
)

// Ref is a weak, identifier-based reference to a resource.
type Ref struct {
	Type ResourceType
	ID   string
}

// Handle carries the fields shared by every stored resource.
type Handle struct {
	ID         string       `json:"_id"`
	Type       ResourceType `json:"type"`
	Properties Properties   `json:"properties"`
	CreatedAt  time.Time    `json:"created_at"`
	// Deleting is set once a delete has started removing files. A resource
	// still carrying it after a failed delete may have lost files; Delete can
	// be retried.
	Deleting bool `json:"deleting,omitempty"`
}

// Ref returns the weak reference for h.
func (h Handle) Ref() Ref { return Ref{Type: h.Type, ID: h.ID} }

// Name returns the resource name property.
func (h Handle) Name() string { return h.Properties.Name() }

// Experiment groups a subject, a stimulus image group and optionally the
// functional data recorded for it.
type Experiment struct {
	Handle
	SubjectID        string `json:"subject_id"`
	ImageGroupID     string `json:"image_group_id"`
	FunctionalDataID string `json:"funcdata_id,omitempty"`
}

// FunctionalData owns exactly one stored data file. Archive members are a
// derived listing, not separate resources.
type FunctionalData struct {
	Handle
	ExperimentID string   `json:"experiment_id,omitempty"`
	DataFile     string   `json:"data_file"`
	Filename     string   `json:"filename"`
	Checksum     string   `json:"checksum,omitempty"`
	Archive      bool     `json:"archive"`
	Members      []string `json:"members,omitempty"`
}

// Image is a single stimulus image file.
type Image struct {
	Handle
	DataFile    string `json:"data_file"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type,omitempty"`
	GroupID     string `json:"group_id,omitempty"`
}

// GroupImage is one ordered entry of an image group.
type GroupImage struct {
	ID     string `json:"id"`
	Folder string `json:"folder"`
	Name   string `json:"name"`
}

// ImageGroup is an ordered collection of images plus group options.
type ImageGroup struct {
	Handle
	Images   []GroupImage     `json:"images"`
	Options  map[string]Value `json:"options"`
	DataFile string           `json:"data_file,omitempty"`
	Filename string           `json:"filename,omitempty"`
}

// ImageIDs returns the ordered image identifiers.
func (g ImageGroup) ImageIDs() []string {
	out := make([]string, len(g.Images))
	for i, img := range g.Images {
		out[i] = img.ID
	}
	return out
}

// SubjectAnatomy is an uploaded subject anatomy archive.
type SubjectAnatomy struct {
	Handle
	DataFile string   `json:"data_file"`
	Filename string   `json:"filename"`
	Checksum string   `json:"checksum,omitempty"`
	Members  []string `json:"members,omitempty"`
}

// Attachment is an auxiliary file owned by exactly one resource.
type Attachment struct {
	ResourceID   string       `json:"resource_id"`
	ResourceType ResourceType `json:"resource_type"`
	Filename     string       `json:"filename"`
	MimeType     string       `json:"mime_type,omitempty"`
	DataFile     string       `json:"data_file"`
	Size         int64        `json:"size"`
	CreatedAt    time.Time    `json:"created_at"`
}
