package datasets

import (
	"encoding/json"
	"time"

	"github.com/yungbote/buoy-console/internal/platform/jsonutil"
)

// Pipeline is a backend-defined processing template. The console only reads it.
type Pipeline struct {
	ID           int64          `json:"id"`
	Slug         string         `json:"slug"`
	Name         string         `json:"name,omitempty"`
	ConfigSchema map[string]any `json:"config_schema"`
	Description  string         `json:"description"`
	Active       bool           `json:"active"`
	Created      time.Time      `json:"created"`
	Edited       time.Time      `json:"edited"`
}

func (p *Pipeline) UnmarshalJSON(b []byte) error {
	type plain Pipeline
	var aux struct {
		plain
		CreatedAt *time.Time `json:"created_at"`
		UpdatedAt *time.Time `json:"updated_at"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	*p = Pipeline(aux.plain)
	fillTimes(&p.Created, &p.Edited, aux.CreatedAt, aux.UpdatedAt)
	return nil
}

// DisplayName prefers the human name and falls back to the slug.
func (p *Pipeline) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.Slug
}

// SchemaFingerprint identifies the schema by content.
func (p *Pipeline) SchemaFingerprint() string {
	fp, err := jsonutil.Fingerprint(p.ConfigSchema)
	if err != nil {
		return ""
	}
	return fp
}

// DatasetConfig is one version in a dataset's configuration history. State is
// an opaque backend label.
type DatasetConfig struct {
	ID      int64          `json:"id"`
	Config  map[string]any `json:"config"`
	State   string         `json:"state"`
	Created time.Time      `json:"created"`
	Edited  time.Time      `json:"edited"`
}

func (c *DatasetConfig) UnmarshalJSON(b []byte) error {
	type plain DatasetConfig
	var aux struct {
		plain
		CreatedAt *time.Time `json:"created_at"`
		UpdatedAt *time.Time `json:"updated_at"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	*c = DatasetConfig(aux.plain)
	fillTimes(&c.Created, &c.Edited, aux.CreatedAt, aux.UpdatedAt)
	return nil
}

// Dataset is the full record returned by the detail endpoint. Pipeline is nil
// until the backend reports the relation. UserCanEdit and UserCanPublish are
// per-viewer hints that belong to this snapshot only.
type Dataset struct {
	ID             int64           `json:"id,omitempty"`
	Slug           string          `json:"slug"`
	Pipeline       *int64          `json:"pipeline"`
	Configs        []DatasetConfig `json:"configs"`
	State          string          `json:"state,omitempty"`
	Created        time.Time       `json:"created"`
	Edited         time.Time       `json:"edited"`
	UserCanEdit    *bool           `json:"user_can_edit,omitempty"`
	UserCanPublish *bool           `json:"user_can_publish,omitempty"`
}

// UnmarshalJSON accepts the legacy "runner" name for the pipeline relation
// when "pipeline" is absent, and created_at/updated_at timestamps.
func (d *Dataset) UnmarshalJSON(b []byte) error {
	type plain Dataset
	var aux struct {
		plain
		Runner    *int64     `json:"runner"`
		CreatedAt *time.Time `json:"created_at"`
		UpdatedAt *time.Time `json:"updated_at"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	*d = Dataset(aux.plain)
	if d.Pipeline == nil && aux.Runner != nil {
		id := *aux.Runner
		d.Pipeline = &id
	}
	if d.Configs == nil {
		d.Configs = []DatasetConfig{}
	}
	fillTimes(&d.Created, &d.Edited, aux.CreatedAt, aux.UpdatedAt)
	return nil
}

// PipelineID reports the referenced pipeline, if known.
func (d *Dataset) PipelineID() (int64, bool) {
	if d == nil || d.Pipeline == nil {
		return 0, false
	}
	return *d.Pipeline, true
}

// Config finds a config by id. Order of Configs is never changed.
func (d *Dataset) Config(id int64) (DatasetConfig, bool) {
	if d == nil {
		return DatasetConfig{}, false
	}
	for _, c := range d.Configs {
		if c.ID == id {
			return c, true
		}
	}
	return DatasetConfig{}, false
}

// CanEdit treats a missing flag as editable; the backend enforces on submit.
func (d *Dataset) CanEdit() bool { return d != nil && (d.UserCanEdit == nil || *d.UserCanEdit) }

func (d *Dataset) CanPublish() bool {
	return d != nil && d.UserCanPublish != nil && *d.UserCanPublish
}

// DatasetCompact is one row of the dataset list.
type DatasetCompact struct {
	Slug           string    `json:"slug"`
	State          string    `json:"state"`
	Created        time.Time `json:"created"`
	Edited         time.Time `json:"edited"`
	UserCanEdit    bool      `json:"user_can_edit"`
	UserCanPublish bool      `json:"user_can_publish"`
}

// NewDataset is the create payload.
type NewDataset struct {
	Slug       string         `json:"slug"`
	PipelineID int64          `json:"pipeline_id"`
	Config     map[string]any `json:"config"`
}

func fillTimes(created, edited *time.Time, createdAt, updatedAt *time.Time) {
	if created.IsZero() && createdAt != nil {
		*created = *createdAt
	}
	if edited.IsZero() && updatedAt != nil {
		*edited = *updatedAt
	}
}
