package datasets

import "github.com/yungbote/buoy-console/internal/querycache"

const (
	TagDatasets  = "datasets"
	TagDataset   = "dataset"
	TagPipelines = "pipelines"
	TagPipeline  = "pipeline"
)

func DatasetsKey() querycache.Key { return querycache.NewKey(TagDatasets) }

// DatasetKey is zero for an empty slug, which keeps queries built on it disabled.
func DatasetKey(slug string) querycache.Key {
	if slug == "" {
		return querycache.Key{}
	}
	return querycache.NewKey(TagDataset, slug)
}

func PipelinesKey() querycache.Key { return querycache.NewKey(TagPipelines) }

func PipelineKey(id int64) querycache.Key { return querycache.NewKey(TagPipeline, id) }

// DatasetsByPipelineKey shares the datasets tag, so invalidating the tag
// covers the list and every per-pipeline listing.
func DatasetsByPipelineKey(pipelineSlug string) querycache.Key {
	if pipelineSlug == "" {
		return querycache.Key{}
	}
	return querycache.NewKey(TagDatasets, "by-pipeline", pipelineSlug)
}
