package stage

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/consumerdata/ccdb-etl/internal/storage"
)

// timestampLayout orders artifact names chronologically by plain string
// comparison, so "latest per partition" needs no file reads.
const timestampLayout = "20060102_150405"

// Artifact describes one immutable staged snapshot of a partition.
type Artifact struct {
	PartitionKey string    `json:"partition_key"`
	Timestamp    time.Time `json:"timestamp"`
	Key          string    `json:"key"`
	RecordCount  int       `json:"record_count"`
}

// Manifest maps each partition key to its newest staging artifact. It is
// computed fresh from a storage listing every run and never cached; the
// listing, not local state, is the source of truth.
type Manifest map[string]Artifact

// artifactPattern matches <prefix>/<YYYYMMDD_HHMMSS>_<partition>_complaints.csv.
func artifactPattern(prefix string) *regexp.Regexp {
	return regexp.MustCompile("^" + regexp.QuoteMeta(prefix) + `/(\d{8}_\d{6})_(.+)_complaints\.csv$`)
}

func artifactKey(prefix, partitionKey string, ts time.Time) string {
	return fmt.Sprintf("%s/%s_%s_complaints.csv", prefix, ts.Format(timestampLayout), partitionKey)
}

func parseArtifactKey(pattern *regexp.Regexp, key string) (Artifact, bool) {
	m := pattern.FindStringSubmatch(key)
	if m == nil {
		return Artifact{}, false
	}
	ts, err := time.Parse(timestampLayout, m[1])
	if err != nil {
		return Artifact{}, false
	}
	return Artifact{PartitionKey: m[2], Timestamp: ts, Key: key}, true
}

// BuildManifest lists the staging prefix and keeps the newest artifact per
// partition. Keys that do not look like staging artifacts are ignored.
func BuildManifest(ctx context.Context, store storage.ObjectStore, prefix string) (Manifest, error) {
	keys, err := store.List(ctx, prefix+"/")
	if err != nil {
		return nil, fmt.Errorf("failed to list staging artifacts: %w", err)
	}

	pattern := artifactPattern(prefix)
	manifest := make(Manifest)
	for _, key := range keys {
		artifact, ok := parseArtifactKey(pattern, key)
		if !ok {
			continue
		}
		current, seen := manifest[artifact.PartitionKey]
		if !seen || artifact.Key > current.Key {
			manifest[artifact.PartitionKey] = artifact
		}
	}

	return manifest, nil
}
