// Package history remembers recently provisioned targets and tested hosts so
// prompts can offer them as defaults.
package history

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/treykane/sshkit/internal/appconfig"
	"github.com/treykane/sshkit/internal/model"
	"github.com/treykane/sshkit/internal/util"
)

type store struct {
	LastUsed map[string]int64 `json:"last_used"`
}

func filePath() (string, error) {
	dir, err := appconfig.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "history.json"), nil
}

// Touch records successful activity for key: a host alias or a target string
// such as "deploy@10.0.0.5:2222".
func Touch(key string) error {
	st, err := load()
	if err != nil {
		return err
	}
	st.LastUsed[key] = time.Now().Unix()
	return save(st)
}

// TouchTarget records a successfully provisioned target.
func TouchTarget(t model.Target) error {
	return Touch(t.String())
}

// LastUsed returns last successful activity timestamps by key.
func LastUsed() (map[string]int64, error) {
	st, err := load()
	if err != nil {
		return nil, err
	}
	return st.LastUsed, nil
}

// RecentTargets returns remembered targets, most recent first. Keys that do
// not parse as targets are skipped.
func RecentTargets(limit int) ([]model.Target, error) {
	lastUsed, err := LastUsed()
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(lastUsed))
	for k := range lastUsed {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if lastUsed[keys[i]] != lastUsed[keys[j]] {
			return lastUsed[keys[i]] > lastUsed[keys[j]]
		}
		return keys[i] < keys[j]
	})
	var out []model.Target
	for _, k := range keys {
		t, err := model.ParseTarget(k)
		if err != nil {
			continue
		}
		out = append(out, t)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// SortHostsRecent returns a new slice sorted by recent activity (desc), then alias.
func SortHostsRecent(hosts []model.HostEntry, lastUsed map[string]int64) []model.HostEntry {
	out := append([]model.HostEntry(nil), hosts...)
	sort.SliceStable(out, func(i, j int) bool {
		ti := lastUsed[out[i].Alias]
		tj := lastUsed[out[j].Alias]
		if ti != tj {
			return ti > tj
		}
		return out[i].Alias < out[j].Alias
	})
	return out
}

func load() (store, error) {
	path, err := filePath()
	if err != nil {
		return store{}, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return store{LastUsed: map[string]int64{}}, nil
		}
		return store{}, err
	}
	var st store
	if err := json.Unmarshal(b, &st); err != nil {
		return store{LastUsed: map[string]int64{}}, nil
	}
	if st.LastUsed == nil {
		st.LastUsed = map[string]int64{}
	}
	return st, nil
}

func save(st store) error {
	path, err := filePath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), util.DirMode); err != nil {
		return err
	}
	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, util.ConfigMode)
}
