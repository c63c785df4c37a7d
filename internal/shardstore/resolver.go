package shardstore

import (
	"hash/fnv"
	"strconv"
)

// HashShard returns a ShardOf that distributes db names across n shards
// named "shard0".."shard{n-1}" by FNV-1a hash.  A fixed hash keeps a given
// database permanently on the same shard across process restarts, which a
// random or time-based distribution could not guarantee.
func HashShard(n int) ShardOf {
	return func(dbName string) string {
		h := fnv.New32a()
		_, _ = h.Write([]byte(dbName))
		idx := int(h.Sum32()) % n
		if idx < 0 {
			idx += n
		}
		return "shard" + strconv.Itoa(idx)
	}
}
